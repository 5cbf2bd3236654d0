// Package llm provides the provider-neutral chat types and the Grok
// client implementation.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PartKind identifies the type of a content part.
type PartKind int

const (
	// PartText is a plain text segment.
	PartText PartKind = iota
)

// ContentPart is one element of a message's ordered content sequence.
// Only text parts are produced today; the tagged form exists so the
// rest of the system never branches on raw JSON shapes.
type ContentPart struct {
	Kind PartKind
	Text string
}

// wirePart is the array-element content encoding used by providers
// that send structured content.
type wirePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message represents a chat message. Content is normalized to Parts at
// the JSON boundary: providers may send a bare string or an array of
// typed parts, both decode to the same representation.
type Message struct {
	Role       string
	Parts      []ContentPart
	ToolCalls  []ToolCall
	ToolCallID string
}

// Text returns the concatenated text content of the message.
func (m *Message) Text() string {
	if len(m.Parts) == 1 && m.Parts[0].Kind == PartText {
		return m.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// SystemMessage builds a system message from plain text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []ContentPart{{Kind: PartText, Text: text}}}
}

// UserMessage builds a user message from plain text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []ContentPart{{Kind: PartText, Text: text}}}
}

// AssistantMessage builds an assistant message from plain text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []ContentPart{{Kind: PartText, Text: text}}}
}

// ToolMessage builds a tool-result message correlated to a tool call.
func ToolMessage(toolCallID, result string) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Parts:      []ContentPart{{Kind: PartText, Text: result}},
	}
}

// wireMessage is the JSON encoding of a Message. Content marshals as a
// bare string (the common case) and unmarshals from either a string or
// an array of typed parts.
type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.Text())
	if err != nil {
		return nil, err
	}
	wm := wireMessage{
		Role:       m.Role,
		Content:    content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, tc.wire())
	}
	return json.Marshal(wm)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wm wireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return err
	}
	m.Role = wm.Role
	m.ToolCallID = wm.ToolCallID
	m.ToolCalls = nil
	for _, wtc := range wm.ToolCalls {
		tc, err := wtc.toolCall()
		if err != nil {
			return err
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	}
	m.Parts = nil
	if len(wm.Content) == 0 || string(wm.Content) == "null" {
		return nil
	}

	// String content is the common case.
	var s string
	if err := json.Unmarshal(wm.Content, &s); err == nil {
		if s != "" {
			m.Parts = []ContentPart{{Kind: PartText, Text: s}}
		}
		return nil
	}

	// Otherwise expect an ordered array of typed parts.
	var parts []wirePart
	if err := json.Unmarshal(wm.Content, &parts); err != nil {
		return fmt.Errorf("message content is neither string nor part array: %w", err)
	}
	for _, p := range parts {
		if p.Type == "text" {
			m.Parts = append(m.Parts, ContentPart{Kind: PartText, Text: p.Text})
		}
	}
	return nil
}

// ToolCall represents a tool invocation requested by the model.
// Arguments are decoded to a map at the provider boundary; the rest of
// the system never sees raw argument strings.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// wireToolCall is the OpenAI-compatible tool call encoding, with
// arguments as a JSON-encoded string.
type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (tc ToolCall) wire() wireToolCall {
	var w wireToolCall
	w.ID = tc.ID
	w.Type = "function"
	w.Function.Name = tc.Name
	if tc.Arguments != nil {
		if data, err := json.Marshal(tc.Arguments); err == nil {
			w.Function.Arguments = string(data)
		}
	}
	return w
}

func (w wireToolCall) toolCall() (ToolCall, error) {
	tc := ToolCall{ID: w.ID, Name: w.Function.Name}
	if args := strings.TrimSpace(w.Function.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &tc.Arguments); err != nil {
			return tc, fmt.Errorf("decode tool call arguments: %w", err)
		}
	}
	return tc, nil
}

// ToolDefinition describes a callable tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatRequest is a provider-neutral chat completion request.
type ChatRequest struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition
}

// ChatResponse is the unified response from any provider. Wire format
// conversion happens at the provider boundary.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindToken is an incremental text token from the model.
	KindToken StreamEventKind = iota

	// KindToolCallStart fires when the model requests a tool.
	KindToolCallStart

	// KindDone signals the stream is complete.
	KindDone
)

// StreamEvent is a single event in a streaming response.
type StreamEvent struct {
	Kind StreamEventKind

	// Token is set for KindToken events.
	Token string

	// ToolCall is set for KindToolCallStart events.
	ToolCall *ToolCall

	// Response is set for KindDone events.
	Response *ChatResponse
}

// StreamCallback receives streaming events.
type StreamCallback func(event StreamEvent)
