package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// GrokClient speaks the OpenAI-compatible chat completions API exposed
// by xAI. Streaming responses arrive as SSE `data:` lines carrying
// delta chunks; tool call arguments stream as string fragments that are
// reassembled and decoded once per call.
type GrokClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGrokClient creates a Grok client. baseURL defaults to the hosted
// xAI endpoint when empty.
func NewGrokClient(baseURL, apiKey string, logger *slog.Logger) *GrokClient {
	if baseURL == "" {
		baseURL = "https://api.x.ai"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GrokClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger,
	}
}

// chatRequest is the wire request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []wireToolDef `json:"tools,omitempty"`
}

type wireToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

func wireToolDefs(defs []ToolDefinition) []wireToolDef {
	var out []wireToolDef
	for _, d := range defs {
		var w wireToolDef
		w.Type = "function"
		w.Function.Name = d.Name
		w.Function.Description = d.Description
		w.Function.Parameters = d.Parameters
		out = append(out, w)
	}
	return out
}

// chatCompletion is the non-streaming wire response.
type chatCompletion struct {
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// chatChunk is one streamed delta.
type chatChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a non-streaming chat completion request.
func (c *GrokClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var completion chatCompletion
	if err := json.NewDecoder(body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	resp := &ChatResponse{
		Model:        completion.Model,
		CreatedAt:    time.Unix(completion.Created, 0),
		Message:      completion.Choices[0].Message,
		Done:         true,
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
	}
	return resp, nil
}

// ChatStream sends a streaming chat request, delivering tokens and tool
// call starts to callback as they arrive. Lines are reassembled before
// decoding, so chunk boundaries in the network stream do not matter.
func (c *GrokClient) ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		return c.Chat(ctx, req)
	}

	body, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var (
		content strings.Builder
		model   string
		inTok   int
		outTok  int
		calls   = map[int]*toolCallAccumulator{}
	)

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			// Non-data lines are SSE comments or event names; skip them.
			if data, ok := strings.CutPrefix(trimmed, "data:"); ok {
				data = strings.TrimSpace(data)
				if data != "" && data != "[DONE]" {
					var chunk chatChunk
					if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
						c.logger.Debug("skipping malformed stream chunk", "error", jerr)
					} else {
						if chunk.Model != "" {
							model = chunk.Model
						}
						if chunk.Usage != nil {
							inTok = chunk.Usage.PromptTokens
							outTok = chunk.Usage.CompletionTokens
						}
						for _, choice := range chunk.Choices {
							if choice.Delta.Content != "" {
								content.WriteString(choice.Delta.Content)
								callback(StreamEvent{Kind: KindToken, Token: choice.Delta.Content})
							}
							for _, tc := range choice.Delta.ToolCalls {
								acc := calls[tc.Index]
								if acc == nil {
									acc = &toolCallAccumulator{}
									calls[tc.Index] = acc
								}
								if tc.ID != "" {
									acc.id = tc.ID
								}
								if tc.Function.Name != "" {
									acc.name = tc.Function.Name
								}
								acc.args.WriteString(tc.Function.Arguments)
							}
						}
					}
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}
	}

	resp := &ChatResponse{
		Model:        model,
		CreatedAt:    time.Now(),
		Done:         true,
		InputTokens:  inTok,
		OutputTokens: outTok,
	}
	resp.Message.Role = RoleAssistant
	if text := content.String(); text != "" {
		resp.Message.Parts = []ContentPart{{Kind: PartText, Text: text}}
	}

	toolCalls, err := assembleToolCalls(calls)
	if err != nil {
		return nil, err
	}
	resp.Message.ToolCalls = toolCalls
	for i := range resp.Message.ToolCalls {
		callback(StreamEvent{Kind: KindToolCallStart, ToolCall: &resp.Message.ToolCalls[i]})
	}

	callback(StreamEvent{Kind: KindDone, Response: resp})
	return resp, nil
}

// toolCallAccumulator reassembles one tool call from streamed deltas.
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func assembleToolCalls(calls map[int]*toolCallAccumulator) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var out []ToolCall
	for _, i := range indexes {
		acc := calls[i]
		tc := ToolCall{ID: acc.id, Name: acc.name}
		if raw := strings.TrimSpace(acc.args.String()); raw != "" {
			if err := json.Unmarshal([]byte(raw), &tc.Arguments); err != nil {
				return nil, fmt.Errorf("decode arguments for tool %q: %w", acc.name, err)
			}
		}
		out = append(out, tc)
	}
	return out, nil
}

func (c *GrokClient) post(ctx context.Context, req ChatRequest, stream bool) (io.ReadCloser, error) {
	wireReq := chatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    wireToolDefs(req.Tools),
	}

	jsonData, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}
