// Package stream implements the newline-delimited multi-channel wire
// protocol used between the chat backend and its clients. Each frame is
// one line of the form <prefix>:<json-payload>. Text increments, tool
// call events and out-of-band annotations share the same byte stream;
// annotations never alter the visible text.
package stream

import (
	"encoding/json"

	"github.com/jarvix-ai/jarvix/internal/memory"
)

// Frame prefixes.
const (
	// PrefixText frames carry a JSON string holding one text increment.
	PrefixText = "0"

	// PrefixAnnotation frames carry a JSON annotation object or an array
	// of annotation objects.
	PrefixAnnotation = "8"

	// PrefixAnnotationLegacy is an older annotation prefix still emitted
	// by some clients. Decode-only; the encoder always writes
	// PrefixAnnotation.
	PrefixAnnotationLegacy = "2"

	// PrefixToolCall frames carry one raw tool call event object.
	PrefixToolCall = "9"
)

// Annotation type discriminators.
const (
	TypeMemoryGet    = "mem0-get"
	TypeMemoryUpdate = "mem0-update"
	TypeTrigger      = "trigger"
	TypeToolCalls    = "tool-calls"
)

// ToolCallEvent describes one executed tool call, used both as a raw
// tool-call frame payload and as an element of a tool-calls annotation.
type ToolCallEvent struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result,omitempty"`
}

// Annotation is the decoded form of an annotation frame. Memories stays
// raw because its element shape depends on Type (records for mem0-get,
// update entries for mem0-update).
type Annotation struct {
	Type     string          `json:"type"`
	Trigger  string          `json:"trigger,omitempty"`
	Memories json.RawMessage `json:"memories,omitempty"`
	Calls    []ToolCallEvent `json:"calls,omitempty"`
}

// MemoryGetAnnotation reports the memories retrieved before the reply
// was generated.
type MemoryGetAnnotation struct {
	Type     string          `json:"type"`
	Memories []memory.Record `json:"memories"`
}

// NewMemoryGet builds a mem0-get annotation.
func NewMemoryGet(records []memory.Record) MemoryGetAnnotation {
	return MemoryGetAnnotation{Type: TypeMemoryGet, Memories: records}
}

// MemoryUpdate describes one memory record written during the turn.
type MemoryUpdate struct {
	ID    string           `json:"id"`
	Data  MemoryUpdateData `json:"data"`
	Event string           `json:"event"`
}

// MemoryUpdateData carries the stored memory text.
type MemoryUpdateData struct {
	Memory string `json:"memory"`
}

// MemoryUpdateAnnotation reports memories stored during the turn.
type MemoryUpdateAnnotation struct {
	Type     string         `json:"type"`
	Memories []MemoryUpdate `json:"memories"`
}

// NewMemoryUpdate builds a mem0-update annotation.
func NewMemoryUpdate(updates []MemoryUpdate) MemoryUpdateAnnotation {
	return MemoryUpdateAnnotation{Type: TypeMemoryUpdate, Memories: updates}
}

// TriggerAnnotation reports the trigger label that initiated the turn.
type TriggerAnnotation struct {
	Type    string `json:"type"`
	Trigger string `json:"trigger"`
}

// NewTrigger builds a trigger annotation.
func NewTrigger(trigger string) TriggerAnnotation {
	return TriggerAnnotation{Type: TypeTrigger, Trigger: trigger}
}

// ToolCallsAnnotation is the post-text log of every tool call the turn
// executed.
type ToolCallsAnnotation struct {
	Type  string          `json:"type"`
	Calls []ToolCallEvent `json:"calls"`
}

// NewToolCalls builds a tool-calls annotation.
func NewToolCalls(calls []ToolCallEvent) ToolCallsAnnotation {
	return ToolCallsAnnotation{Type: TypeToolCalls, Calls: calls}
}
