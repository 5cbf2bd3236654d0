package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// DecoderCallbacks receive decoded events as frames complete. Any
// callback may be nil.
type DecoderCallbacks struct {
	// OnText receives each text increment in order.
	OnText func(text string)

	// OnAnnotation receives each decoded annotation. Annotation arrays
	// are flattened to one call per element.
	OnAnnotation func(a Annotation)

	// OnToolCall receives each tool call event: raw tool-call frames,
	// plus every element of a tool-calls annotation.
	OnToolCall func(ev ToolCallEvent)
}

// classifier attempts to handle one complete frame line. It reports
// whether the line was claimed; unclaimed lines fall through to the
// next classifier and are dropped after the last one.
type classifier func(d *Decoder, line []byte) bool

// Decoder incrementally reconstructs frames from a byte stream with no
// alignment guarantees. Bytes are buffered until a newline completes a
// frame; classification runs through an ordered strategy list so new
// frame shapes can be added without touching the buffering logic.
// A malformed frame is dropped silently and never disturbs the frames
// after it.
type Decoder struct {
	cb         DecoderCallbacks
	pending    []byte
	text       strings.Builder
	strategies []classifier
}

// NewDecoder creates a decoder dispatching to the given callbacks.
func NewDecoder(cb DecoderCallbacks) *Decoder {
	return &Decoder{
		cb: cb,
		strategies: []classifier{
			(*Decoder).classifyByPrefix,
			(*Decoder).classifyByShape,
		},
	}
}

// Feed consumes one chunk of bytes. Complete frames are dispatched;
// a trailing partial frame is retained for the next chunk.
func (d *Decoder) Feed(chunk []byte) {
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			return
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		d.processLine(line)
	}
}

// Finish flushes any buffered partial frame through the same per-line
// logic and returns the aggregated text.
func (d *Decoder) Finish() string {
	if len(d.pending) > 0 {
		d.processLine(d.pending)
		d.pending = nil
	}
	return d.text.String()
}

// Text returns the text aggregated so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

// DecodeStream consumes r to EOF through a Decoder and returns the
// final aggregated text. Read errors other than EOF are returned with
// whatever text decoded before the failure.
func DecodeStream(r io.Reader, cb DecoderCallbacks) (string, error) {
	d := NewDecoder(cb)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err == io.EOF {
			return d.Finish(), nil
		}
		if err != nil {
			return d.Finish(), err
		}
	}
}

func (d *Decoder) processLine(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	for _, classify := range d.strategies {
		if classify(d, line) {
			return
		}
	}
	// No strategy claimed the line: silent drop.
}

// classifyByPrefix handles the known <prefix>:<json> frame forms. A
// recognized prefix claims the line even when its payload fails to
// decode, so a corrupt frame cannot be misread by the shape heuristic.
func (d *Decoder) classifyByPrefix(line []byte) bool {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return false
	}
	prefix, payload := string(line[:i]), line[i+1:]

	switch prefix {
	case PrefixText:
		var s string
		if err := json.Unmarshal(payload, &s); err == nil {
			d.appendText(s)
		}
		return true

	case PrefixAnnotation, PrefixAnnotationLegacy:
		d.dispatchAnnotationPayload(payload)
		return true

	case PrefixToolCall:
		var ev ToolCallEvent
		if err := json.Unmarshal(payload, &ev); err == nil {
			d.dispatchToolCall(ev)
		}
		return true
	}
	return false
}

// classifyByShape is the fallback for unrecognized prefixes: strip any
// leading digit-colon marker, decode, and sort the result by shape into
// a tool call or an annotation.
func (d *Decoder) classifyByShape(line []byte) bool {
	payload := stripDigitMarker(line)

	var probe map[string]any
	if err := json.Unmarshal(payload, &probe); err == nil {
		d.dispatchByShape(payload, probe)
		return true
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err == nil {
		for _, item := range items {
			var p map[string]any
			if err := json.Unmarshal(item, &p); err == nil {
				d.dispatchByShape(item, p)
			}
		}
		return true
	}
	return false
}

// stripDigitMarker removes a leading "<digits>:" marker if present.
func stripDigitMarker(line []byte) []byte {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && line[i] == ':' {
		return line[i+1:]
	}
	return line
}

// dispatchByShape routes one decoded object: tool-call-shaped payloads
// (a tool-name-like field or an explicit discriminator) go to the tool
// call callback, everything else is treated as an annotation.
func (d *Decoder) dispatchByShape(payload []byte, probe map[string]any) {
	if toolCallShaped(probe) {
		var ev ToolCallEvent
		if err := json.Unmarshal(payload, &ev); err == nil {
			d.dispatchToolCall(ev)
		}
		return
	}
	var a Annotation
	if err := json.Unmarshal(payload, &a); err == nil {
		d.dispatchAnnotation(a)
	}
}

func toolCallShaped(probe map[string]any) bool {
	if t, _ := probe["type"].(string); t == "tool-call" {
		return true
	}
	if _, ok := probe["toolName"]; ok {
		return true
	}
	if _, hasName := probe["name"]; hasName {
		_, hasArgs := probe["args"]
		_, hasResult := probe["result"]
		return hasArgs || hasResult
	}
	return false
}

// dispatchAnnotationPayload decodes an annotation frame payload, which
// may be a single object or an array of objects.
func (d *Decoder) dispatchAnnotationPayload(payload []byte) {
	var a Annotation
	if err := json.Unmarshal(payload, &a); err == nil {
		d.dispatchAnnotation(a)
		return
	}
	var many []Annotation
	if err := json.Unmarshal(payload, &many); err == nil {
		for _, a := range many {
			d.dispatchAnnotation(a)
		}
	}
}

func (d *Decoder) dispatchAnnotation(a Annotation) {
	if d.cb.OnAnnotation != nil {
		d.cb.OnAnnotation(a)
	}
	// Logged tool calls fan out to the tool call callback as well.
	if a.Type == TypeToolCalls {
		for _, ev := range a.Calls {
			d.dispatchToolCall(ev)
		}
	}
}

func (d *Decoder) dispatchToolCall(ev ToolCallEvent) {
	if d.cb.OnToolCall != nil {
		d.cb.OnToolCall(ev)
	}
}

func (d *Decoder) appendText(s string) {
	d.text.WriteString(s)
	if d.cb.OnText != nil {
		d.cb.OnText(s)
	}
}
