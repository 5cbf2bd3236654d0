package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Encoder serializes turn output as newline-delimited frames. When the
// underlying writer supports flushing (an http.ResponseWriter), every
// frame is flushed immediately so clients see tokens as they arrive.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEncoder wraps w. Flushing is enabled automatically when w
// implements http.Flusher.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Text writes one text increment frame.
func (e *Encoder) Text(s string) error {
	return e.writeFrame(PrefixText, s)
}

// Annotation writes one annotation frame. v must marshal to a JSON
// object or array of objects carrying a type discriminator.
func (e *Encoder) Annotation(v any) error {
	return e.writeFrame(PrefixAnnotation, v)
}

// ToolCall writes one raw tool call event frame.
func (e *Encoder) ToolCall(ev ToolCallEvent) error {
	return e.writeFrame(PrefixToolCall, ev)
}

func (e *Encoder) writeFrame(prefix string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s:%s\n", prefix, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
