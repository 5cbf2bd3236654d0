package tools

import (
	"context"
	"sync"

	"github.com/jarvix-ai/jarvix/internal/memory"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	recorderKey
)

// WithUserID returns a context carrying the user id tool handlers
// should operate on.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the user id from the context, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Recorder collects side effects of tool execution within one turn so
// the orchestrator can surface them as stream annotations afterwards.
// Safe for use from a single turn's goroutines.
type Recorder struct {
	mu    sync.Mutex
	added []memory.Record
}

// RecordAdded notes memory records stored during the turn.
func (r *Recorder) RecordAdded(records []memory.Record) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, records...)
}

// Added returns the records stored during the turn.
func (r *Recorder) Added() []memory.Record {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]memory.Record, len(r.added))
	copy(out, r.added)
	return out
}

// WithRecorder returns a context carrying a per-turn side effect
// recorder.
func WithRecorder(ctx context.Context, rec *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, rec)
}

// RecorderFrom extracts the turn recorder from the context, or nil.
func RecorderFrom(ctx context.Context) *Recorder {
	rec, _ := ctx.Value(recorderKey).(*Recorder)
	return rec
}
