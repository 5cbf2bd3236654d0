// Package events provides a publish/subscribe bus for operational
// events. Components (agent loop, trigger bridge, API server) publish;
// subscribers (the debug panel WebSocket feed) consume. The bus is
// nil-safe: Publish on a nil *Bus is a no-op, so callers need no guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify the publishing component.
const (
	// SourceAgent identifies events from the turn orchestrator.
	SourceAgent = "agent"
	// SourceTrigger identifies events from the MQTT trigger bridge.
	SourceTrigger = "trigger"
	// SourceAPI identifies events from the HTTP API server.
	SourceAPI = "api"
)

// Kind constants describe the type of event within a source.
const (
	// KindTurnStart signals the beginning of a turn.
	// Data: request_id, user_id, trigger.
	KindTurnStart = "turn_start"
	// KindModelCall signals the start of one model round.
	// Data: request_id, round, model.
	KindModelCall = "model_call"
	// KindToolCall signals the start of a tool execution.
	// Data: request_id, tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: request_id, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindMemoryGet signals memories were retrieved for context.
	// Data: request_id, count.
	KindMemoryGet = "memory_get"
	// KindMemoryUpdate signals new memories were stored.
	// Data: request_id, count.
	KindMemoryUpdate = "memory_update"
	// KindTurnComplete signals the end of a turn.
	// Data: request_id, rounds, elapsed_ms, fallback.
	KindTurnComplete = "turn_complete"
	// KindTriggerFired signals the trigger bridge woke the agent.
	// Data: trigger, user_id.
	KindTriggerFired = "trigger_fired"
)

// Event is a single operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus broadcasts events to subscribers without blocking publishers:
// a subscriber whose channel is full misses events rather than
// stalling the agent loop.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// byRecv maps each subscriber's receive-only view back to the
	// channel stored in subs, so Unsubscribe can accept the caller's
	// <-chan Event.
	byRecv map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:   make(map[chan Event]struct{}),
		byRecv: make(map[<-chan Event]chan Event),
	}
}

// Emit publishes an event built from the given source, kind and data,
// stamped with the current time. Safe on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Publish sends an event to all subscribers, dropping it for any
// subscriber whose buffer is full. Safe on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber with the given channel buffer
// size. The caller must Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.byRecv[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Calling
// it twice with the same channel is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	send, ok := b.byRecv[ch]
	if !ok {
		return
	}
	delete(b.subs, send)
	delete(b.byRecv, ch)
	close(send)
}
