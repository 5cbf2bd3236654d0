package agent

import (
	"sync"

	"github.com/jarvix-ai/jarvix/internal/llm"
)

// SessionStore keeps per-user conversation history between turns.
// After each turn the stored history is replaced wholesale with the
// turn's full call-message list, tool rounds included, so the next
// turn sees complete context.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string][]llm.Message)}
}

// Get returns a copy of the stored history for userID.
func (s *SessionStore) Get(userID string) []llm.Message {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[userID]
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Replace overwrites the stored history for userID.
func (s *SessionStore) Replace(userID string, msgs []llm.Message) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]llm.Message, len(msgs))
	copy(stored, msgs)
	s.sessions[userID] = stored
}

// Reset clears the stored history for userID.
func (s *SessionStore) Reset(userID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
