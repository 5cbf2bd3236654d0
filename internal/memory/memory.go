// Package memory provides long-term user memory storage and retrieval.
package memory

import (
	"context"
	"time"
)

// Record is one persisted fact about a user. Records are created on
// add and returned read-only on search and listing; nothing in this
// system mutates an existing record.
type Record struct {
	ID        string         `json:"id,omitempty"`
	Memory    string         `json:"memory"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// Gateway is the opaque memory service interface, keyed by user id.
type Gateway interface {
	// Add stores new memory text and returns the resulting records.
	Add(ctx context.Context, userID, text string, metadata map[string]any) ([]Record, error)

	// GetAll returns every record stored for the user.
	GetAll(ctx context.Context, userID string) ([]Record, error)

	// Search returns records relevant to the query, highest score first.
	Search(ctx context.Context, userID, query string) ([]Record, error)
}

// Extractor is implemented by gateways that infer durable facts from
// free-form conversation text instead of storing it verbatim. Gateways
// without inference (the local store) deliberately do not implement it.
type Extractor interface {
	Extract(ctx context.Context, userID, text string) ([]Record, error)
}
