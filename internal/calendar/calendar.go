// Package calendar provides event creation and upcoming-event lookup.
package calendar

import (
	"context"
	"time"
)

// Event is one scheduled calendar entry.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Timezone  string    `json:"timezone,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
}

// Gateway is the opaque calendar service interface.
type Gateway interface {
	// CreateEvent stores a new event and returns it with its assigned id.
	CreateEvent(ctx context.Context, ev Event) (Event, error)

	// ListUpcoming returns events starting within the given window from
	// now, soonest first.
	ListUpcoming(ctx context.Context, window time.Duration) ([]Event, error)
}
