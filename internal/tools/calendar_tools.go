package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/jarvix-ai/jarvix/internal/calendar"
)

func registerCalendarTools(r *Registry, cal calendar.Gateway) {
	r.Register(&Tool{
		Name: "create_calendar_event",
		Description: "Create a calendar event. Requires a summary, start time, and end time. " +
			"Times are ISO 8601; include attendee emails if the user names people.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{
					"type":        "string",
					"description": "Event title",
				},
				"start_iso": map[string]any{
					"type":        "string",
					"description": "Start time in ISO 8601, e.g. 2026-08-30T14:00:00",
				},
				"end_iso": map[string]any{
					"type":        "string",
					"description": "End time in ISO 8601",
				},
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, defaults to UTC",
				},
				"attendees": map[string]any{
					"type":        "object",
					"description": "Attendee list",
					"properties": map[string]any{
						"emails": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
				},
			},
			"required": []string{"summary", "start_iso", "end_iso"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return handleCreateEvent(ctx, cal, args)
		},
	})
}

func handleCreateEvent(ctx context.Context, cal calendar.Gateway, args map[string]any) (string, error) {
	summary, _ := args["summary"].(string)
	startISO, _ := args["start_iso"].(string)
	endISO, _ := args["end_iso"].(string)
	if summary == "" {
		return "", fmt.Errorf("summary is required")
	}
	if startISO == "" {
		return "", fmt.Errorf("start_iso is required")
	}
	if endISO == "" {
		return "", fmt.Errorf("end_iso is required")
	}
	if cal == nil {
		return "", fmt.Errorf("calendar not configured")
	}

	tz := "UTC"
	if v, ok := args["timezone"].(string); ok && v != "" {
		tz = v
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	start, err := parseEventTime(startISO, loc)
	if err != nil {
		return "", fmt.Errorf("parse start_iso: %w", err)
	}
	end, err := parseEventTime(endISO, loc)
	if err != nil {
		return "", fmt.Errorf("parse end_iso: %w", err)
	}

	ev := calendar.Event{
		Summary:   summary,
		Start:     start,
		End:       end,
		Timezone:  tz,
		Attendees: attendeeEmails(args),
	}
	created, err := cal.CreateEvent(ctx, ev)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}

	return fmt.Sprintf("Event '%s' created for %s.", created.Summary, created.Start.Format("Mon Jan 2 15:04")), nil
}

func parseEventTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
}

func attendeeEmails(args map[string]any) []string {
	var raw []any
	if obj, ok := args["attendees"].(map[string]any); ok {
		raw, _ = obj["emails"].([]any)
	}
	if raw == nil {
		raw, _ = args["attendee_emails"].([]any)
	}
	var emails []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			emails = append(emails, s)
		}
	}
	return emails
}
