package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

// CalDAVClient is a calendar gateway backed by a CalDAV collection.
type CalDAVClient struct {
	client       *caldav.Client
	calendarPath string
	logger       *slog.Logger
}

// CalDAVConfig holds connection settings for a CalDAV calendar.
type CalDAVConfig struct {
	// URL is the CalDAV endpoint (server root or principal URL).
	URL string
	// CalendarPath is the path of the calendar collection to use.
	CalendarPath string
	// Username and Password enable HTTP basic auth when non-empty.
	Username string
	Password string
}

// NewCalDAVClient connects to the configured CalDAV endpoint.
func NewCalDAVClient(cfg CalDAVConfig, logger *slog.Logger) (*CalDAVClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("caldav url is required")
	}
	if cfg.CalendarPath == "" {
		return nil, fmt.Errorf("caldav calendar path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var hc webdav.HTTPClient = http.DefaultClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(http.DefaultClient, cfg.Username, cfg.Password)
	}

	client, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	return &CalDAVClient{
		client:       client,
		calendarPath: strings.TrimSuffix(cfg.CalendarPath, "/") + "/",
		logger:       logger,
	}, nil
}

// CreateEvent stores a VEVENT in the calendar collection.
func (c *CalDAVClient) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.Summary == "" {
		return Event{}, fmt.Errorf("event summary is required")
	}
	if ev.Start.IsZero() || ev.End.IsZero() {
		return Event{}, fmt.Errorf("event start and end are required")
	}
	if !ev.End.After(ev.Start) {
		return Event{}, fmt.Errorf("event end must be after start")
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, "-//jarvix//jarvix//EN")
	cal.Props.SetText(ical.PropVersion, "2.0")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, ev.ID)
	event.Props.SetText(ical.PropSummary, ev.Summary)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
	for _, email := range ev.Attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = "mailto:" + email
		event.Props.Add(prop)
	}
	cal.Children = append(cal.Children, event.Component)

	path := c.calendarPath + ev.ID + ".ics"
	if _, err := c.client.PutCalendarObject(ctx, path, cal); err != nil {
		return Event{}, fmt.Errorf("put calendar object: %w", err)
	}

	c.logger.Debug("calendar event created", "id", ev.ID, "summary", ev.Summary)
	return ev, nil
}

// ListUpcoming queries the collection for events starting within the
// window.
func (c *CalDAVClient) ListUpcoming(ctx context.Context, window time.Duration) ([]Event, error) {
	now := time.Now().UTC()
	until := now.Add(window)

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			Comps: []caldav.CalendarCompRequest{{
				Name:     ical.CompEvent,
				AllProps: true,
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: now,
				End:   until,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var events []Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ve := range obj.Data.Events() {
			ev, err := decodeEvent(ve)
			if err != nil {
				c.logger.Debug("skipping undecodable event", "path", obj.Path, "error", err)
				continue
			}
			if ev.Start.Before(now) || ev.Start.After(until) {
				continue
			}
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func decodeEvent(ve ical.Event) (Event, error) {
	start, err := ve.DateTimeStart(time.UTC)
	if err != nil {
		return Event{}, fmt.Errorf("event start: %w", err)
	}
	end, err := ve.DateTimeEnd(time.UTC)
	if err != nil {
		return Event{}, fmt.Errorf("event end: %w", err)
	}

	ev := Event{Start: start.UTC(), End: end.UTC()}
	if prop := ve.Props.Get(ical.PropUID); prop != nil {
		ev.ID = prop.Value
	}
	if prop := ve.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}
	for _, prop := range ve.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, strings.TrimPrefix(prop.Value, "mailto:"))
	}
	return ev, nil
}
