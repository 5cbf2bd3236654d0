package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jarvix-ai/jarvix/internal/calendar"
	"github.com/jarvix-ai/jarvix/internal/llm"
	"github.com/jarvix-ai/jarvix/internal/memory"
)

type fakeMemory struct {
	records []memory.Record
	addErr  error
}

func (f *fakeMemory) Add(ctx context.Context, userID, text string, metadata map[string]any) ([]memory.Record, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	rec := memory.Record{ID: fmt.Sprintf("m%d", len(f.records)+1), Memory: text, Metadata: metadata}
	f.records = append(f.records, rec)
	return []memory.Record{rec}, nil
}

func (f *fakeMemory) GetAll(ctx context.Context, userID string) ([]memory.Record, error) {
	return f.records, nil
}

func (f *fakeMemory) Search(ctx context.Context, userID, query string) ([]memory.Record, error) {
	return memory.Rank(query, f.records), nil
}

type fakeCalendar struct {
	created []calendar.Event
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	ev.ID = "ev1"
	f.created = append(f.created, ev)
	return ev, nil
}

func (f *fakeCalendar) ListUpcoming(ctx context.Context, window time.Duration) ([]calendar.Event, error) {
	return nil, nil
}

func testRegistry(mem memory.Gateway, cal calendar.Gateway) *Registry {
	return NewRegistry(mem, cal, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func execute(t *testing.T, r *Registry, name string, args map[string]any) (string, error) {
	t.Helper()
	ctx := WithUserID(context.Background(), "u1")
	ctx = WithRecorder(ctx, &Recorder{})
	return r.Execute(ctx, llm.ToolCall{ID: "c1", Name: name, Arguments: args})
}

func TestRegistry_Definitions(t *testing.T) {
	r := testRegistry(&fakeMemory{}, &fakeCalendar{})
	defs := r.Definitions()

	want := []string{"search_memories", "add_memory", "get_all_memories", "create_calendar_event"}
	if len(defs) != len(want) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("defs[%d].Name = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestRegistry_UnknownToolIsUnhandled(t *testing.T) {
	r := testRegistry(&fakeMemory{}, nil)

	result, err := execute(t, r, "launch_rocket", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != `{"status":"unhandled","tool":"launch_rocket"}` {
		t.Errorf("result = %q", result)
	}
}

func TestSearchMemories(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		r := testRegistry(&fakeMemory{}, nil)
		result, err := execute(t, r, "search_memories", map[string]any{"query": "coffee"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result != "No memories found." {
			t.Errorf("result = %q", result)
		}
	})

	t.Run("no match", func(t *testing.T) {
		mem := &fakeMemory{records: []memory.Record{{ID: "m1", Memory: "drives a blue sedan"}}}
		r := testRegistry(mem, nil)
		result, err := execute(t, r, "search_memories", map[string]any{"query": "quantum physics"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if result != "No memories matching 'quantum physics'" {
			t.Errorf("result = %q", result)
		}
	})

	t.Run("ranked matches numbered", func(t *testing.T) {
		mem := &fakeMemory{records: []memory.Record{
			{ID: "m1", Memory: "drives a blue sedan"},
			{ID: "m2", Memory: "likes oat milk lattes"},
		}}
		r := testRegistry(mem, nil)
		result, err := execute(t, r, "search_memories", map[string]any{"query": "oat milk lattes"})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !strings.HasPrefix(result, "1. likes oat milk lattes") {
			t.Errorf("result = %q", result)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		r := testRegistry(&fakeMemory{}, nil)
		if _, err := execute(t, r, "search_memories", nil); err == nil {
			t.Error("expected error for missing query")
		}
	})
}

func TestAddMemory(t *testing.T) {
	mem := &fakeMemory{}
	r := testRegistry(mem, nil)

	ctx := WithUserID(context.Background(), "u1")
	rec := &Recorder{}
	ctx = WithRecorder(ctx, rec)

	result, err := r.Execute(ctx, llm.ToolCall{Name: "add_memory", Arguments: map[string]any{
		"memory_text": "prefers the scenic route home",
		"metadata":    map[string]any{"category": "preference"},
	}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(result, "Stored 1 memory(ies) about: ") {
		t.Errorf("result = %q", result)
	}

	if len(mem.records) != 1 {
		t.Fatalf("stored records = %d, want 1", len(mem.records))
	}
	if src := mem.records[0].Metadata["source"]; src != "agent" {
		t.Errorf("metadata source = %v, want agent", src)
	}
	if cat := mem.records[0].Metadata["category"]; cat != "preference" {
		t.Errorf("metadata category = %v, want preference", cat)
	}

	added := rec.Added()
	if len(added) != 1 || added[0].Memory != "prefers the scenic route home" {
		t.Errorf("recorder added = %+v", added)
	}
}

func TestAddMemory_RequiresText(t *testing.T) {
	r := testRegistry(&fakeMemory{}, nil)
	if _, err := execute(t, r, "add_memory", map[string]any{}); err == nil {
		t.Error("expected error for missing memory_text")
	}
}

func TestGetAllMemories_GroupsByCategory(t *testing.T) {
	mem := &fakeMemory{records: []memory.Record{
		{ID: "m1", Memory: "prefers jazz", Metadata: map[string]any{"category": "preference"}},
		{ID: "m2", Memory: "works at the hospital", Metadata: map[string]any{"category": "fact"}},
		{ID: "m3", Memory: "dislikes highways", Metadata: map[string]any{"category": "preference"}},
		{ID: "m4", Memory: "no category here"},
	}}
	r := testRegistry(mem, nil)

	result, err := execute(t, r, "get_all_memories", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.HasPrefix(result, "Total: 4 memories") {
		t.Errorf("missing total header: %q", result)
	}
	for _, want := range []string{"PREFERENCE:", "FACT:", "GENERAL:", "- prefers jazz", "- works at the hospital", "- no category here"} {
		if !strings.Contains(result, want) {
			t.Errorf("result missing %q:\n%s", want, result)
		}
	}
}

func TestGetAllMemories_Empty(t *testing.T) {
	r := testRegistry(&fakeMemory{}, nil)
	result, err := execute(t, r, "get_all_memories", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result != "No memories stored yet." {
		t.Errorf("result = %q", result)
	}
}

func TestMemoryTools_NilGateway(t *testing.T) {
	r := testRegistry(nil, nil)
	for _, name := range []string{"search_memories", "add_memory", "get_all_memories"} {
		args := map[string]any{"query": "x", "memory_text": "x"}
		if _, err := execute(t, r, name, args); err == nil {
			t.Errorf("%s: expected error with no gateway", name)
		}
	}
}

func TestCreateCalendarEvent(t *testing.T) {
	cal := &fakeCalendar{}
	r := testRegistry(nil, cal)

	result, err := execute(t, r, "create_calendar_event", map[string]any{
		"summary":   "Dentist",
		"start_iso": "2026-09-01T10:00:00",
		"end_iso":   "2026-09-01T10:30:00",
		"attendees": map[string]any{"emails": []any{"pat@example.com"}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result, "Event 'Dentist' created for ") {
		t.Errorf("result = %q", result)
	}

	if len(cal.created) != 1 {
		t.Fatalf("created events = %d, want 1", len(cal.created))
	}
	ev := cal.created[0]
	if ev.Summary != "Dentist" {
		t.Errorf("summary = %q", ev.Summary)
	}
	if !ev.End.After(ev.Start) {
		t.Errorf("end %v not after start %v", ev.End, ev.Start)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0] != "pat@example.com" {
		t.Errorf("attendees = %v", ev.Attendees)
	}
}

func TestCreateCalendarEvent_MissingEndRejectedBeforeGateway(t *testing.T) {
	cal := &fakeCalendar{}
	r := testRegistry(nil, cal)

	_, err := execute(t, r, "create_calendar_event", map[string]any{
		"summary":   "Dentist",
		"start_iso": "2026-09-01T10:00:00",
	})
	if err == nil {
		t.Fatal("expected validation error for missing end_iso")
	}
	if len(cal.created) != 0 {
		t.Error("gateway was called despite invalid arguments")
	}
}

func TestCreateCalendarEvent_LegacyAttendeeField(t *testing.T) {
	cal := &fakeCalendar{}
	r := testRegistry(nil, cal)

	_, err := execute(t, r, "create_calendar_event", map[string]any{
		"summary":         "Standup",
		"start_iso":       "2026-09-01T09:00:00Z",
		"end_iso":         "2026-09-01T09:15:00Z",
		"attendee_emails": []any{"sam@example.com"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(cal.created) != 1 || len(cal.created[0].Attendees) != 1 {
		t.Fatalf("created = %+v", cal.created)
	}
}

func TestCreateCalendarEvent_BadTimezone(t *testing.T) {
	r := testRegistry(nil, &fakeCalendar{})
	_, err := execute(t, r, "create_calendar_event", map[string]any{
		"summary":   "x",
		"start_iso": "2026-09-01T10:00:00",
		"end_iso":   "2026-09-01T11:00:00",
		"timezone":  "Mars/Olympus",
	})
	if err == nil {
		t.Error("expected error for unknown timezone")
	}
}
