// Package agent drives conversational turns: it composes context,
// round-trips the model against the tool registry, and guarantees a
// short, speakable reply on every outcome.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jarvix-ai/jarvix/internal/calendar"
	"github.com/jarvix-ai/jarvix/internal/events"
	"github.com/jarvix-ai/jarvix/internal/llm"
	"github.com/jarvix-ai/jarvix/internal/memory"
	"github.com/jarvix-ai/jarvix/internal/stream"
	"github.com/jarvix-ai/jarvix/internal/tools"
)

// maxRounds bounds model/tool round-trips within a single turn. The
// budget resets every turn; there is no cross-turn accounting.
const maxRounds = 4

const (
	replyTimeout = "Network is slow. Want me to keep going or try again?"
	replyRecover = "Still here—network hiccup. Go ahead."
)

const (
	defaultMaxWords       = 35
	defaultUpcomingWindow = 60 * time.Minute
)

type turnState int

const (
	stateAwaitingModel turnState = iota
	stateExecutingTools
	stateDone
	stateAborted
)

// Config wires the orchestrator's collaborators. Client and Tools are
// required; everything else degrades gracefully when absent.
type Config struct {
	Client   llm.Client
	Tools    *tools.Registry
	Memory   memory.Gateway
	Calendar calendar.Gateway
	Sessions *SessionStore
	Bus      *events.Bus
	Logger   *slog.Logger

	Model          string
	SystemPrompt   string
	MaxWords       int
	UpcomingWindow time.Duration

	// Now allows tests to pin the clock.
	Now func() time.Time
}

// Loop runs conversational turns.
type Loop struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = defaultMaxWords
	}
	if cfg.UpcomingWindow <= 0 {
		cfg.UpcomingWindow = defaultUpcomingWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{cfg: cfg, logger: cfg.Logger}
}

// TurnRequest describes one incoming turn. Messages carries the
// client-side history including the latest user utterance; when empty,
// server-side session history is used and Message supplies the
// utterance (the trigger bridge path).
type TurnRequest struct {
	UserID   string
	Trigger  string
	Message  string
	Messages []llm.Message
}

// TurnCallbacks receive turn output as it becomes available. All
// fields are optional.
type TurnCallbacks struct {
	// OnRetrieved fires once, after the memory/calendar prefetch,
	// with the memories retrieved for this turn.
	OnRetrieved func([]memory.Record)

	// OnToken fires for each text increment of the final reply.
	OnToken func(string)

	// OnToolCall fires after each executed tool call.
	OnToolCall func(stream.ToolCallEvent)
}

// TurnResult is the outcome of one turn. Content is never empty.
type TurnResult struct {
	Content      string
	Retrieved    []memory.Record
	ToolLog      []stream.ToolCallEvent
	Rounds       int
	UsedFallback bool

	added   []memory.Record
	pending <-chan []memory.Record
}

// AwaitAdded blocks until the deferred memory extraction finishes (or
// ctx expires) and returns every record stored during the turn, both
// tool-added and extracted. Call it only after the reply text has been
// flushed so slow memory writes never delay visible output.
func (r *TurnResult) AwaitAdded(ctx context.Context) []memory.Record {
	added := r.added
	if r.pending != nil {
		select {
		case recs := <-r.pending:
			added = append(added, recs...)
		case <-ctx.Done():
		}
	}
	return added
}

// Run executes one turn. It never returns an error and never returns
// empty content: model failures, empty responses, and exhausted round
// budgets all degrade to short spoken-style fallback lines.
func (l *Loop) Run(ctx context.Context, req TurnRequest, cb TurnCallbacks) *TurnResult {
	userID := req.UserID
	if userID == "" {
		userID = "default"
	}

	history, userMsg := l.splitHistory(req)
	userText := userMsg.Text()

	l.cfg.Bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{
		"user_id": userID,
		"trigger": req.Trigger,
	})

	retrieved, upcoming := l.prefetch(ctx, userID, userText)
	if len(retrieved) > 0 {
		l.cfg.Bus.Emit(events.SourceAgent, events.KindMemoryGet, map[string]any{
			"user_id": userID,
			"count":   len(retrieved),
		})
	}
	if cb.OnRetrieved != nil {
		cb.OnRetrieved(retrieved)
	}

	call := l.buildCallMessages(history, userMsg, req.Trigger, retrieved, upcoming)

	ctx = tools.WithUserID(ctx, userID)
	recorder := &tools.Recorder{}
	ctx = tools.WithRecorder(ctx, recorder)

	result := &TurnResult{Retrieved: retrieved}

	// Deferred extraction runs alongside the model round-trip and is
	// only awaited after the reply has been flushed.
	if ex, ok := l.cfg.Memory.(memory.Extractor); ok && userText != "" {
		pending := make(chan []memory.Record, 1)
		result.pending = pending
		go func() {
			recs, err := ex.Extract(context.WithoutCancel(ctx), userID, userText)
			if err != nil {
				l.logger.Warn("memory extraction failed", "error", err)
			}
			pending <- recs
		}()
	}

	content, call := l.runRounds(ctx, call, cb, result)

	content = enforceBrevity(content, l.cfg.MaxWords)
	result.Content = content
	result.added = recorder.Added()

	l.cfg.Sessions.Replace(userID, call)

	for _, chunk := range strings.SplitAfter(content, " ") {
		if cb.OnToken != nil {
			cb.OnToken(chunk)
		}
	}

	l.cfg.Bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{
		"user_id":  userID,
		"rounds":   result.Rounds,
		"fallback": result.UsedFallback,
	})
	return result
}

// runRounds drives the model/tool state machine and returns the chosen
// reply content plus the final call-message list.
func (l *Loop) runRounds(ctx context.Context, call []llm.Message, cb TurnCallbacks, result *TurnResult) (string, []llm.Message) {
	defs := l.cfg.Tools.Definitions()

	var (
		st       = stateAwaitingModel
		final    string
		lastSeen string
		errLine  string
		pending  []llm.ToolCall
	)

	for st == stateAwaitingModel || st == stateExecutingTools {
		switch st {
		case stateAwaitingModel:
			if result.Rounds >= maxRounds {
				st = stateAborted
				continue
			}
			result.Rounds++

			l.cfg.Bus.Emit(events.SourceAgent, events.KindModelCall, map[string]any{
				"round": result.Rounds,
			})
			resp, err := l.cfg.Client.Chat(ctx, llm.ChatRequest{
				Model:    l.cfg.Model,
				Messages: call,
				Tools:    defs,
			})
			if err != nil {
				l.logger.Warn("model call failed", "round", result.Rounds, "error", err)
				errLine = classifyFailure(err)
				st = stateAborted
				continue
			}
			if resp == nil {
				st = stateAborted
				continue
			}

			msg := resp.Message
			if t := msg.Text(); t != "" {
				lastSeen = t
			}
			call = append(call, msg)

			if len(msg.ToolCalls) == 0 {
				final = msg.Text()
				st = stateDone
				continue
			}
			pending = msg.ToolCalls
			st = stateExecutingTools

		case stateExecutingTools:
			for _, tc := range pending {
				if tc.ID == "" {
					tc.ID = uuid.NewString()
				}
				l.cfg.Bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
					"tool": tc.Name,
				})
				res, err := l.cfg.Tools.Execute(ctx, tc)
				if err != nil {
					l.logger.Warn("tool failed", "tool", tc.Name, "error", err)
					res = toolFailureLine(tc.Name)
				}
				l.cfg.Bus.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
					"tool": tc.Name,
				})

				call = append(call, llm.ToolMessage(tc.ID, res))
				ev := stream.ToolCallEvent{ID: tc.ID, Name: tc.Name, Args: tc.Arguments, Result: res}
				result.ToolLog = append(result.ToolLog, ev)
				if cb.OnToolCall != nil {
					cb.OnToolCall(ev)
				}
			}
			pending = nil
			st = stateAwaitingModel
		}
	}

	content := final
	if st == stateAborted {
		result.UsedFallback = true
		switch {
		case errLine != "":
			content = errLine
		case lastSeen != "":
			content = lastSeen
		default:
			content = replyRecover
		}
		call = append(call, llm.AssistantMessage(content))
	}
	if content == "" {
		result.UsedFallback = true
		content = replyRecover
	}
	return content, call
}

func (l *Loop) splitHistory(req TurnRequest) ([]llm.Message, llm.Message) {
	msgs := req.Messages
	if len(msgs) == 0 {
		msgs = l.cfg.Sessions.Get(req.UserID)
	}
	if req.Message != "" {
		return msgs, llm.UserMessage(req.Message)
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == llm.RoleUser {
		return msgs[:n-1], msgs[n-1]
	}
	return msgs, llm.UserMessage("")
}

func (l *Loop) buildCallMessages(history []llm.Message, userMsg llm.Message, trigger string, retrieved []memory.Record, upcoming []calendar.Event) []llm.Message {
	call := make([]llm.Message, 0, len(history)+4)
	if l.cfg.SystemPrompt != "" && (len(history) == 0 || history[0].Role != llm.RoleSystem) {
		call = append(call, llm.SystemMessage(l.cfg.SystemPrompt))
	}
	call = append(call, history...)
	if trigger != "" {
		call = append(call, llm.SystemMessage(fmt.Sprintf("(Trigger: %s)", trigger)))
	}
	if note := contextNote(l.cfg.Now(), upcoming, l.cfg.UpcomingWindow); note != "" {
		call = append(call, llm.SystemMessage(note))
	}
	if len(retrieved) > 0 {
		var b strings.Builder
		b.WriteString("Relevant memories about this user:")
		for _, rec := range retrieved {
			b.WriteString("\n- ")
			b.WriteString(rec.Memory)
		}
		call = append(call, llm.SystemMessage(b.String()))
	}
	return append(call, userMsg)
}

// prefetch fetches relevant memories and upcoming calendar events
// concurrently. Both are read-only; failures are logged and treated as
// empty results.
func (l *Loop) prefetch(ctx context.Context, userID, query string) ([]memory.Record, []calendar.Event) {
	var (
		wg        sync.WaitGroup
		retrieved []memory.Record
		upcoming  []calendar.Event
	)
	if l.cfg.Memory != nil && query != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := l.cfg.Memory.Search(ctx, userID, query)
			if err != nil {
				l.logger.Warn("memory search failed", "error", err)
				return
			}
			retrieved = recs
		}()
	}
	if l.cfg.Calendar != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs, err := l.cfg.Calendar.ListUpcoming(ctx, l.cfg.UpcomingWindow)
			if err != nil {
				l.logger.Warn("calendar lookup failed", "error", err)
				return
			}
			upcoming = evs
		}()
	}
	wg.Wait()
	return retrieved, upcoming
}

// contextNote renders the ephemeral time-of-day system note, with an
// upcoming-events section appended only when the window is non-empty.
func contextNote(now time.Time, upcoming []calendar.Event, window time.Duration) string {
	if now.IsZero() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[Context] Today is %s %s (%s)",
		now.Weekday(), timeBucket(now.Hour()), now.Format("15:04"))
	if len(upcoming) > 0 {
		fmt.Fprintf(&b, ". Upcoming within %dm: ", int(window.Minutes()))
		for i, ev := range upcoming {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s UTC | %s", ev.Start.UTC().Format("15:04"), ev.Summary)
		}
	}
	return b.String()
}

func timeBucket(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// classifyFailure maps a model-call error to a short spoken line.
// Internal errors never reach the user verbatim.
func classifyFailure(err error) string {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") {
		return replyTimeout
	}
	return replyRecover
}

func toolFailureLine(name string) string {
	switch name {
	case "create_calendar_event":
		return "Couldn't create that event."
	case "add_memory":
		return "Couldn't save that just now."
	case "search_memories", "get_all_memories":
		return "Couldn't reach memory right now."
	default:
		return "That didn't work."
	}
}
