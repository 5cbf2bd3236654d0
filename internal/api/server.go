// Package api implements the HTTP API: the framed chat stream, the
// speech proxy endpoints, and the debug event feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jarvix-ai/jarvix/internal/agent"
	"github.com/jarvix-ai/jarvix/internal/buildinfo"
	"github.com/jarvix-ai/jarvix/internal/events"
	"github.com/jarvix-ai/jarvix/internal/llm"
	"github.com/jarvix-ai/jarvix/internal/memory"
	"github.com/jarvix-ai/jarvix/internal/speech"
	"github.com/jarvix-ai/jarvix/internal/stream"
)

// writeTimeout is the server write deadline, reset during tool rounds
// so long turns do not sever the stream.
const writeTimeout = 120 * time.Second

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	loop     *agent.Loop
	sessions *agent.SessionStore
	speech   *speech.Client
	voice    string
	bus      *events.Bus
	logger   *slog.Logger
	server   *http.Server

	// unavailable carries the reason chat turns cannot run (missing
	// provider credentials). Empty means ready.
	unavailable string
}

// NewServer creates a new API server.
func NewServer(address string, port int, loop *agent.Loop, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		loop:    loop,
		logger:  logger,
	}
}

// SetSessions configures the session store for the reset endpoint.
func (s *Server) SetSessions(store *agent.SessionStore) {
	s.sessions = store
}

// SetSpeech configures the speech proxy endpoints.
func (s *Server) SetSpeech(client *speech.Client, defaultVoice string) {
	s.speech = client
	s.voice = defaultVoice
}

// SetBus configures the debug event feed.
func (s *Server) SetBus(bus *events.Bus) {
	s.bus = bus
}

// SetUnavailable marks chat turns as unavailable with the given
// reason. Used when required provider credentials are absent.
func (s *Server) SetUnavailable(reason string) {
	s.unavailable = reason
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/speech", s.handleSpeech)
	mux.HandleFunc("POST /api/session/reset", s.handleSessionReset)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout, // Long for streaming responses
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the turn request body. Tools is accepted for wire
// compatibility but ignored: the server-side registry is authoritative
// for what the model may call.
type ChatRequest struct {
	Messages []llm.Message              `json:"messages"`
	System   string                     `json:"system,omitempty"`
	Tools    map[string]json.RawMessage `json:"tools,omitempty"`
	UserID   string                     `json:"userId"`
	Trigger  string                     `json:"trigger,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.unavailable != "" {
		s.errorResponse(w, http.StatusServiceUnavailable, s.unavailable)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msgs := req.Messages
	if req.System != "" && (len(msgs) == 0 || msgs[0].Role != llm.RoleSystem) {
		msgs = append([]llm.Message{llm.SystemMessage(req.System)}, msgs...)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	enc := stream.NewEncoder(w)
	rc := http.NewResponseController(w)
	resetDeadline := func() {
		if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	streamed := false
	cb := agent.TurnCallbacks{
		OnRetrieved: func(recs []memory.Record) {
			if len(recs) > 0 {
				enc.Annotation(stream.NewMemoryGet(recs))
			}
			if req.Trigger != "" {
				enc.Annotation(stream.NewTrigger(req.Trigger))
			}
			resetDeadline()
		},
		OnToken: func(t string) {
			if t != "" {
				streamed = true
				enc.Text(t)
			}
			resetDeadline()
		},
		OnToolCall: func(ev stream.ToolCallEvent) {
			enc.ToolCall(ev)
			resetDeadline()
		},
	}

	result := s.loop.Run(r.Context(), agent.TurnRequest{
		UserID:   req.UserID,
		Trigger:  req.Trigger,
		Messages: msgs,
	}, cb)

	if !streamed && result.Content != "" {
		enc.Text(result.Content)
	}

	// Deferred memory writes are awaited only after the text is out.
	if added := result.AwaitAdded(r.Context()); len(added) > 0 {
		enc.Annotation(stream.NewMemoryUpdate(memoryUpdates(added)))
		s.bus.Emit(events.SourceAPI, events.KindMemoryUpdate, map[string]any{
			"user_id": req.UserID,
			"count":   len(added),
		})
	}
	if len(result.ToolLog) > 0 {
		enc.Annotation(stream.NewToolCalls(result.ToolLog))
	}
}

func memoryUpdates(records []memory.Record) []stream.MemoryUpdate {
	updates := make([]stream.MemoryUpdate, 0, len(records))
	for _, rec := range records {
		updates = append(updates, stream.MemoryUpdate{
			ID:    rec.ID,
			Data:  stream.MemoryUpdateData{Memory: rec.Memory},
			Event: "ADD",
		})
	}
	return updates
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "speech not configured")
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 25<<20))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read audio body")
		return
	}
	if len(audio) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "audio body is empty")
		return
	}

	text, err := s.speech.Transcribe(r.Context(), audio, r.Header.Get("Content-Type"))
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "transcription failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"text": text}, s.logger)
}

// SpeechRequest is the text-to-speech request body.
type SpeechRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"responseFormat,omitempty"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "speech not configured")
		return
	}

	var req SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = s.voice
	}

	audio, err := s.speech.Synthesize(r.Context(), speech.SynthesisRequest{
		Text:           speech.SanitizeForVoice(req.Text),
		Voice:          voice,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		s.logger.Error("synthesis failed", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := w.Write(audio); err != nil {
		s.logger.Debug("failed to write audio response", "error", err)
	}
}

func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}

	s.sessions.Reset(req.UserID)
	s.logger.Info("session reset", "user_id", req.UserID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Jarvix",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}, s.logger)
}
