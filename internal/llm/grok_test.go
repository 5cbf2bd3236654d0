package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGrokClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}

		var req struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
			Tools  []struct {
				Type     string `json:"type"`
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tools"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("stream = true for Chat")
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "search_memories" {
			t.Errorf("tools = %+v", req.Tools)
		}

		fmt.Fprint(w, `{"model":"grok-3-mini","created":1756500000,"choices":[{"message":{"role":"assistant","content":"Sure thing."},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	}))
	defer srv.Close()

	c := NewGrokClient(srv.URL, "test-key", nil)
	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:    "grok-3-mini",
		Messages: []Message{UserMessage("hello")},
		Tools:    []ToolDefinition{{Name: "search_memories"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Text() != "Sure thing." {
		t.Errorf("text = %q", resp.Message.Text())
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGrokClient_ChatStream_Tokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		chunks := []string{
			`data: {"model":"grok-3-mini","choices":[{"delta":{"content":"Turn "}}]}`,
			`: keepalive comment`,
			`data: {"choices":[{"delta":{"content":"left."}}]}`,
			`data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":8,"completion_tokens":2}}`,
			`data: [DONE]`,
		}
		for _, line := range chunks {
			fmt.Fprintf(w, "%s\n\n", line)
			fl.Flush()
		}
	}))
	defer srv.Close()

	c := NewGrokClient(srv.URL, "test-key", nil)

	var tokens []string
	var done bool
	resp, err := c.ChatStream(context.Background(), ChatRequest{Model: "grok-3-mini"}, func(ev StreamEvent) {
		switch ev.Kind {
		case KindToken:
			tokens = append(tokens, ev.Token)
		case KindDone:
			done = true
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if got := resp.Message.Text(); got != "Turn left." {
		t.Errorf("text = %q", got)
	}
	if len(tokens) != 2 {
		t.Errorf("token events = %d, want 2", len(tokens))
	}
	if !done {
		t.Error("no done event")
	}
	if resp.InputTokens != 8 || resp.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGrokClient_ChatStream_ReassemblesToolCallFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Arguments arrive as string fragments split mid-JSON.
		chunks := []string{
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-9","function":{"name":"create_calendar_event","arguments":"{\"summ"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ary\":\"Dentist\"}"}}]}}]}`,
			`data: [DONE]`,
		}
		for _, line := range chunks {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	defer srv.Close()

	c := NewGrokClient(srv.URL, "test-key", nil)

	var started []*ToolCall
	resp, err := c.ChatStream(context.Background(), ChatRequest{}, func(ev StreamEvent) {
		if ev.Kind == KindToolCallStart {
			started = append(started, ev.ToolCall)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call-9" || tc.Name != "create_calendar_event" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments["summary"] != "Dentist" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
	if len(started) != 1 {
		t.Errorf("start events = %d, want 1", len(started))
	}
}

func TestGrokClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewGrokClient(srv.URL, "bad", nil)
	if _, err := c.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error on 401")
	}
}
