package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMem0Client_Add(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/memories/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Token test-key" {
			t.Errorf("authorization = %q", auth)
		}

		var body struct {
			Messages []map[string]string `json:"messages"`
			UserID   string              `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.UserID != "u1" {
			t.Errorf("user_id = %q", body.UserID)
		}
		if len(body.Messages) != 1 || body.Messages[0]["content"] != "likes early starts" {
			t.Errorf("messages = %v", body.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "rec-1", "memory": "likes early starts", "event": "ADD"},
			},
		})
	}))
	defer srv.Close()

	c := NewMem0Client(srv.URL, "test-key", nil)
	recs, err := c.Add(context.Background(), "u1", "likes early starts", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "rec-1" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestMem0Client_SearchRanksClientSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/memories/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "rec-1", "memory": "drives a blue sedan"},
				{"id": "rec-2", "memory": "coffee with oat milk"},
			},
		})
	}))
	defer srv.Close()

	c := NewMem0Client(srv.URL, "test-key", nil)
	recs, err := c.Search(context.Background(), "u1", "oat milk coffee")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) == 0 || recs[0].ID != "rec-2" {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].Score == 0 {
		t.Error("score not set by ranking")
	}
}

func TestMem0Client_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewMem0Client(srv.URL, "bad-key", nil)
	if _, err := c.GetAll(context.Background(), "u1"); err == nil {
		t.Error("expected error on 401")
	}
}

func TestMem0Client_ExtractTagsSource(t *testing.T) {
	var gotMetadata map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Metadata map[string]any `json:"metadata"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotMetadata = body.Metadata
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewMem0Client(srv.URL, "test-key", nil)
	recs, err := c.Extract(context.Background(), "u1", "I always park on level two")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records = %+v, want none when service extracts nothing", recs)
	}
	if gotMetadata["source"] != "conversation" {
		t.Errorf("metadata = %v", gotMetadata)
	}
}
