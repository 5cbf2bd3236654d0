package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Mem0Client talks to a mem0-style hosted memory API. Search is done
// client-side by ranking the user's full record set, matching the
// behavior this service was built against.
type Mem0Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMem0Client creates a hosted memory client. baseURL defaults to the
// mem0 cloud endpoint when empty.
func NewMem0Client(baseURL, apiKey string, logger *slog.Logger) *Mem0Client {
	if baseURL == "" {
		baseURL = "https://api.mem0.ai"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mem0Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// wireRecord is the hosted API's record shape.
type wireRecord struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Event     string         `json:"event,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

func (w wireRecord) record() Record {
	return Record{
		ID:        w.ID,
		Memory:    w.Memory,
		Metadata:  w.Metadata,
		CreatedAt: w.CreatedAt,
	}
}

// Add stores memory text for a user. The hosted service extracts facts
// from the text and may return zero or more resulting records.
func (c *Mem0Client) Add(ctx context.Context, userID, text string, metadata map[string]any) ([]Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if text == "" {
		return nil, fmt.Errorf("memory text is required")
	}

	payload := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": text}},
		"user_id":  userID,
	}
	if metadata != nil {
		payload["metadata"] = metadata
	}

	var result struct {
		Results []wireRecord `json:"results"`
	}
	if err := c.do(ctx, "POST", "/v1/memories/", payload, &result); err != nil {
		return nil, fmt.Errorf("add memory: %w", err)
	}

	records := make([]Record, 0, len(result.Results))
	for _, w := range result.Results {
		rec := w.record()
		if rec.Memory == "" {
			rec.Memory = text
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetAll returns every record stored for the user.
func (c *Mem0Client) GetAll(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	payload := map[string]any{
		"filters": map[string]any{
			"AND": []map[string]any{{"user_id": userID}},
		},
	}

	var result struct {
		Results []wireRecord `json:"results"`
	}
	if err := c.do(ctx, "POST", "/v2/memories/", payload, &result); err != nil {
		return nil, fmt.Errorf("get memories: %w", err)
	}

	records := make([]Record, 0, len(result.Results))
	for _, w := range result.Results {
		records = append(records, w.record())
	}
	return records, nil
}

// Extract asks the hosted service to infer durable facts from
// conversation text. The service decides what, if anything, is worth
// keeping; an empty result is normal.
func (c *Mem0Client) Extract(ctx context.Context, userID, text string) ([]Record, error) {
	return c.Add(ctx, userID, text, map[string]any{"source": "conversation"})
}

// Search ranks the user's records against the query.
func (c *Mem0Client) Search(ctx context.Context, userID, query string) ([]Record, error) {
	records, err := c.GetAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Rank(query, records), nil
}

func (c *Mem0Client) do(ctx context.Context, method, path string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
