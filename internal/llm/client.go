package llm

import "context"

// Client is the provider-neutral chat interface used by the agent loop.
type Client interface {
	// Chat sends a chat completion request and returns the full response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil,
	// tokens are delivered to it as they arrive. The returned response
	// carries the accumulated message and final metadata.
	ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) (*ChatResponse, error)
}
