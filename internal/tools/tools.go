// Package tools defines the tools the model can call and the registry
// that executes them.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jarvix-ai/jarvix/internal/calendar"
	"github.com/jarvix-ai/jarvix/internal/llm"
	"github.com/jarvix-ai/jarvix/internal/memory"
)

// Tool represents one callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the available tools in registration order.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in memory and calendar
// tools bound to the given gateways. Either gateway may be nil; its
// tools then report unavailability at call time rather than failing
// registration.
func NewRegistry(mem memory.Gateway, cal calendar.Gateway, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
	registerMemoryTools(r, mem)
	registerCalendarTools(r, cal)
	return r
}

// Register adds a tool to the registry, replacing any previous tool of
// the same name.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Definitions returns the tool definitions to expose to the model, in
// registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// unhandledResult is the structured reply for a tool call naming no
// registered tool. The loop must always be able to append a tool
// response for every call the model issued, so this is a result, not
// an error.
type unhandledResult struct {
	Status string `json:"status"`
	Tool   string `json:"tool"`
}

// Execute runs the named tool with the given arguments. Unknown tool
// names yield a structured "unhandled" result with no error; handler
// failures return an error for the caller to convert into a
// user-safe result string.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	tool := r.tools[call.Name]
	if tool == nil {
		r.logger.Warn("tool call for unregistered tool", "tool", call.Name)
		data, err := json.Marshal(unhandledResult{Status: "unhandled", Tool: call.Name})
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return tool.Handler(ctx, args)
}
