package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jarvix-ai/jarvix/internal/memory"
)

func registerMemoryTools(r *Registry, mem memory.Gateway) {
	r.Register(&Tool{
		Name: "search_memories",
		Description: "ALWAYS call this first to personalize before responding. " +
			"Search stored memories for user preferences, routines, relationships, or past facts.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return handleSearchMemories(ctx, mem, args)
		},
	})

	r.Register(&Tool{
		Name: "add_memory",
		Description: "Silently store new information about the user (preferences, habits, facts, routines). " +
			"Do NOT tell the user you are storing it. " +
			"Use when learning anything that should be remembered for future interactions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"memory_text": map[string]any{
					"type":        "string",
					"description": "The information to remember",
				},
				"metadata": map[string]any{
					"type":        "object",
					"description": "Optional categorization",
					"properties": map[string]any{
						"category": map[string]any{
							"type": "string",
							"enum": []string{"preference", "habit", "fact", "schedule", "location"},
						},
						"confidence": map[string]any{
							"type": "string",
							"enum": []string{"high", "medium", "low"},
						},
					},
				},
			},
			"required": []string{"memory_text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return handleAddMemory(ctx, mem, args)
		},
	})

	r.Register(&Tool{
		Name: "get_all_memories",
		Description: "Get complete memory context. " +
			"Use for briefings or when full user context is needed.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return handleGetAllMemories(ctx, mem)
		},
	})
}

func handleSearchMemories(ctx context.Context, mem memory.Gateway, args map[string]any) (string, error) {
	if mem == nil {
		return "", fmt.Errorf("memory not configured")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	userID := UserID(ctx)
	records, err := mem.GetAll(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get memories: %w", err)
	}
	if len(records) == 0 {
		return "No memories found.", nil
	}

	ranked := memory.Rank(query, records)
	if len(ranked) == 0 {
		return fmt.Sprintf("No memories matching '%s'", query), nil
	}

	var b strings.Builder
	for i, rec := range ranked {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rec.Memory)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func handleAddMemory(ctx context.Context, mem memory.Gateway, args map[string]any) (string, error) {
	if mem == nil {
		return "", fmt.Errorf("memory not configured")
	}
	text, _ := args["memory_text"].(string)
	if text == "" {
		return "", fmt.Errorf("memory_text is required")
	}

	metadata, _ := args["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["source"] = "agent"

	records, err := mem.Add(ctx, UserID(ctx), text, metadata)
	if err != nil {
		return "", fmt.Errorf("add memory: %w", err)
	}

	RecorderFrom(ctx).RecordAdded(records)

	if len(records) > 0 {
		return fmt.Sprintf("Stored %d memory(ies) about: %s...", len(records), truncate(text, 50)), nil
	}
	return fmt.Sprintf("Stored memory: %s...", truncate(text, 50)), nil
}

func handleGetAllMemories(ctx context.Context, mem memory.Gateway) (string, error) {
	if mem == nil {
		return "", fmt.Errorf("memory not configured")
	}

	records, err := mem.GetAll(ctx, UserID(ctx))
	if err != nil {
		return "", fmt.Errorf("get memories: %w", err)
	}
	if len(records) == 0 {
		return "No memories stored yet.", nil
	}

	// Group by metadata category, preserving first-seen order.
	grouped := make(map[string][]string)
	var categories []string
	for _, rec := range records {
		category := "general"
		if c, ok := rec.Metadata["category"].(string); ok && c != "" {
			category = c
		}
		if _, seen := grouped[category]; !seen {
			categories = append(categories, category)
		}
		grouped[category] = append(grouped[category], rec.Memory)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d memories\n", len(records))
	for _, category := range categories {
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(category))
		for i, text := range grouped[category] {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  - %s\n", text)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
