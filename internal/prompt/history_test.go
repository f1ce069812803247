package prompt

import (
	"strings"
	"testing"

	"helmsman/internal/llm"
)

func rolesOf(messages []llm.Message) []string {
	roles := make([]string, len(messages))
	for i, msg := range messages {
		roles[i] = msg.Role
	}
	return roles
}

func TestTrimHistoryEvictsToolMessagesFirst(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("u", 50)},
		{Role: "assistant", Content: strings.Repeat("a", 50)},
		{Role: "tool", Content: strings.Repeat("t", 50)},
		{Role: "tool", Content: strings.Repeat("t", 50)},
		{Role: "user", Content: strings.Repeat("u", 50)},
	}

	trimmed := TrimHistory(history, 160, 4)
	for _, msg := range trimmed {
		if msg.Role == "tool" {
			t.Fatalf("tool messages must be evicted first, got roles %v", rolesOf(trimmed))
		}
	}
	if len(trimmed) != 3 {
		t.Fatalf("expected 3 surviving messages, got %v", rolesOf(trimmed))
	}
}

func TestTrimHistoryEvictsAssistantBeforeUser(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("u", 50)},
		{Role: "assistant", Content: strings.Repeat("a", 50)},
		{Role: "assistant", Content: strings.Repeat("b", 50)},
		{Role: "user", Content: strings.Repeat("v", 50)},
	}

	// Budget for two messages; retain only the newest assistant.
	trimmed := TrimHistory(history, 110, 1)
	roles := rolesOf(trimmed)

	// The oldest assistant goes before any user message does.
	for _, msg := range trimmed {
		if msg.Role == "assistant" && msg.Content[0] == 'a' {
			t.Fatalf("expected oldest assistant evicted, got %v", roles)
		}
	}
	last := trimmed[len(trimmed)-1]
	if last.Role != "user" || last.Content[0] != 'v' {
		t.Fatalf("latest user message must survive, got %v", roles)
	}
}

func TestTrimHistoryNeverEvictsLatestUser(t *testing.T) {
	history := []llm.Message{
		{Role: "tool", Content: strings.Repeat("t", 40)},
		{Role: "assistant", Content: strings.Repeat("a", 40)},
		{Role: "user", Content: strings.Repeat("u", 500)},
	}

	trimmed := TrimHistory(history, 10, 0)
	if len(trimmed) != 1 {
		t.Fatalf("expected only the latest user message, got %v", rolesOf(trimmed))
	}
	if trimmed[0].Role != "user" {
		t.Fatalf("the latest user message must never be evicted, got %v", rolesOf(trimmed))
	}
}

func TestTrimHistoryKeepsEverythingUnderBudget(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	trimmed := TrimHistory(history, 1000, 4)
	if len(trimmed) != 2 {
		t.Fatalf("history under budget must be untouched, got %v", rolesOf(trimmed))
	}
}

func TestTrimHistoryEvictionFullOrder(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("1", 30)},
		{Role: "tool", Content: strings.Repeat("2", 30)},
		{Role: "assistant", Content: strings.Repeat("3", 30)},
		{Role: "tool", Content: strings.Repeat("4", 30)},
		{Role: "assistant", Content: strings.Repeat("5", 30)},
		{Role: "user", Content: strings.Repeat("6", 30)},
	}

	// Room for exactly one message: only the latest user fits.
	trimmed := TrimHistory(history, 30, 0)
	if len(trimmed) != 1 || trimmed[0].Content[0] != '6' {
		t.Fatalf("expected only the latest user message to survive, got %v", rolesOf(trimmed))
	}
}
