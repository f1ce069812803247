package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"helmsman/internal/llm"
)

func assemblerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAssembleShape(t *testing.T) {
	assembler := NewAssembler(2000, assemblerLogger(), []PackProvider{
		staticProvider(Pack{Name: "catalog", Priority: 1, Content: "tool notes"}),
	})

	out := assembler.Assemble(context.Background(), Request{
		Question: "How many streams?",
		History: []llm.Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
	})

	if len(out.Messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(out.Messages))
	}
	system := out.Messages[0]
	if system.Role != "system" || !strings.HasPrefix(system.Content, SystemPreamble) {
		t.Fatal("system message must start with the fixed preamble")
	}
	if !strings.Contains(system.Content, "tool notes") {
		t.Fatal("pack content must be injected into the system prompt")
	}
	if !strings.Contains(system.Content, UntrustedContextHeader) {
		t.Fatal("pack content must sit under the untrusted-content fence")
	}
	last := out.Messages[len(out.Messages)-1]
	if last.Role != "user" || last.Content != "How many streams?" {
		t.Fatalf("the question must be the final message, got %+v", last)
	}
}

func TestAssembleCallerPacksOverrideProviders(t *testing.T) {
	assembler := NewAssembler(2000, assemblerLogger(), []PackProvider{
		staticProvider(Pack{Name: "catalog", Priority: 1, Content: "stale"}),
	})

	out := assembler.Assemble(context.Background(), Request{
		Question: "q",
		Packs:    []Pack{{Name: "catalog", Priority: 1, Content: "fresh"}},
	})

	system := out.Messages[0].Content
	if strings.Contains(system, "stale") || !strings.Contains(system, "fresh") {
		t.Fatal("caller packs must override provider packs of the same name")
	}
	if len(out.Packs) != 1 || out.Packs[0].Content != "fresh" {
		t.Fatalf("fitted packs must reflect the override, got %+v", out.Packs)
	}
}

func TestAssembleTrimsHistoryAndPacksUnderPressure(t *testing.T) {
	big := strings.Repeat("x", 5000)
	assembler := NewAssembler(400, assemblerLogger(), []PackProvider{
		staticProvider(
			Pack{Name: "critical", Priority: 1, Content: big},
			Pack{Name: "optional", Priority: 9, Content: big},
		),
	})

	out := assembler.Assemble(context.Background(), Request{
		Question: "latest question",
		History: []llm.Message{
			{Role: "tool", Content: big},
			{Role: "assistant", Content: big},
			{Role: "user", Content: "old question"},
		},
	})

	system := out.Messages[0].Content
	if strings.Contains(system, "optional") {
		t.Fatal("low-priority packs must be dropped under budget pressure")
	}
	if !strings.Contains(system, TruncationMarker) {
		t.Fatal("the surviving top-priority pack should be trimmed with a marker")
	}

	last := out.Messages[len(out.Messages)-1]
	if last.Content != "latest question" {
		t.Fatal("the question survives any amount of budget pressure")
	}
	for _, msg := range out.Messages[1 : len(out.Messages)-1] {
		if msg.Role == "tool" {
			t.Fatal("tool messages are the first history evicted")
		}
		if msg.Role == "user" && msg.Content == "old question" {
			t.Fatal("older user messages are evicted before the history fits")
		}
	}
}
