package llm

import (
	"errors"
	"io"
	"testing"
)

type chunkStream struct {
	chunks []Chunk
	pos    int
	err    error
	closed bool
}

func (s *chunkStream) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *chunkStream) Close() error {
	s.closed = true
	return nil
}

func TestCollectAccumulatesContentAndCalls(t *testing.T) {
	stream := &chunkStream{chunks: []Chunk{
		{Content: "Hel"},
		{Content: "lo"},
		{ToolCalls: []ToolCall{{Index: 0, ID: "1", Name: "lookup", Arguments: `{"a"`}}},
		{ToolCalls: []ToolCall{{Index: 0, Arguments: `:1}`}}},
	}}

	var deltas []string
	completion, err := Collect(stream, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completion.Content != "Hello" {
		t.Fatalf("expected Hello, got %q", completion.Content)
	}
	if len(completion.ToolCalls) != 1 || completion.ToolCalls[0].Arguments != `{"a":1}` {
		t.Fatalf("expected one merged tool call, got %+v", completion.ToolCalls)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 delta callbacks, got %d", len(deltas))
	}
	if !stream.closed {
		t.Fatal("Collect must close the stream")
	}
}

func TestCollectPropagatesStreamError(t *testing.T) {
	boom := errors.New("connection reset")
	stream := &chunkStream{chunks: []Chunk{{Content: "partial"}}, err: boom}

	_, err := Collect(stream, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the stream error, got %v", err)
	}
	if !stream.closed {
		t.Fatal("stream must be closed on error")
	}
}

func TestMergeToolCallsReassemblesFragments(t *testing.T) {
	// One call split over frames: id and name arrive first, argument text
	// accumulates in later fragments that carry no id.
	var merged []ToolCall
	merged = MergeToolCalls(merged, []ToolCall{{Index: 0, ID: "call_1", Name: "lookup_streams"}})
	merged = MergeToolCalls(merged, []ToolCall{{Index: 0, Arguments: `{"status":`}})
	merged = MergeToolCalls(merged, []ToolCall{{Index: 0, Arguments: ` "live"}`}})

	if len(merged) != 1 {
		t.Fatalf("expected 1 reassembled call, got %d: %+v", len(merged), merged)
	}
	if merged[0].ID != "call_1" || merged[0].Name != "lookup_streams" {
		t.Fatalf("id and name must survive reassembly, got %+v", merged[0])
	}
	if merged[0].Arguments != `{"status": "live"}` {
		t.Fatalf("argument fragments must concatenate, got %q", merged[0].Arguments)
	}
}

func TestMergeToolCallsParallelCalls(t *testing.T) {
	var merged []ToolCall
	merged = MergeToolCalls(merged, []ToolCall{{Index: 0, ID: "a", Name: "first"}})
	merged = MergeToolCalls(merged, []ToolCall{{Index: 1, ID: "b", Name: "second"}})
	merged = MergeToolCalls(merged, []ToolCall{{Index: 0, Arguments: `{}`}})
	merged = MergeToolCalls(merged, []ToolCall{{Index: 1, Arguments: `{"x":1}`}})

	if len(merged) != 2 {
		t.Fatalf("expected 2 calls, got %d: %+v", len(merged), merged)
	}
	if merged[0].Arguments != `{}` || merged[1].Arguments != `{"x":1}` {
		t.Fatalf("fragments must attach by index, got %+v", merged)
	}
}

func TestMergeToolCallsKeepsOrder(t *testing.T) {
	merged := MergeToolCalls(nil, []ToolCall{{ID: "a", Name: "first"}})
	merged = MergeToolCalls(merged, []ToolCall{{ID: "b", Name: "second"}})
	merged = MergeToolCalls(merged, []ToolCall{{ID: "a", Name: "first", Arguments: `{}`}})

	if len(merged) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(merged))
	}
	if merged[0].Name != "first" || merged[1].Name != "second" {
		t.Fatalf("order must follow first appearance, got %+v", merged)
	}
	if merged[0].Arguments != `{}` {
		t.Fatalf("later frames must update arguments, got %+v", merged[0])
	}
}

func TestDecodeOpenAIChunkCarriesToolCallIndex(t *testing.T) {
	head := []byte(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup_streams","arguments":""}}]}}]}`)
	tail := []byte(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"status\":\"live\"}"}}]}}]}`)

	first, err := decodeOpenAIChunk(head)
	if err != nil {
		t.Fatalf("decode head: %v", err)
	}
	second, err := decodeOpenAIChunk(tail)
	if err != nil {
		t.Fatalf("decode tail: %v", err)
	}

	merged := MergeToolCalls(first.ToolCalls, second.ToolCalls)
	if len(merged) != 1 {
		t.Fatalf("expected 1 call, got %+v", merged)
	}
	if merged[0].Name != "lookup_streams" || merged[0].Arguments != `{"status":"live"}` {
		t.Fatalf("unexpected reassembly: %+v", merged[0])
	}
}

func TestNewProviderSelection(t *testing.T) {
	if _, err := NewProvider(Config{Provider: "openai", Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("openai provider: %v", err)
	}
	if _, err := NewProvider(Config{Provider: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("ollama provider: %v", err)
	}
	if _, err := NewProvider(Config{Provider: "carrier-pigeon", Model: "x"}); err == nil {
		t.Fatal("unknown providers must be rejected")
	}
}
