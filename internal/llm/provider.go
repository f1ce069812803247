package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Provider is the LLM endpoint collaborator. Complete always streams; callers
// that want a single-shot response drain the stream with Collect.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error)
}

type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type Chunk struct {
	Content   string
	ToolCalls []ToolCall
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolCall struct {
	// Index is the call's position within the response. Streaming providers
	// deliver one call as several fragments sharing an index, with the id and
	// name only on the first one.
	Index     int    `json:"-"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Completion is a fully drained response.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Collect drains a stream into a single Completion, invoking onDelta for each
// content chunk when non-nil. The stream is closed before returning.
func Collect(stream Stream, onDelta func(string) error) (Completion, error) {
	defer func() { _ = stream.Close() }()

	var content strings.Builder
	var calls []ToolCall
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Completion{}, err
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if onDelta != nil {
				if err := onDelta(chunk.Content); err != nil {
					return Completion{}, err
				}
			}
		}
		if len(chunk.ToolCalls) > 0 {
			calls = MergeToolCalls(calls, chunk.ToolCalls)
		}
	}
	return Completion{Content: content.String(), ToolCalls: calls}, nil
}

// MergeToolCalls accumulates tool calls across streaming chunks. A fragment
// attaches to the call at its index and appends its argument text; the id and
// name arrive on the first fragment only. A fragment whose id names a
// different call than the one at its index starts a new call, in first-seen
// order.
func MergeToolCalls(existing, incoming []ToolCall) []ToolCall {
	for _, inc := range incoming {
		if inc.Index < len(existing) {
			cur := &existing[inc.Index]
			if inc.ID == "" || cur.ID == "" || inc.ID == cur.ID {
				if inc.ID != "" {
					cur.ID = inc.ID
				}
				if inc.Name != "" {
					cur.Name = inc.Name
				}
				cur.Arguments += inc.Arguments
				continue
			}
		}
		existing = append(existing, inc)
	}
	return existing
}

type sseStream struct {
	resp   *http.Response
	reader *bufio.Reader
	decode func([]byte) (Chunk, error)
}

func newSSEStream(resp *http.Response, decode func([]byte) (Chunk, error)) Stream {
	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		decode: decode,
	}
}

func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}

func (s *sseStream) Recv() (Chunk, error) {
	for {
		data, err := s.readEvent()
		if err != nil {
			return Chunk{}, err
		}
		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return Chunk{}, io.EOF
		}
		chunk, err := s.decode(data)
		if err != nil {
			return Chunk{}, err
		}
		if chunk.Content == "" && len(chunk.ToolCalls) == 0 {
			continue
		}
		return chunk, nil
	}
}

func (s *sseStream) readEvent() ([]byte, error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if errors.Is(err, io.EOF) {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			return nil, io.EOF
		}
	}
}
