package engine

import (
	"sync"
)

// EventType identifies a stream event. Delta events are droppable under
// backpressure; the rest define turn state and are never dropped.
type EventType string

const (
	EventDelta      EventType = "delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventFinal      EventType = "final"
	EventError      EventType = "error"
)

// Event is one item on the per-turn stream.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

func (t EventType) droppable() bool {
	return t == EventDelta
}

// EventStream is a bounded per-turn event queue. The capacity bounds the
// number of queued delta events: when the consumer falls behind, the oldest
// queued delta is dropped to admit a new one. Turn-defining events
// (tool_call, tool_result, final, error) are always admitted in emission
// order and never dropped.
//
// Publish never blocks. Next blocks until an event is available or the
// stream is closed.
type EventStream struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	deltaCap  int
	dropFull  bool
	closed    bool
	dropCount int
}

// NewEventStream creates a stream whose queue admits at most capacity delta
// events. dropWhenFull selects the overflow policy for deltas: drop the
// oldest queued delta (true) or the incoming one (false).
func NewEventStream(capacity int, dropWhenFull bool) *EventStream {
	if capacity <= 0 {
		capacity = 256
	}
	s := &EventStream{deltaCap: capacity, dropFull: dropWhenFull}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish enqueues an event without blocking. It reports whether the event
// was admitted; only delta events under backpressure are ever refused or
// displaced.
func (s *EventStream) Publish(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if event.Type.droppable() && s.queuedDeltas() >= s.deltaCap {
		s.dropCount++
		streamDroppedDeltas.Inc()
		if !s.dropFull {
			return false
		}
		s.dropOldestDelta()
	}

	s.queue = append(s.queue, event)
	s.cond.Signal()
	return true
}

// Next returns the next event in order. ok is false once the stream is
// closed and drained.
func (s *EventStream) Next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Event{}, false
	}
	event := s.queue[0]
	s.queue = s.queue[1:]
	return event, true
}

// Close marks the stream finished. Queued events remain readable; further
// publishes are refused.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}

// Dropped reports how many delta events were discarded under backpressure.
func (s *EventStream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropCount
}

func (s *EventStream) queuedDeltas() int {
	n := 0
	for _, event := range s.queue {
		if event.Type.droppable() {
			n++
		}
	}
	return n
}

func (s *EventStream) dropOldestDelta() {
	for i, event := range s.queue {
		if event.Type.droppable() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
