package semcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStampedeGuardSingleExecution(t *testing.T) {
	guard := NewStampedeGuard()
	var executions int32
	var wg sync.WaitGroup

	const callers = 20
	answers := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			answer, _, err := guard.Do(context.Background(), "same-key", func() (string, error) {
				n := atomic.AddInt32(&executions, 1)
				time.Sleep(30 * time.Millisecond)
				return fmt.Sprintf("answer-%d", n), nil
			})
			if err != nil {
				t.Errorf("caller %d: unexpected error: %v", idx, err)
				return
			}
			answers[idx] = answer
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Fatalf("expected the factory to run exactly once, ran %d times", got)
	}
	for i, answer := range answers {
		if answer != "answer-1" {
			t.Fatalf("caller %d: expected shared answer-1, got %q", i, answer)
		}
	}
}

func TestStampedeGuardRecomputesAfterSettlement(t *testing.T) {
	guard := NewStampedeGuard()
	var executions int32

	run := func() string {
		answer, _, err := guard.Do(context.Background(), "key", func() (string, error) {
			return fmt.Sprintf("v%d", atomic.AddInt32(&executions, 1)), nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return answer
	}

	if run() != "v1" || run() != "v2" {
		t.Fatal("expected a fresh execution per settled flight")
	}
}

func TestStampedeGuardDistinctKeys(t *testing.T) {
	guard := NewStampedeGuard()
	var executions int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, _ = guard.Do(context.Background(), fmt.Sprintf("key-%d", idx), func() (string, error) {
				atomic.AddInt32(&executions, 1)
				time.Sleep(10 * time.Millisecond)
				return "done", nil
			})
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 5 {
		t.Fatalf("expected one execution per key, got %d", got)
	}
}
