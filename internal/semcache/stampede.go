package semcache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// StampedeGuard coalesces concurrent identical turns so only one executes
// the pipeline while the rest wait for its result. Keys must already be
// tenant-scoped.
type StampedeGuard struct {
	group singleflight.Group
}

func NewStampedeGuard() *StampedeGuard {
	return &StampedeGuard{}
}

// Do runs fn once per in-flight key. Callers that joined an existing flight
// get the leader's result and shared=true.
func (g *StampedeGuard) Do(ctx context.Context, key string, fn func() (string, error)) (string, bool, error) {
	type result struct {
		answer string
	}
	val, err, shared := g.group.Do(key, func() (any, error) {
		answer, err := fn()
		if err != nil {
			return nil, err
		}
		return result{answer: answer}, nil
	})
	if shared {
		stampedeCoalesced.Inc()
	}
	if err != nil {
		return "", shared, err
	}
	if ctx.Err() != nil {
		return "", shared, ctx.Err()
	}
	return val.(result).answer, shared, nil
}

// Forget drops the in-flight entry so the next caller starts a fresh
// execution instead of joining a stale one.
func (g *StampedeGuard) Forget(key string) {
	g.group.Forget(key)
}
