package resilience

import (
	"sync"

	"helmsman/internal/logging"
)

// Registry hands out one immutable Policy per dependency name. Policies are
// created lazily and live for the process lifetime; they are shared across
// all turns and tenants, keyed only by dependency name.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	breaker  BreakerConfig
	retry    RetryConfig
	logger   logging.Logger
}

// NewRegistry creates a registry using the given defaults for every policy.
func NewRegistry(bc BreakerConfig, rc RetryConfig, logger logging.Logger) *Registry {
	return &Registry{
		policies: make(map[string]*Policy),
		breaker:  bc,
		retry:    rc,
		logger:   logger,
	}
}

// For returns the policy for name, constructing it on first use.
func (r *Registry) For(name string) *Policy {
	r.mu.RLock()
	p, ok := r.policies[name]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[name]; ok {
		return p
	}
	p = NewPolicy(name, r.breaker, r.retry, r.logger)
	r.policies[name] = p
	return p
}

// States returns the current breaker state per known dependency.
func (r *Registry) States() map[string]BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]BreakerState, len(r.policies))
	for name, p := range r.policies {
		states[name] = p.State()
	}
	return states
}
