package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"helmsman/internal/logging"
)

// BreakerState represents the state of a dependency's circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker half of a policy.
type BreakerConfig struct {
	// FailureThreshold is the minimum number of executions within the
	// sampling window before the failure ratio is evaluated. Default: 10.
	FailureThreshold int

	// SamplingDuration is the sliding time window over which failures are
	// counted. Default: 30 seconds.
	SamplingDuration time.Duration

	// BreakDuration is how long the circuit stays open before permitting
	// half-open probes. Default: 15 seconds.
	BreakDuration time.Duration

	// HalfOpenMaxAttempts is the number of successful probes needed in
	// half-open state before the circuit closes. Default: 1.
	HalfOpenMaxAttempts int
}

// RetryConfig configures the retry half of a policy.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
	// TotalTimeout bounds the elapsed time across all attempts.
	TotalTimeout time.Duration
	// RetryableStatusCodes adds HTTP statuses to the built-in transient set
	// (408, 429, 5xx).
	RetryableStatusCodes []int
}

// DefaultBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    10,
		SamplingDuration:    30 * time.Second,
		BreakDuration:       15 * time.Second,
		HalfOpenMaxAttempts: 1,
	}
}

// DefaultRetryConfig returns sensible defaults for retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
		TotalTimeout:      30 * time.Second,
	}
}

// failureRateThreshold is the fixed ratio at which the circuit opens once
// minimum throughput has been observed.
const failureRateThreshold = 0.5

// Policy wraps a named dependency with a circuit breaker around a retry
// policy. The composition order is fixed: the breaker is the outer boundary,
// retries run inside it.
type Policy struct {
	name     string
	breaker  circuitbreaker.CircuitBreaker[any]
	executor failsafe.Executor[any]
	logger   logging.Logger
}

// NewPolicy creates a resilience policy for the named dependency.
func NewPolicy(name string, bc BreakerConfig, rc RetryConfig, logger logging.Logger) *Policy {
	if bc.FailureThreshold <= 0 {
		bc.FailureThreshold = 10
	}
	if bc.SamplingDuration <= 0 {
		bc.SamplingDuration = 30 * time.Second
	}
	if bc.BreakDuration <= 0 {
		bc.BreakDuration = 15 * time.Second
	}
	if bc.HalfOpenMaxAttempts <= 0 {
		bc.HalfOpenMaxAttempts = 1
	}
	if rc.MaxRetries < 0 {
		rc.MaxRetries = 0
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = 100 * time.Millisecond
	}
	if rc.MaxDelay < rc.InitialDelay {
		rc.MaxDelay = rc.InitialDelay
	}
	if rc.BackoffMultiplier < 1 {
		rc.BackoffMultiplier = 2.0
	}

	breakerBuilder := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(failureRateThreshold, uint(bc.FailureThreshold), bc.SamplingDuration).
		WithDelay(bc.BreakDuration).
		WithSuccessThreshold(uint(bc.HalfOpenMaxAttempts)).
		HandleIf(func(_ any, err error) bool {
			// Cancellation is the caller's choice, not a dependency failure.
			return err != nil && !errors.Is(err, context.Canceled)
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from := convertState(event.OldState)
			to := convertState(event.NewState)
			breakerTransitions.WithLabelValues(name, to.String()).Inc()
			if logger != nil {
				logger.WithFields(logging.Fields{
					"dependency": name,
					"from_state": from.String(),
					"to_state":   to.String(),
				}).Warn("Circuit breaker state change")
			}
		})
	breaker := breakerBuilder.Build()

	retryBuilder := retrypolicy.NewBuilder[any]().
		WithBackoffFactor(rc.InitialDelay, rc.MaxDelay, rc.BackoffMultiplier).
		WithMaxRetries(rc.MaxRetries).
		HandleIf(func(_ any, err error) bool {
			return isTransient(err, rc.RetryableStatusCodes)
		}).
		OnRetry(func(event failsafe.ExecutionEvent[any]) {
			retriesTotal.WithLabelValues(name).Inc()
			if logger != nil {
				logger.WithFields(logging.Fields{
					"dependency": name,
					"attempt":    event.Attempts(),
				}).WithError(event.LastError()).Debug("Retrying transient failure")
			}
		})
	if rc.JitterFactor > 0 {
		retryBuilder = retryBuilder.WithJitterFactor(rc.JitterFactor)
	}
	if rc.TotalTimeout > 0 {
		retryBuilder = retryBuilder.WithMaxDuration(rc.TotalTimeout)
	}
	retry := retryBuilder.Build()

	return &Policy{
		name:     name,
		breaker:  breaker,
		executor: failsafe.With(breaker, retry),
		logger:   logger,
	}
}

// Execute runs fn through the policy and returns its value.
func (p *Policy) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	val, err := p.executor.WithContext(ctx).Get(fn)
	if IsCircuitOpen(err) {
		rejectedTotal.WithLabelValues(p.name).Inc()
	}
	return val, err
}

// Run runs a value-less fn through the policy.
func (p *Policy) Run(ctx context.Context, fn func() error) error {
	_, err := p.Execute(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// Name returns the dependency name this policy guards.
func (p *Policy) Name() string {
	return p.name
}

// State returns the current circuit breaker state.
func (p *Policy) State() BreakerState {
	return convertState(p.breaker.State())
}

// IsCircuitOpen reports whether err is a fast rejection from an open circuit.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrOpen)
}

// IsRetriesExceeded reports whether err surfaced after the retry budget ran out.
func IsRetriesExceeded(err error) bool {
	return errors.Is(err, retrypolicy.ErrExceeded)
}

func convertState(state circuitbreaker.State) BreakerState {
	switch state {
	case circuitbreaker.ClosedState:
		return StateClosed
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}
