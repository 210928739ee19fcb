package runner

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/planrun/planrun/internal/coordinator"
	"github.com/planrun/planrun/internal/graph"
)

// RetryPolicy configures exponential backoff for the retry decorator.
// Retry is deliberately a policy object wrapped around a Runner, not part
// of the coordinator: the core's failure semantics stay independent of any
// particular retry strategy.
type RetryPolicy struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages one circuit breaker per resource key, so a
// persistently failing build scope stops consuming retry budget while
// unrelated scopes continue.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 3,                // Test requests allowed in half-open state
		Interval:    0,                // Never clear counts automatically
		Timeout:     30 * time.Second, // Open duration before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not a task failure
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[key] = cb
	return cb
}

// RetryRunner wraps a Runner with exponential-backoff retry and per-key
// circuit breaking. Failures are retried; timeouts and cancellations are
// not (re-running timed-out work doubles the damage), and an open breaker
// fails fast.
type RetryRunner struct {
	inner    coordinator.Runner
	policy   RetryPolicy
	breakers *BreakerRegistry
}

// NewRetryRunner wraps inner with the given policy.
func NewRetryRunner(inner coordinator.Runner, policy RetryPolicy) *RetryRunner {
	return &RetryRunner{
		inner:    inner,
		policy:   policy,
		breakers: NewBreakerRegistry(),
	}
}

// errAttemptFailed carries a failed Result through the backoff machinery.
type errAttemptFailed struct {
	res coordinator.Result
}

func (e *errAttemptFailed) Error() string {
	if e.res.Err != nil {
		return e.res.Err.Error()
	}
	return "task attempt failed"
}

// Run implements coordinator.Runner.
func (r *RetryRunner) Run(ctx context.Context, task *graph.Task, ws *coordinator.Workspace) coordinator.Result {
	cb := r.breakers.Get(breakerKey(task))

	var last coordinator.Result
	attempted := false

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		out, err := cb.Execute(func() (interface{}, error) {
			res := r.inner.Run(ctx, task, ws)
			if res.Outcome == coordinator.OutcomeSuccess {
				return res, nil
			}
			return res, &errAttemptFailed{res: res}
		})

		if res, ok := out.(coordinator.Result); ok {
			last = res
			attempted = true
		}

		if err == nil {
			return nil
		}

		// Open breaker: fail fast, no more attempts
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if last.Outcome == coordinator.OutcomeTimeout {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.policy.InitialInterval
	policy.MaxInterval = r.policy.MaxInterval
	policy.MaxElapsedTime = r.policy.MaxElapsedTime
	policy.Multiplier = r.policy.Multiplier
	policy.RandomizationFactor = r.policy.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil {
		return last
	}

	if !attempted || last.Outcome == coordinator.OutcomeSuccess {
		// Breaker rejected the call before the inner runner ever ran
		return coordinator.Result{Outcome: coordinator.OutcomeFailure, Err: err}
	}
	return last
}

// breakerKey groups breaker state by resource key; tasks without one share
// a default breaker.
func breakerKey(task *graph.Task) string {
	if task.ResourceKey != "" {
		return task.ResourceKey
	}
	return "default"
}
