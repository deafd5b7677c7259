package rulz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the Retry combinator.
const (
	// Metrics.
	RetryAttemptsTotal  = metricz.Key("retry.attempts.total")
	RetryPassedTotal    = metricz.Key("retry.passed.total")
	RetryExhaustedTotal = metricz.Key("retry.exhausted.total")

	// Hook event keys.
	RetryEventAttempt   = hookz.Key("retry.attempt")
	RetryEventPassed    = hookz.Key("retry.passed")
	RetryEventExhausted = hookz.Key("retry.exhausted")
)

// RetryEvent is emitted via hookz for each attempt and on terminal
// outcomes, carrying enough to monitor flaky rules in production.
type RetryEvent struct {
	Name        Name          // Combinator name
	RuleName    Name          // Name of the retried rule
	Attempt     int           // Attempt number (1-based)
	MaxAttempts int           // Configured attempt budget
	Passed      bool          // Whether this attempt passed
	LastError   any           // The failure or recovered panic of this attempt
	Delay       time.Duration // Wait before the next attempt (attempt events only)
	Timestamp   time.Time     // When the event occurred
}

// DelayFunc computes the wait before the next attempt from the 1-based
// number of the attempt that just failed.
type DelayFunc func(attempt int) time.Duration

// FixedDelay waits the same base duration between every attempt.
func FixedDelay(base time.Duration) DelayFunc {
	return func(int) time.Duration { return base }
}

// LinearDelay waits base, 2*base, 3*base, ...
func LinearDelay(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration { return base * time.Duration(attempt) }
}

// ExponentialDelay waits base, 2*base, 4*base, ...
func ExponentialDelay(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration { return base << (attempt - 1) }
}

// ShouldRetryFunc decides whether to keep retrying after a failed attempt.
// lastErr is uniform: the failed Result's payload for a modeled failure,
// or the recovered panic value for an execution fault, whichever ended
// the attempt.
type ShouldRetryFunc func(lastErr any, attempt int) bool

// Retry evaluates the rule up to a configured number of attempts,
// returning the first pass. A panicking attempt is captured and counted
// exactly like an explicit failure, regardless of safety mode; retrying
// is pointless if the first fault aborts the loop. After each failure the
// ShouldRetry predicate (default: always retry) is consulted; returning
// false ends the loop immediately with that failure's own payload, not the
// sentinel. Between attempts Retry waits per its delay strategy (default:
// fixed 100ms), honoring context cancellation during the wait.
//
// When every attempt fails, Retry returns the distinguished
// ErrMaxRetriesExceeded sentinel through the transform rather than
// the last real error, so callers can tell exhaustion from a verdict.
//
// The wait uses an injectable clockz.Clock; tests drive a fake clock.
//
// Example:
//
//	retry := rulz.NewRetry("flaky-svc", fraudCheck, 5).
//	    WithDelay(rulz.ExponentialDelay(100 * time.Millisecond)).
//	    WithShouldRetry(func(lastErr any, _ int) bool { return lastErr != errPermanent })
type Retry[I, E, C any] struct {
	name        Name
	rule        Rule[I, E, C]
	maxAttempts int
	delay       DelayFunc
	shouldRetry ShouldRetryFunc
	mode        ErrorMode
	transform   Transform[E]
	clock       clockz.Clock
	mu          sync.RWMutex
	metrics     *metricz.Registry
	hooks       *hookz.Hooks[RetryEvent]
}

// NewRetry creates a Retry combinator. maxAttempts below 1 is clamped to 1.
func NewRetry[I, E, C any](name Name, rule Rule[I, E, C], maxAttempts int) *Retry[I, E, C] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	metrics := metricz.New()
	metrics.Counter(RetryAttemptsTotal)
	metrics.Counter(RetryPassedTotal)
	metrics.Counter(RetryExhaustedTotal)

	return &Retry[I, E, C]{
		name:        name,
		rule:        rule,
		maxAttempts: maxAttempts,
		delay:       FixedDelay(100 * time.Millisecond),
		metrics:     metrics,
		hooks:       hookz.New[RetryEvent](),
	}
}

// Evaluate implements the Rule interface.
func (r *Retry[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	r.mu.RLock()
	rule := r.rule
	maxAttempts := r.maxAttempts
	delay := r.delay
	shouldRetry := r.shouldRetry
	mode, transform := r.mode, r.transform
	clock := r.getClock()
	r.mu.RUnlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.metrics.Counter(RetryAttemptsTotal).Inc()

		res, rec := r.evalAttempt(ctx, rule, input, shared, mode, transform)
		if rec == nil && res.Passed() {
			r.metrics.Counter(RetryPassedTotal).Inc()
			_ = r.hooks.Emit(ctx, RetryEventPassed, RetryEvent{ //nolint:errcheck
				Name:        r.name,
				RuleName:    rule.Name(),
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Passed:      true,
				Timestamp:   time.Now(),
			})
			return res
		}

		var lastErr any
		switch {
		case rec != nil:
			lastErr = rec
		case res.Failed():
			lastErr = res.Error()
		default:
			lastErr = ErrInvalidResult
		}

		if shouldRetry != nil && !shouldRetry(lastErr, attempt) {
			// Caller vetoed further attempts: surface this failure's own
			// payload, not the exhaustion sentinel.
			return failFrom(lastErr, transform)
		}

		wait := time.Duration(0)
		if attempt < maxAttempts {
			wait = delay(attempt)
		}
		_ = r.hooks.Emit(ctx, RetryEventAttempt, RetryEvent{ //nolint:errcheck
			Name:        r.name,
			RuleName:    rule.Name(),
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			LastError:   lastErr,
			Delay:       wait,
			Timestamp:   time.Now(),
		})

		if attempt < maxAttempts && wait > 0 {
			select {
			case <-clock.After(wait):
			case <-ctx.Done():
				return Fail(transformValue[E](transform, ctx.Err()))
			}
		}
	}

	r.metrics.Counter(RetryExhaustedTotal).Inc()
	_ = r.hooks.Emit(ctx, RetryEventExhausted, RetryEvent{ //nolint:errcheck
		Name:        r.name,
		RuleName:    rule.Name(),
		Attempt:     maxAttempts,
		MaxAttempts: maxAttempts,
		Timestamp:   time.Now(),
	})
	return Fail(transformValue[E](transform, ErrMaxRetriesExceeded))
}

// evalAttempt runs one attempt with the panic always captured: a throwing
// rule is treated identically to an explicit failure for retry counting.
func (r *Retry[I, E, C]) evalAttempt(ctx context.Context, rule Rule[I, E, C], input I, shared C, mode ErrorMode, transform Transform[E]) (res Result[E], rec any) {
	if effectiveMode(rule, mode) == ModeUnsafe {
		defer func() {
			rec = recover()
		}()
		res = rule.Evaluate(ctx, input, shared)
		return res, nil
	}
	return safeEval(ctx, rule, input, shared, transform), nil
}

// failFrom builds the terminal failure from a vetoed attempt's lastErr:
// payloads already of type E come back verbatim, recovered panic values go
// through the transform.
func failFrom[E any](lastErr any, transform Transform[E]) Result[E] {
	if e, ok := lastErr.(E); ok {
		return Fail(e)
	}
	return Fail(transformValue[E](transform, lastErr))
}

// WithDelay sets the delay strategy.
func (r *Retry[I, E, C]) WithDelay(fn DelayFunc) *Retry[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = fn
	return r
}

// WithShouldRetry sets the retry predicate.
func (r *Retry[I, E, C]) WithShouldRetry(fn ShouldRetryFunc) *Retry[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldRetry = fn
	return r
}

// SetMaxAttempts updates the attempt budget, clamped to at least 1.
func (r *Retry[I, E, C]) SetMaxAttempts(n int) *Retry[I, E, C] {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAttempts = n
	return r
}

// GetMaxAttempts returns the current attempt budget.
func (r *Retry[I, E, C]) GetMaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAttempts
}

// WithErrorMode sets the composition-level safety mode for the retried rule.
func (r *Retry[I, E, C]) WithErrorMode(mode ErrorMode) *Retry[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	return r
}

// WithTransform sets the transform for recovered panics and sentinels.
func (r *Retry[I, E, C]) WithTransform(fn Transform[E]) *Retry[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transform = fn
	return r
}

// WithClock sets a custom clock for testing.
func (r *Retry[I, E, C]) WithClock(clock clockz.Clock) *Retry[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	return r
}

// getClock returns the clock to use.
func (r *Retry[I, E, C]) getClock() clockz.Clock {
	if r.clock == nil {
		return clockz.RealClock
	}
	return r.clock
}

// ErrorMode returns the composition-level safety mode.
func (r *Retry[I, E, C]) ErrorMode() ErrorMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Name returns the name of this combinator.
func (r *Retry[I, E, C]) Name() Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Metrics returns the metrics registry for this combinator.
func (r *Retry[I, E, C]) Metrics() *metricz.Registry {
	return r.metrics
}

// Close gracefully shuts down observability components.
func (r *Retry[I, E, C]) Close() error {
	r.hooks.Close()
	return nil
}

// OnAttempt registers a handler called asynchronously after each failed
// attempt, before any delay.
func (r *Retry[I, E, C]) OnAttempt(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventAttempt, handler)
	return err
}

// OnPassed registers a handler called asynchronously when an attempt passes.
func (r *Retry[I, E, C]) OnPassed(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventPassed, handler)
	return err
}

// OnExhausted registers a handler called asynchronously when the attempt
// budget runs out.
func (r *Retry[I, E, C]) OnExhausted(handler func(context.Context, RetryEvent) error) error {
	_, err := r.hooks.Hook(RetryEventExhausted, handler)
	return err
}
