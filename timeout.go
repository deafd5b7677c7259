package rulz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Timeout races the rule's evaluation against a timer. Whichever settles
// first wins: if the timer fires before the rule settles, Timeout fails
// with the fixed timeout error configured at construction.
//
// This is a deliberately non-cancelling race. The losing evaluation is NOT
// aborted; it keeps running on its goroutine to completion and its result
// is discarded. The engine has no cancellation mechanism for in-flight
// rules; a rule holding sockets, file handles, or other resources must
// watch its context (Timeout does not cut the context deadline either) or
// arrange its own cleanup. Treat long-running rules under Timeout as a
// potential goroutine and resource leak and size accordingly.
//
// The timer uses an injectable clockz.Clock for deterministic tests.
//
// Example:
//
//	fraud := rulz.NewTimeout("fraud-deadline", fraudServiceCheck,
//	    2*time.Second, "fraud check timed out")
type Timeout[I, E, C any] struct {
	name       Name
	rule       Rule[I, E, C]
	duration   time.Duration
	timeoutErr E
	mode       ErrorMode
	transform  Transform[E]
	clock      clockz.Clock
	mu         sync.RWMutex
}

// NewTimeout creates a Timeout combinator with a fixed timeout error value.
func NewTimeout[I, E, C any](name Name, rule Rule[I, E, C], duration time.Duration, timeoutErr E) *Timeout[I, E, C] {
	return &Timeout[I, E, C]{
		name:       name,
		rule:       rule,
		duration:   duration,
		timeoutErr: timeoutErr,
	}
}

// Evaluate implements the Rule interface.
func (t *Timeout[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	t.mu.RLock()
	rule := t.rule
	duration := t.duration
	timeoutErr := t.timeoutErr
	mode, transform := t.mode, t.transform
	clock := t.getClock()
	t.mu.RUnlock()

	type outcome struct {
		res Result[E]
		rec any
	}

	// Buffered so the losing evaluation can settle and be collected by GC
	// even though nobody reads its result.
	ch := make(chan outcome, 1)
	go func() {
		res, rec := evalRuleCapture(ctx, rule, input, shared, mode, transform)
		ch <- outcome{res: res, rec: rec}
	}()

	select {
	case o := <-ch:
		if o.rec != nil {
			// Unsafe-mode panic crossed the goroutine boundary; re-raise
			// on the caller.
			panic(o.rec)
		}
		return o.res
	case <-clock.After(duration):
		return Fail(timeoutErr)
	case <-ctx.Done():
		return Fail(transformValue[E](transform, ctx.Err()))
	}
}

// SetDuration updates the timeout duration.
func (t *Timeout[I, E, C]) SetDuration(d time.Duration) *Timeout[I, E, C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	return t
}

// GetDuration returns the current timeout duration.
func (t *Timeout[I, E, C]) GetDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

// WithErrorMode sets the composition-level safety mode for the inner rule.
func (t *Timeout[I, E, C]) WithErrorMode(mode ErrorMode) *Timeout[I, E, C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	return t
}

// WithTransform sets the transform for recovered panics and sentinels.
func (t *Timeout[I, E, C]) WithTransform(fn Transform[E]) *Timeout[I, E, C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transform = fn
	return t
}

// WithClock sets a custom clock for testing.
func (t *Timeout[I, E, C]) WithClock(clock clockz.Clock) *Timeout[I, E, C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
	return t
}

// getClock returns the clock to use.
func (t *Timeout[I, E, C]) getClock() clockz.Clock {
	if t.clock == nil {
		return clockz.RealClock
	}
	return t.clock
}

// ErrorMode returns the composition-level safety mode.
func (t *Timeout[I, E, C]) ErrorMode() ErrorMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mode
}

// Name returns the name of this combinator.
func (t *Timeout[I, E, C]) Name() Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}
