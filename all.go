package rulz

import (
	"context"
	"sync"
)

// All runs every rule concurrently and collects every failure. Unlike
// Pipe's fail-fast semantics, All never short-circuits: each rule is
// invoked exactly once regardless of its siblings' outcomes. The result
// passes only when every rule passed; otherwise it fails with the error
// payloads of the failing rules in input-list order, never completion
// order, with zero-value payloads preserved verbatim.
//
// Because the aggregate carries multiple errors, All implements
// Rule[I, []E, C]. Use MapError to fold the slice back to a single E when
// nesting an All inside a Pipe or another single-error composition.
//
// When context cloning is requested the clone is taken once before fan-out
// and shared by every goroutine. Concurrent mutation of that single clone
// is allowed to race; the engine provides no synchronization. This is a
// documented hazard of sharing a mutable context under parallel
// composition, not a bug. Give rules their own isolation if they mutate.
//
// A panicking child under unsafe mode is re-raised on the calling
// goroutine after every sibling has settled, preserving propagation
// semantics across the fan-out; the lowest-index panic wins when several
// rules panic.
//
// Example:
//
//	all := rulz.NewAll("field-checks", checkAmount, checkCurrency, checkCard)
//	res := all.Evaluate(ctx, tx, nil)
//	if res.Failed() {
//	    for _, e := range res.Error() {
//	        log.Println(e)
//	    }
//	}
type All[I, E, C any] struct {
	name      Name
	rules     []Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
}

// NewAll creates an All combinator over the given rules.
func NewAll[I, E, C any](name Name, rules ...Rule[I, E, C]) *All[I, E, C] {
	return &All[I, E, C]{
		name:  name,
		rules: rules,
	}
}

// Evaluate implements the Rule interface with an aggregated error type.
func (a *All[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[[]E] {
	a.mu.RLock()
	rules := make([]Rule[I, E, C], len(a.rules))
	copy(rules, a.rules)
	mode, transform := a.mode, a.transform
	clone, strategy := a.clone, a.strategy
	a.mu.RUnlock()

	if len(rules) == 0 {
		return Pass[[]E]()
	}

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		if compositionMode(mode) == ModeUnsafe {
			panic(cloneErr)
		}
		return Fail([]E{transformValue[E](transform, cloneErr)})
	}

	results := make([]Result[E], len(rules))
	panics := make([]any, len(rules))

	var wg sync.WaitGroup
	wg.Add(len(rules))
	for i, r := range rules {
		go func(i int, r Rule[I, E, C]) {
			defer wg.Done()
			results[i], panics[i] = evalRuleCapture(ctx, r, input, shared, mode, transform)
		}(i, r)
	}
	wg.Wait()

	// Re-raise the first captured panic on the caller's goroutine so that
	// unsafe-mode propagation survives the fan-out.
	for _, rec := range panics {
		if rec != nil {
			panic(rec)
		}
	}

	var errs []E
	for _, res := range results {
		if res.Failed() {
			errs = append(errs, res.Error())
		}
	}
	if len(errs) > 0 {
		return Fail(errs)
	}
	return Pass[[]E]()
}

// WithErrorMode sets the composition-level safety mode.
func (a *All[I, E, C]) WithErrorMode(mode ErrorMode) *All[I, E, C] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = mode
	return a
}

// WithTransform sets the transform for recovered panics and sentinels.
func (a *All[I, E, C]) WithTransform(fn Transform[E]) *All[I, E, C] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = fn
	return a
}

// WithContextClone requests a single context clone before fan-out.
func (a *All[I, E, C]) WithContextClone(strategy CloneStrategy) *All[I, E, C] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clone = true
	a.strategy = strategy
	return a
}

// Add appends a rule to the aggregation list.
func (a *All[I, E, C]) Add(rule Rule[I, E, C]) *All[I, E, C] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, rule)
	return a
}

// Len returns the number of rules.
func (a *All[I, E, C]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rules)
}

// Name returns the name of this combinator.
func (a *All[I, E, C]) Name() Name {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}
