package rulz

import (
	"context"
	"sync"
)

// OneOf tries rules in order until one passes, short-circuiting on the
// first pass; remaining rules are never invoked. Evaluation is strictly
// sequential; OneOf is about alternatives, not racing. If no rule passes
// the aggregate fails with every collected error in attempted order. An
// empty list passes vacuously.
//
// Like All, the aggregate carries multiple errors, so OneOf implements
// Rule[I, []E, C]; fold with MapError to nest inside single-error
// compositions.
//
// Example:
//
//	lookup := rulz.NewOneOf("card-or-wallet", validCard, validWallet, validIBAN)
type OneOf[I, E, C any] struct {
	name      Name
	rules     []Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
}

// NewOneOf creates a OneOf combinator over the given rules.
func NewOneOf[I, E, C any](name Name, rules ...Rule[I, E, C]) *OneOf[I, E, C] {
	return &OneOf[I, E, C]{
		name:  name,
		rules: rules,
	}
}

// Evaluate implements the Rule interface with an aggregated error type.
func (o *OneOf[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[[]E] {
	o.mu.RLock()
	rules := make([]Rule[I, E, C], len(o.rules))
	copy(rules, o.rules)
	mode, transform := o.mode, o.transform
	clone, strategy := o.clone, o.strategy
	o.mu.RUnlock()

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

	errs := make([]E, 0, len(rules))
	for _, r := range rules {
		res := evalRule(ctx, r, input, shared, mode, transform)
		if res.Passed() {
			return Pass[[]E]()
		}
		if res.Failed() {
			errs = append(errs, res.Error())
		}
	}
	return Fail(errs)
}

// WithErrorMode sets the composition-level safety mode.
func (o *OneOf[I, E, C]) WithErrorMode(mode ErrorMode) *OneOf[I, E, C] {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
	return o
}

// WithTransform sets the transform for recovered panics and sentinels.
func (o *OneOf[I, E, C]) WithTransform(fn Transform[E]) *OneOf[I, E, C] {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transform = fn
	return o
}

// WithContextClone requests a once-per-evaluation context clone.
func (o *OneOf[I, E, C]) WithContextClone(strategy CloneStrategy) *OneOf[I, E, C] {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clone = true
	o.strategy = strategy
	return o
}

// Add appends a rule to the alternatives.
func (o *OneOf[I, E, C]) Add(rule Rule[I, E, C]) *OneOf[I, E, C] {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = append(o.rules, rule)
	return o
}

// Len returns the number of alternatives.
func (o *OneOf[I, E, C]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.rules)
}

// Name returns the name of this combinator.
func (o *OneOf[I, E, C]) Name() Name {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.name
}
