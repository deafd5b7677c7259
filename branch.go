package rulz

import (
	"context"
	"sync"
)

// When guards a rule behind a predicate: the rule runs only when the
// predicate holds, otherwise the guard passes automatically. A predicate
// that panics under safe mode becomes the guard's own failure, carrying
// the transformed panic value, distinct from any failure the guarded rule
// could produce. Under unsafe mode the panic unwinds.
//
// Example:
//
//	highValue := rulz.NewWhen("high-value-only",
//	    func(_ context.Context, tx Tx, _ Ctx) bool { return tx.Amount > 10_000 },
//	    fraudChecks,
//	)
type When[I, E, C any] struct {
	name      Name
	predicate Predicate[I, C]
	rule      Rule[I, E, C]
	invert    bool
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
}

// NewWhen creates a When guard.
func NewWhen[I, E, C any](name Name, predicate Predicate[I, C], rule Rule[I, E, C]) *When[I, E, C] {
	return &When[I, E, C]{
		name:      name,
		predicate: predicate,
		rule:      rule,
	}
}

// NewUnless creates the inverse guard: the rule runs only when the
// predicate does not hold.
func NewUnless[I, E, C any](name Name, predicate Predicate[I, C], rule Rule[I, E, C]) *When[I, E, C] {
	return &When[I, E, C]{
		name:      name,
		predicate: predicate,
		rule:      rule,
		invert:    true,
	}
}

// Evaluate implements the Rule interface.
func (w *When[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	w.mu.RLock()
	predicate, rule, invert := w.predicate, w.rule, w.invert
	mode, transform := w.mode, w.transform
	clone, strategy := w.clone, w.strategy
	w.mu.RUnlock()

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		return fault(mode, transform, cloneErr)
	}

	pres := evalPredicate(ctx, predicate, input, shared, compositionMode(mode), transform)
	if pres.Failed() {
		return Fail(pres.Error())
	}
	if pres.Value() == invert {
		return Pass[E]()
	}
	return evalRule(ctx, rule, input, shared, mode, transform)
}

// WithErrorMode sets the composition-level safety mode.
func (w *When[I, E, C]) WithErrorMode(mode ErrorMode) *When[I, E, C] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mode = mode
	return w
}

// WithTransform sets the transform for recovered panics and sentinels.
func (w *When[I, E, C]) WithTransform(fn Transform[E]) *When[I, E, C] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transform = fn
	return w
}

// WithContextClone requests a once-per-evaluation context clone.
func (w *When[I, E, C]) WithContextClone(strategy CloneStrategy) *When[I, E, C] {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clone = true
	w.strategy = strategy
	return w
}

// ErrorMode returns the composition-level safety mode.
func (w *When[I, E, C]) ErrorMode() ErrorMode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode
}

// Name returns the name of this guard.
func (w *When[I, E, C]) Name() Name {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Branch evaluates one of two rules depending on a predicate: ifRule when
// it holds, elseRule otherwise. The else side is optional; without it a
// false predicate passes, making Branch with no elseRule equivalent to
// When. Predicate faults follow the same contract as When.
type Branch[I, E, C any] struct {
	name      Name
	predicate Predicate[I, C]
	ifRule    Rule[I, E, C]
	elseRule  Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
}

// NewBranch creates a Branch with both sides.
func NewBranch[I, E, C any](name Name, predicate Predicate[I, C], ifRule, elseRule Rule[I, E, C]) *Branch[I, E, C] {
	return &Branch[I, E, C]{
		name:      name,
		predicate: predicate,
		ifRule:    ifRule,
		elseRule:  elseRule,
	}
}

// Evaluate implements the Rule interface.
func (b *Branch[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	b.mu.RLock()
	predicate, ifRule, elseRule := b.predicate, b.ifRule, b.elseRule
	mode, transform := b.mode, b.transform
	clone, strategy := b.clone, b.strategy
	b.mu.RUnlock()

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		return fault(mode, transform, cloneErr)
	}

	pres := evalPredicate(ctx, predicate, input, shared, compositionMode(mode), transform)
	if pres.Failed() {
		return Fail(pres.Error())
	}
	if pres.Value() {
		return evalRule(ctx, ifRule, input, shared, mode, transform)
	}
	if elseRule == nil {
		return Pass[E]()
	}
	return evalRule(ctx, elseRule, input, shared, mode, transform)
}

// WithErrorMode sets the composition-level safety mode.
func (b *Branch[I, E, C]) WithErrorMode(mode ErrorMode) *Branch[I, E, C] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = mode
	return b
}

// WithTransform sets the transform for recovered panics and sentinels.
func (b *Branch[I, E, C]) WithTransform(fn Transform[E]) *Branch[I, E, C] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transform = fn
	return b
}

// WithContextClone requests a once-per-evaluation context clone.
func (b *Branch[I, E, C]) WithContextClone(strategy CloneStrategy) *Branch[I, E, C] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clone = true
	b.strategy = strategy
	return b
}

// ErrorMode returns the composition-level safety mode.
func (b *Branch[I, E, C]) ErrorMode() ErrorMode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// Name returns the name of this combinator.
func (b *Branch[I, E, C]) Name() Name {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}
