package rulz

import (
	"context"
	"sync"
)

// MapError translates a rule's failure payload from E to F without
// touching the pass/fail outcome. Passing results pass through untouched
// and the mapping function is never called for them.
//
// MapError is also the sanctioned bridge between aggregating combinators
// and single-error compositions: an All or OneOf fails with []E, and a
// MapError over it folds the slice back to a single payload so the
// aggregate can sit inside a Pipe:
//
//	folded := rulz.NewMapError("fold-field-errors", all,
//	    func(errs []string) string { return strings.Join(errs, "; ") },
//	)
type MapError[I, E, F, C any] struct {
	name Name
	rule Rule[I, E, C]
	fn   func(E) F
	mu   sync.RWMutex
}

// NewMapError creates a MapError combinator.
func NewMapError[I, E, F, C any](name Name, rule Rule[I, E, C], fn func(E) F) *MapError[I, E, F, C] {
	return &MapError[I, E, F, C]{
		name: name,
		rule: rule,
		fn:   fn,
	}
}

// Evaluate implements the Rule interface with the mapped error type.
func (m *MapError[I, E, F, C]) Evaluate(ctx context.Context, input I, shared C) Result[F] {
	m.mu.RLock()
	rule, fn := m.rule, m.fn
	m.mu.RUnlock()

	res := rule.Evaluate(ctx, input, shared)
	switch {
	case res.Failed():
		return Fail(fn(res.Error()))
	case res.Passed():
		return Pass[F]()
	default:
		// Invalid results stay invalid for the enclosing safety layer.
		return Result[F]{}
	}
}

// Name returns the name of this combinator.
func (m *MapError[I, E, F, C]) Name() Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}
