package rulz

import (
	"context"
	"sync"
)

// Getter extracts a sub-value from the input, reporting whether the value
// was present.
type Getter[I, F any] func(input I) (F, bool)

// Field scopes a rule to a sub-value of the input. The getter runs first;
// when it reports absence, the configured default is substituted, and with
// no default the evaluation fails with the missing-value error. Otherwise
// the inner rule evaluates against the extracted value with the same shared
// context.
//
// Example:
//
//	amountPositive := rulz.NewField("amount",
//	    func(tx Transaction) (float64, bool) { return tx.Amount, tx.Amount != 0 },
//	    rulz.Check[float64, string, BankCtx]("positive", func(_ context.Context, amt float64, _ BankCtx) rulz.Result[string] {
//	        if amt <= 0 {
//	            return rulz.Fail("Amount must be positive")
//	        }
//	        return rulz.Pass[string]()
//	    }))
type Field[I, F, E, C any] struct {
	name       Name
	getter     Getter[I, F]
	rule       Rule[F, E, C]
	defaultVal F
	hasDefault bool
	mode       ErrorMode
	transform  Transform[E]
	mu         sync.RWMutex
}

// NewField creates a Field combinator from a getter and an inner rule.
func NewField[I, F, E, C any](name Name, getter Getter[I, F], rule Rule[F, E, C]) *Field[I, F, E, C] {
	return &Field[I, F, E, C]{
		name:   name,
		getter: getter,
		rule:   rule,
	}
}

// Evaluate implements the Rule interface.
func (f *Field[I, F, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	f.mu.RLock()
	getter := f.getter
	rule := f.rule
	defaultVal := f.defaultVal
	hasDefault := f.hasDefault
	mode := f.mode
	transform := f.transform
	f.mu.RUnlock()

	value, ok, rec := func() (value F, ok bool, rec any) {
		if compositionMode(mode) == ModeSafe {
			defer func() {
				rec = recover()
			}()
		}
		value, ok = getter(input)
		return value, ok, nil
	}()
	if rec != nil {
		return Fail(transformValue(transform, rec))
	}
	if !ok {
		if !hasDefault {
			return Fail(transformValue[E](transform, ErrMissingValue))
		}
		value = defaultVal
	}

	return evalRule(ctx, rule, value, shared, mode, transform)
}

// WithDefault substitutes the value when the getter reports absence,
// instead of failing.
func (f *Field[I, F, E, C]) WithDefault(value F) *Field[I, F, E, C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultVal = value
	f.hasDefault = true
	return f
}

// WithErrorMode sets the composition-level error mode applied to the getter
// and the inner rule.
func (f *Field[I, F, E, C]) WithErrorMode(mode ErrorMode) *Field[I, F, E, C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	return f
}

// WithTransform sets the conversion from recovered values to E.
func (f *Field[I, F, E, C]) WithTransform(t Transform[E]) *Field[I, F, E, C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transform = t
	return f
}

// ErrorMode reports the configured composition mode.
func (f *Field[I, F, E, C]) ErrorMode() ErrorMode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// Name returns the name of this combinator.
func (f *Field[I, F, E, C]) Name() Name {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}
