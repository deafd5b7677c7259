package rulz

import (
	"context"
	"sync"
)

// Inject fixes a dependency at construction time by applying the factory to
// it once, returning the concrete rule the factory builds. The dependency
// is not re-resolved per evaluation; rebuilding requires calling Inject
// again with a new value.
//
// Example:
//
//	fraudRule := rulz.Inject(fraudClient, func(c *fraud.Client) rulz.Rule[Tx, string, BankCtx] {
//	    return rulz.Check[Tx, string, BankCtx]("fraud-score", func(ctx context.Context, tx Tx, _ BankCtx) rulz.Result[string] {
//	        if c.Score(ctx, tx) > 0.9 {
//	            return rulz.Fail("transaction flagged")
//	        }
//	        return rulz.Pass[string]()
//	    })
//	})
func Inject[D, I, E, C any](dep D, factory func(D) Rule[I, E, C]) Rule[I, E, C] {
	return factory(dep)
}

// Lazy loads a shared context per evaluation instead of receiving one from
// the enclosing composition. The loader runs on every call with the input;
// its result becomes the shared context for the wrapped rule. Loader errors
// and loader panics always settle as Failed, never as an uncaught panic,
// regardless of error mode. The outer shared value (type CO) is ignored,
// which lets a Lazy slot into compositions whose context type differs from
// what the wrapped rule needs.
type Lazy[I, E, CO, C any] struct {
	name      Name
	rule      Rule[I, E, C]
	loader    func(ctx context.Context, input I) (C, error)
	mode      ErrorMode
	transform Transform[E]
	mu        sync.RWMutex
}

// NewLazy creates a Lazy combinator with the given loader and wrapped rule.
func NewLazy[I, E, CO, C any](name Name, loader func(ctx context.Context, input I) (C, error), rule Rule[I, E, C]) *Lazy[I, E, CO, C] {
	return &Lazy[I, E, CO, C]{
		name:   name,
		rule:   rule,
		loader: loader,
	}
}

// Evaluate implements the Rule interface. The incoming shared value is
// discarded; the loaded context replaces it for the wrapped rule.
func (l *Lazy[I, E, CO, C]) Evaluate(ctx context.Context, input I, _ CO) Result[E] {
	l.mu.RLock()
	rule := l.rule
	loader := l.loader
	mode := l.mode
	transform := l.transform
	l.mu.RUnlock()

	loaded, fail := func() (loaded C, fail any) {
		defer func() {
			if rec := recover(); rec != nil {
				fail = rec
			}
		}()
		var err error
		loaded, err = loader(ctx, input)
		if err != nil {
			fail = err
		}
		return loaded, fail
	}()
	if fail != nil {
		return Fail(transformValue(transform, fail))
	}

	return evalRule(ctx, rule, input, loaded, mode, transform)
}

// WithErrorMode sets the composition-level error mode applied to the
// wrapped rule. Loader failures settle as Failed in every mode.
func (l *Lazy[I, E, CO, C]) WithErrorMode(mode ErrorMode) *Lazy[I, E, CO, C] {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = mode
	return l
}

// WithTransform sets the conversion from recovered values to E.
func (l *Lazy[I, E, CO, C]) WithTransform(t Transform[E]) *Lazy[I, E, CO, C] {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transform = t
	return l
}

// ErrorMode reports the configured composition mode.
func (l *Lazy[I, E, CO, C]) ErrorMode() ErrorMode {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mode
}

// Name returns the name of this combinator.
func (l *Lazy[I, E, CO, C]) Name() Name {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.name
}

// RequireContext guards a rule behind a context check: when the check
// rejects the shared value, evaluation fails immediately with the fixed
// error and the wrapped rule never runs. The default check rejects nil
// pointers, maps, slices, functions, channels, and nil interfaces.
type RequireContext[I, E, C any] struct {
	name       Name
	rule       Rule[I, E, C]
	missingErr E
	check      func(shared C) bool
	mode       ErrorMode
	transform  Transform[E]
	mu         sync.RWMutex
}

// NewRequireContext creates a guard that fails with missingErr when the
// shared context is not defined.
func NewRequireContext[I, E, C any](name Name, missingErr E, rule Rule[I, E, C]) *RequireContext[I, E, C] {
	return &RequireContext[I, E, C]{
		name:       name,
		rule:       rule,
		missingErr: missingErr,
	}
}

// Evaluate implements the Rule interface.
func (r *RequireContext[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	r.mu.RLock()
	rule := r.rule
	check := r.check
	missingErr := r.missingErr
	mode := r.mode
	transform := r.transform
	r.mu.RUnlock()

	defined := false
	if check != nil {
		defined = func() (ok bool) {
			defer func() {
				if recover() != nil {
					ok = false
				}
			}()
			return check(shared)
		}()
	} else {
		defined = !isNilContext(shared)
	}
	if !defined {
		return Fail(missingErr)
	}

	return evalRule(ctx, rule, input, shared, mode, transform)
}

// WithCheck replaces the default "is defined" check.
func (r *RequireContext[I, E, C]) WithCheck(check func(shared C) bool) *RequireContext[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.check = check
	return r
}

// WithErrorMode sets the composition-level error mode applied to the
// wrapped rule.
func (r *RequireContext[I, E, C]) WithErrorMode(mode ErrorMode) *RequireContext[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
	return r
}

// WithTransform sets the conversion from recovered values to E.
func (r *RequireContext[I, E, C]) WithTransform(t Transform[E]) *RequireContext[I, E, C] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transform = t
	return r
}

// ErrorMode reports the configured composition mode.
func (r *RequireContext[I, E, C]) ErrorMode() ErrorMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Name returns the name of this combinator.
func (r *RequireContext[I, E, C]) Name() Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}
