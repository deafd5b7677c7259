package rulz

import (
	"context"
	"errors"
	"fmt"
)

// ErrorMode selects how a combinator treats panics from the rules it runs.
type ErrorMode uint8

const (
	// ModeDefault defers to the enclosing composition, or to the global
	// default (safe) when nothing is configured.
	ModeDefault ErrorMode = iota
	// ModeSafe recovers panics and converts them into failed Results via
	// the error transform.
	ModeSafe
	// ModeUnsafe lets panics unwind to the composition's caller.
	ModeUnsafe
)

// Sentinel errors produced by the engine itself. They reach callers through
// the error transform, so an E of string carries the message and an E of
// error carries the sentinel, matchable with errors.Is.
var (
	// ErrInvalidResult marks a rule that returned the zero Result instead
	// of a value built with Pass or Fail.
	ErrInvalidResult = errors.New("invalid rule: did not return a Result")

	// ErrMaxRetriesExceeded is the synthetic error Retry returns when all
	// attempts are exhausted. It deliberately replaces the last real
	// failure so callers can distinguish exhaustion from a normal verdict.
	ErrMaxRetriesExceeded = errors.New("MAX_RETRIES_EXCEEDED")

	// ErrMissingValue is the failure Field produces when the getter yields
	// nothing and no default is configured.
	ErrMissingValue = errors.New("Missing required value")
)

// Transform converts a recovered panic value, or an engine-generated error,
// into the caller's error type E. It is invoked only for execution faults
// and engine sentinels, never for explicit Fail results from rule bodies.
type Transform[E any] func(recovered any) E

// transformValue applies t, or the default transform when t is nil.
func transformValue[E any](t Transform[E], recovered any) E {
	if t != nil {
		return t(recovered)
	}
	return defaultTransform[E](recovered)
}

// defaultTransform preserves values already of type E, stringifies for
// string-typed errors (using Error() for error values), and wraps for
// error-typed errors. Any other E yields its zero value; callers with
// richer error types should install their own Transform.
func defaultTransform[E any](recovered any) E {
	if e, ok := recovered.(E); ok {
		return e
	}
	var zero E
	switch any(zero).(type) {
	case string:
		return any(recoveredMessage(recovered)).(E)
	case error:
		return any(fmt.Errorf("%v", recovered)).(E)
	}
	return zero
}

func recoveredMessage(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}

// errorModer is satisfied by rules that carry their own safety mode.
// Checks and combinators expose it; plain Rule implementations that don't
// are treated as ModeDefault.
type errorModer interface {
	ErrorMode() ErrorMode
}

// effectiveMode resolves the three-tier precedence for a child rule:
// a safe composition wins unconditionally; otherwise the child's own mode
// applies; a child without one falls back to the global default, safe.
func effectiveMode[I, E, C any](r Rule[I, E, C], composition ErrorMode) ErrorMode {
	if composition == ModeSafe {
		return ModeSafe
	}
	if m, ok := any(r).(errorModer); ok {
		if own := m.ErrorMode(); own != ModeDefault {
			return own
		}
	}
	return ModeSafe
}

// compositionMode resolves a combinator's own unset mode to the global
// default. It governs the combinator's private execution (accessors,
// predicates, context cloning) as opposed to its children.
func compositionMode(mode ErrorMode) ErrorMode {
	if mode == ModeDefault {
		return ModeSafe
	}
	return mode
}

// evalRule runs one child of a composition under the resolved safety mode.
func evalRule[I, E, C any](ctx context.Context, r Rule[I, E, C], input I, shared C, composition ErrorMode, transform Transform[E]) Result[E] {
	if effectiveMode(r, composition) == ModeUnsafe {
		return r.Evaluate(ctx, input, shared)
	}
	return safeEval(ctx, r, input, shared, transform)
}

// evalRuleCapture runs a child and, when the resolved mode is unsafe,
// captures the panic instead of letting it unwind. Combinators that fan out
// to goroutines (All, Timeout, Memoize) need the capture so the panic can
// be re-raised on the calling goroutine, and Retry needs it to count a
// panicking attempt like any other failure.
func evalRuleCapture[I, E, C any](ctx context.Context, r Rule[I, E, C], input I, shared C, composition ErrorMode, transform Transform[E]) (res Result[E], rec any) {
	if effectiveMode(r, composition) == ModeUnsafe {
		defer func() {
			rec = recover()
		}()
		res = r.Evaluate(ctx, input, shared)
		return res, nil
	}
	return safeEval(ctx, r, input, shared, transform), nil
}

// safeEval wraps one evaluation in panic recovery and contract checking.
// Explicit Fail results pass through verbatim; recovered panics and invalid
// zero Results go through the transform.
func safeEval[I, E, C any](ctx context.Context, r Rule[I, E, C], input I, shared C, transform Transform[E]) (res Result[E]) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Fail(transformValue(transform, rec))
		}
	}()
	out := r.Evaluate(ctx, input, shared)
	if !out.valid() {
		return Fail(transformValue[E](transform, ErrInvalidResult))
	}
	return out
}

// evalPredicate runs a predicate under the given mode. Safe mode converts a
// panicking predicate into a failed PredicateResult; unsafe lets it unwind.
func evalPredicate[I, E, C any](ctx context.Context, p Predicate[I, C], input I, shared C, mode ErrorMode, transform Transform[E]) (res PredicateResult[E]) {
	if mode == ModeUnsafe {
		return PredicatePass[E](p(ctx, input, shared))
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = PredicateFail(transformValue(transform, rec))
		}
	}()
	return PredicatePass[E](p(ctx, input, shared))
}

// fault reports a combinator-level execution fault (clone failure, loader
// panic) according to the combinator's own mode.
func fault[E any](mode ErrorMode, transform Transform[E], err error) Result[E] {
	if compositionMode(mode) == ModeUnsafe {
		panic(err)
	}
	return Fail(transformValue[E](transform, err))
}
