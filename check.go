package rulz

import "context"

// Checker is the immutable leaf rule produced by the Check and Assert
// adapters. The fn field is intentionally private so that leaves are only
// created through the adapters, keeping naming and mode handling uniform.
//
// Best practices for check names:
//   - Use descriptive, action-oriented names ("validate_email", not "email")
//   - Keep names concise but meaningful
//   - Use consistent naming conventions across your application
type Checker[I, E, C any] struct {
	fn   func(context.Context, I, C) Result[E]
	name Name
	mode ErrorMode
}

// Check creates a leaf rule from a function that returns a Result directly.
// This is the general-purpose adapter: the body decides between Pass and
// Fail, and a panic inside it is handled per the enclosing safety mode.
//
// Example:
//
//	positive := rulz.Check("positive-amount", func(_ context.Context, tx Tx, _ Ctx) rulz.Result[string] {
//	    if tx.Amount <= 0 {
//	        return rulz.Fail("Amount must be positive")
//	    }
//	    return rulz.Pass[string]()
//	})
func Check[I, E, C any](name Name, fn func(context.Context, I, C) Result[E]) Checker[I, E, C] {
	return Checker[I, E, C]{name: name, fn: fn}
}

// Assert creates a leaf rule with error-typed failures from an idiomatic
// (value, error)-style function: a nil error passes, a non-nil error fails
// with that error as the payload.
//
// Example:
//
//	supported := rulz.Assert("supported-currency", func(_ context.Context, tx Tx, _ Ctx) error {
//	    if !currencies[tx.Currency] {
//	        return fmt.Errorf("unsupported currency %q", tx.Currency)
//	    }
//	    return nil
//	})
func Assert[I, C any](name Name, fn func(context.Context, I, C) error) Checker[I, error, C] {
	return Checker[I, error, C]{
		name: name,
		fn: func(ctx context.Context, input I, shared C) Result[error] {
			if err := fn(ctx, input, shared); err != nil {
				return Fail(err)
			}
			return Pass[error]()
		},
	}
}

// Evaluate implements the Rule interface, allowing individual checks to be
// used directly or composed in combinators.
func (c Checker[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	return c.fn(ctx, input, shared)
}

// Name returns the name of the check for debugging and instrumentation.
func (c Checker[I, E, C]) Name() Name {
	return c.name
}

// ErrorMode returns the check's own safety mode for precedence resolution.
func (c Checker[I, E, C]) ErrorMode() ErrorMode {
	return c.mode
}

// Safe returns a copy of the check explicitly marked safe. An enclosing
// unsafe composition will still recover this check's panics.
func (c Checker[I, E, C]) Safe() Checker[I, E, C] {
	c.mode = ModeSafe
	return c
}

// Unsafe returns a copy of the check marked unsafe: its panics unwind to
// the caller unless an enclosing composition is configured safe, which
// overrides the mark unconditionally.
func (c Checker[I, E, C]) Unsafe() Checker[I, E, C] {
	c.mode = ModeUnsafe
	return c
}
