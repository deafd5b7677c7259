// Package rulz provides a lightweight, type-safe library for building composable validation rules in Go.
//
// # Overview
//
// rulz lets developers express validation logic as small, focused rules and
// compose them into larger rule trees via combinators: sequential fail-fast
// chains, parallel all-collect aggregation, first-success alternatives,
// pattern-match routing, conditional guards, retries, timeouts, and
// memoization. It addresses the usual pains of validation code: scattered
// checks, repetitive error plumbing, and logic that is hard to test because
// it mixes pure rules with external calls.
//
// # Installation
//
//	go get github.com/zoobzio/rulz
//
// Requires Go 1.23+ for generic type constraints.
//
// # Core Concepts
//
// The library is built around a single, uniform interface:
//
//	type Rule[I, E, C any] interface {
//	    Evaluate(ctx context.Context, input I, shared C) Result[E]
//	    Name() Name
//	}
//
// Key components:
//   - Results: a Result[E] either passed or failed with a caller-chosen error type E
//   - Checks: leaf rules created with the Check and Assert adapters
//   - Combinators: compose rules into trees (Pipe, All, OneOf, Match, When, Retry, ...)
//
// Design philosophy:
//   - Checks are immutable values (simple functions wrapped with metadata)
//   - Combinators are mutable pointers (configurable containers with state)
//
// Everything implements Rule[I, E, C], enabling arbitrary nesting while
// maintaining type safety through Go generics. A validation failure is a
// first-class value, not an error return: callers branch on the Result
// without recover or errors.As, except for the deliberate unsafe opt-out.
//
// # Input, Error, and Context Types
//
// Every rule is parameterized over three types:
//   - I: the input under validation
//   - E: the error payload carried by failures (commonly string or error)
//   - C: shared context threaded through the whole tree
//
// The engine never inspects E beyond collecting failures into ordered
// slices; zero values such as "" or 0 are preserved verbatim.
//
// The shared context is passed by reference semantics to every rule in a
// composition unless the composition opts into cloning (see CloneStrategy).
// When cloning is requested the clone is taken once per composition
// invocation, so sequential siblings still observe each other's mutations
// while the outside world does not.
//
// # Safety Modes
//
// A panicking rule body is an execution fault, distinct from a validation
// failure. In safe mode (the default) combinators recover the panic and
// convert it into a failed Result via the error transform. In unsafe mode
// panics unwind to the composition's caller. Precedence is three-tiered:
// a composition configured safe forces every child safe; a composition
// configured unsafe (or left unset) defers to each child's own mode; a
// child with no explicit mode is safe. Only an unsafe composition around an
// explicitly unsafe child lets a panic cross that child's boundary.
//
// # Quick Start
//
//	checkAmount := rulz.Check("positive-amount", func(_ context.Context, tx Transaction, _ map[string]any) rulz.Result[string] {
//	    if tx.Amount <= 0 {
//	        return rulz.Fail("Amount must be positive")
//	    }
//	    return rulz.Pass[string]()
//	})
//	checkCurrency := rulz.Check("supported-currency", func(_ context.Context, tx Transaction, _ map[string]any) rulz.Result[string] {
//	    if !supported[tx.Currency] {
//	        return rulz.Fail("Unsupported currency")
//	    }
//	    return rulz.Pass[string]()
//	})
//
//	pipeline := rulz.NewPipe("validate-tx", checkAmount, checkCurrency)
//	res := pipeline.Evaluate(context.Background(), tx, nil)
//	if res.Failed() {
//	    log.Println(res.Error())
//	}
//
// # Choosing the Right Combinator
//
//   - Pipe: default choice for step-by-step fail-fast validation
//   - Compose: the same chain evaluated right-to-left
//   - All: run every rule concurrently, collect every failure
//   - OneOf: first rule to pass wins, failures collected in order
//   - Match: route to a rule by a key computed from the input
//   - When/Unless/Branch: predicate-guarded evaluation
//   - Retry: transient-failure handling with backoff strategies
//   - Timeout: bound evaluation time (non-cancelling race, see Timeout docs)
//   - Memoize: cache results by an input-derived key with TTL and size bounds
//   - Fallback: primary/backup pairs
//   - MapError: translate error payloads, fold []E aggregates back to E
//
// For tracing, metrics, and event hooks, the heavyweight combinators expose
// Metrics(), Tracer(), and On* registrars backed by metricz, tracez, and
// hookz. Time-dependent combinators accept a clockz.Clock for deterministic
// tests.
package rulz

import "context"

// Rule defines the interface for any component that can validate values
// of type I against shared context C, reporting failures of type E.
//
// Rule is the foundation of rulz: every check and combinator implements
// this interface. The uniform shape enables seamless composition while
// keeping type safety through Go generics.
//
// Key design principles:
//   - Context support for timeout and cancellation plumbing
//   - Validation failures as values, never as error returns
//   - Panics reserved for execution faults, governed by safety modes
//   - Named components for debugging and instrumentation
type Rule[I, E, C any] interface {
	Evaluate(ctx context.Context, input I, shared C) Result[E]
	Name() Name
}

// Name is a type alias for rule and combinator names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ValidateAmountName   Name = "validate-amount"
//	    ValidateCurrencyName Name = "validate-currency"
//	)
type Name = string

// Predicate reports whether a condition holds for the input.
// Predicates drive the conditional combinators (When, Unless, Branch).
// A panicking predicate is an execution fault: in safe mode the combinator
// converts it into a failed Result, in unsafe mode it propagates.
type Predicate[I, C any] func(ctx context.Context, input I, shared C) bool

// Accessor computes a routing key from the input for Match dispatch.
// The key type K must be comparable. Accessors should be cheap and pure;
// a panicking accessor is handled like any other execution fault.
type Accessor[I, C any, K comparable] func(ctx context.Context, input I, shared C) K

// Cloner is an interface for context types that can create deep copies of
// themselves. It backs the CloneStructured strategy: when a composition
// requests structured cloning and C implements Cloner[C], the context's own
// Clone method is used, type-safe and free of reflection, cycle-aware if
// the implementation is. Contexts that do not implement Cloner fall back
// to the JSON strategy.
//
// The Clone method must return a deep copy where modifications to the clone
// do not affect the original value. For types containing pointers, slices,
// or maps, copy those too to achieve true isolation.
type Cloner[C any] interface {
	Clone() C
}
