package rulz

type resultStatus uint8

const (
	statusInvalid resultStatus = iota
	statusPassed
	statusFailed
)

// Result is the outcome of evaluating a rule: either passed or failed with
// an error payload of type E. Results are immutable values constructed only
// through Pass and Fail. The zero Result is invalid: a rule body that
// returns one has violated the Rule contract, which safe-mode evaluation
// converts into a failure carrying ErrInvalidResult.
//
// The engine never coerces or inspects E beyond aggregation: the payload
// handed to Fail comes back verbatim from Error, including zero values
// such as "" or 0.
type Result[E any] struct {
	err    E
	status resultStatus
}

// Pass returns a passed Result.
func Pass[E any]() Result[E] {
	return Result[E]{status: statusPassed}
}

// Fail returns a failed Result carrying err. The payload is stored as-is;
// no validation of its shape is performed.
func Fail[E any](err E) Result[E] {
	return Result[E]{status: statusFailed, err: err}
}

// Passed reports whether the result passed.
func (r Result[E]) Passed() bool {
	return r.status == statusPassed
}

// Failed reports whether the result failed.
func (r Result[E]) Failed() bool {
	return r.status == statusFailed
}

// Error returns the error payload of a failed result.
// Calling Error on a result that did not fail is a usage bug, not a data
// problem, so it panics immediately rather than returning a zero E.
func (r Result[E]) Error() E {
	if r.status != statusFailed {
		panic("rulz: Error called on a result that did not fail")
	}
	return r.err
}

// valid reports whether the result was constructed through Pass or Fail.
func (r Result[E]) valid() bool {
	return r.status != statusInvalid
}

// PredicateResult is the outcome of safety-wrapped predicate evaluation.
// Unlike Result, a passed PredicateResult carries the predicate's boolean
// value, the truth of the condition, not a validation verdict.
type PredicateResult[E any] struct {
	err    E
	value  bool
	status resultStatus
}

// PredicatePass returns a passed PredicateResult carrying the condition's value.
func PredicatePass[E any](value bool) PredicateResult[E] {
	return PredicateResult[E]{status: statusPassed, value: value}
}

// PredicateFail returns a failed PredicateResult carrying err.
func PredicateFail[E any](err E) PredicateResult[E] {
	return PredicateResult[E]{status: statusFailed, err: err}
}

// Passed reports whether the predicate evaluated without fault.
func (r PredicateResult[E]) Passed() bool {
	return r.status == statusPassed
}

// Failed reports whether predicate evaluation faulted.
func (r PredicateResult[E]) Failed() bool {
	return r.status == statusFailed
}

// Value returns the boolean the predicate evaluated to.
// Panics when called on a failed PredicateResult.
func (r PredicateResult[E]) Value() bool {
	if r.status != statusPassed {
		panic("rulz: Value called on a predicate result that did not pass")
	}
	return r.value
}

// Error returns the error payload of a failed PredicateResult.
// Panics when called on a result that did not fail.
func (r PredicateResult[E]) Error() E {
	if r.status != statusFailed {
		panic("rulz: Error called on a predicate result that did not fail")
	}
	return r.err
}
