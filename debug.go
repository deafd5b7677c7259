package rulz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys for the Debug combinator.
const (
	DebugEventStart = hookz.Key("debug.start")
	DebugEventEnd   = hookz.Key("debug.end")
	DebugEventError = hookz.Key("debug.error")
)

// DebugEvent carries the evaluation snapshot delivered to Debug hooks.
type DebugEvent[I, E, C any] struct {
	Name      Name          // Combinator name
	RuleName  Name          // Name of the wrapped rule
	Input     I             // The input under evaluation
	Shared    C             // The shared context as seen by the rule
	Result    Result[E]     // The settled result (end events only)
	Recovered any           // The panic value (error events only)
	StartTime time.Time     // When evaluation started
	Duration  time.Duration // Elapsed time (end and error events)
	Timestamp time.Time     // When the event occurred
}

// Debug wraps a rule with timing instrumentation delivered through hookz:
// a start event before evaluation, an end event with the settled result
// and duration, or an error event when the rule panics, after which the
// original panic is re-raised unchanged. Instrumentation never swallows a
// fault and never alters the wrapped rule's outcome or safety mode; Debug
// is transparent to the precedence rules, deferring to the wrapped rule
// for mode resolution.
//
// Example:
//
//	dbg := rulz.NewDebug("trace-fraud", fraudCheck)
//	dbg.OnEnd(func(_ context.Context, ev rulz.DebugEvent[Tx, string, Ctx]) error {
//	    log.Printf("%s took %v passed=%v", ev.RuleName, ev.Duration, !ev.Result.Failed())
//	    return nil
//	})
type Debug[I, E, C any] struct {
	name  Name
	rule  Rule[I, E, C]
	mu    sync.RWMutex
	hooks *hookz.Hooks[DebugEvent[I, E, C]]
}

// NewDebug creates a Debug combinator around the rule.
func NewDebug[I, E, C any](name Name, rule Rule[I, E, C]) *Debug[I, E, C] {
	return &Debug[I, E, C]{
		name:  name,
		rule:  rule,
		hooks: hookz.New[DebugEvent[I, E, C]](),
	}
}

// Evaluate implements the Rule interface.
func (d *Debug[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	d.mu.RLock()
	rule := d.rule
	d.mu.RUnlock()

	start := time.Now()
	_ = d.hooks.Emit(ctx, DebugEventStart, DebugEvent[I, E, C]{ //nolint:errcheck
		Name:      d.name,
		RuleName:  rule.Name(),
		Input:     input,
		Shared:    shared,
		StartTime: start,
		Timestamp: start,
	})

	res, rec := func() (res Result[E], rec any) {
		defer func() {
			rec = recover()
		}()
		res = rule.Evaluate(ctx, input, shared)
		return res, nil
	}()
	duration := time.Since(start)

	if rec != nil {
		_ = d.hooks.Emit(ctx, DebugEventError, DebugEvent[I, E, C]{ //nolint:errcheck
			Name:      d.name,
			RuleName:  rule.Name(),
			Input:     input,
			Shared:    shared,
			Recovered: rec,
			StartTime: start,
			Duration:  duration,
			Timestamp: time.Now(),
		})
		panic(rec)
	}

	_ = d.hooks.Emit(ctx, DebugEventEnd, DebugEvent[I, E, C]{ //nolint:errcheck
		Name:      d.name,
		RuleName:  rule.Name(),
		Input:     input,
		Shared:    shared,
		Result:    res,
		StartTime: start,
		Duration:  duration,
		Timestamp: time.Now(),
	})
	return res
}

// ErrorMode defers to the wrapped rule so Debug stays invisible to safety
// precedence resolution.
func (d *Debug[I, E, C]) ErrorMode() ErrorMode {
	d.mu.RLock()
	rule := d.rule
	d.mu.RUnlock()
	if m, ok := any(rule).(errorModer); ok {
		return m.ErrorMode()
	}
	return ModeDefault
}

// Name returns the name of this combinator.
func (d *Debug[I, E, C]) Name() Name {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// Close gracefully shuts down the hook dispatcher.
func (d *Debug[I, E, C]) Close() error {
	d.hooks.Close()
	return nil
}

// OnStart registers a handler called asynchronously before each evaluation.
func (d *Debug[I, E, C]) OnStart(handler func(context.Context, DebugEvent[I, E, C]) error) error {
	_, err := d.hooks.Hook(DebugEventStart, handler)
	return err
}

// OnEnd registers a handler called asynchronously after each settled
// evaluation with the result and duration.
func (d *Debug[I, E, C]) OnEnd(handler func(context.Context, DebugEvent[I, E, C]) error) error {
	_, err := d.hooks.Hook(DebugEventEnd, handler)
	return err
}

// OnError registers a handler called asynchronously when the wrapped rule
// panics; the panic still propagates afterwards.
func (d *Debug[I, E, C]) OnError(handler func(context.Context, DebugEvent[I, E, C]) error) error {
	_, err := d.hooks.Hook(DebugEventError, handler)
	return err
}
