package rulz

import (
	"context"
	"sync"

	"github.com/zoobzio/metricz"
)

// Metric keys for the Tap combinator.
const (
	TapEvaluatedTotal = metricz.Key("tap.evaluated.total")
	TapRecoveredTotal = metricz.Key("tap.recovered.total")
)

// Tap runs a side effect after the wrapped rule settles, passing the input,
// the settled result, and the shared context. The effect cannot influence
// the outcome: its return is ignored and any panic it raises is recovered
// and counted rather than propagated, so a broken logging hook never fails
// an evaluation.
//
// Example:
//
//	audited := rulz.NewTap("audit", checkLimit,
//	    func(_ context.Context, tx Transaction, res rulz.Result[string], _ BankCtx) {
//	        audit.Record(tx.ID, res.Failed())
//	    })
type Tap[I, E, C any] struct {
	name    Name
	rule    Rule[I, E, C]
	effect  func(ctx context.Context, input I, res Result[E], shared C)
	mu      sync.RWMutex
	metrics *metricz.Registry
}

// NewTap creates a Tap combinator wrapping the rule with a side effect.
func NewTap[I, E, C any](name Name, rule Rule[I, E, C], effect func(ctx context.Context, input I, res Result[E], shared C)) *Tap[I, E, C] {
	t := &Tap[I, E, C]{
		name:    name,
		rule:    rule,
		effect:  effect,
		metrics: metricz.New(),
	}
	t.metrics.Counter(TapEvaluatedTotal)
	t.metrics.Counter(TapRecoveredTotal)
	return t
}

// Evaluate implements the Rule interface.
func (t *Tap[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	t.mu.RLock()
	rule := t.rule
	effect := t.effect
	t.mu.RUnlock()

	t.metrics.Counter(TapEvaluatedTotal).Inc()

	res := rule.Evaluate(ctx, input, shared)

	if effect != nil {
		func() {
			defer func() {
				if recover() != nil {
					t.metrics.Counter(TapRecoveredTotal).Inc()
				}
			}()
			effect(ctx, input, res, shared)
		}()
	}

	return res
}

// ErrorMode defers to the wrapped rule.
func (t *Tap[I, E, C]) ErrorMode() ErrorMode {
	t.mu.RLock()
	rule := t.rule
	t.mu.RUnlock()
	if m, ok := any(rule).(errorModer); ok {
		return m.ErrorMode()
	}
	return ModeDefault
}

// SetEffect replaces the side effect.
func (t *Tap[I, E, C]) SetEffect(effect func(ctx context.Context, input I, res Result[E], shared C)) *Tap[I, E, C] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.effect = effect
	return t
}

// Name returns the name of this combinator.
func (t *Tap[I, E, C]) Name() Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

// Metrics returns the metrics registry for this combinator.
func (t *Tap[I, E, C]) Metrics() *metricz.Registry {
	return t.metrics
}
