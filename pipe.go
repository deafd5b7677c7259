package rulz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Pipe combinator.
const (
	// Metrics.
	PipeEvaluatedTotal  = metricz.Key("pipe.evaluated.total")
	PipePassedTotal     = metricz.Key("pipe.passed.total")
	PipeFailedTotal     = metricz.Key("pipe.failed.total")
	PipeRulesEvaluated  = metricz.Key("pipe.rules.evaluated")
	PipeRulesTotal      = metricz.Key("pipe.rules.total")
	PipeDurationMs      = metricz.Key("pipe.duration.ms")

	// Spans.
	PipeEvaluateSpan = tracez.Key("pipe.evaluate")
	PipeRuleSpan     = tracez.Key("pipe.rule")

	// Tags.
	PipeTagRuleCount = tracez.Tag("pipe.rule_count")
	PipeTagRuleIndex = tracez.Tag("pipe.rule_index")
	PipeTagRuleName  = tracez.Tag("pipe.rule_name")
	PipeTagPassed    = tracez.Tag("pipe.passed")

	// Hook event keys.
	PipeEventRuleComplete = hookz.Key("pipe.rule_complete")
	PipeEventAllComplete  = hookz.Key("pipe.all_complete")
)

// Chain modification errors.
var (
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	ErrEmptyPipe        = errors.New("pipe is empty")
)

// PipeEvent is emitted via hookz as individual rules settle and when the
// whole chain passes, giving real-time visibility into evaluation progress.
type PipeEvent struct {
	Name           Name          // Combinator name
	RuleName       Name          // Name of the rule that settled
	RuleIndex      int           // Position in the chain (1-based)
	TotalRules     int           // Number of rules in the chain
	Passed         bool          // Whether the rule passed
	Duration       time.Duration // How long this rule took
	EvaluatedRules int           // Rules evaluated so far (for all_complete)
	TotalDuration  time.Duration // Total chain time (for all_complete)
	Timestamp      time.Time     // When the event occurred
}

// Pipe evaluates rules left-to-right with fail-fast semantics: the first
// failed Result short-circuits the rest of the chain and is returned
// verbatim, with no wrapping or transformation of its error payload. An empty
// chain passes vacuously. Evaluation is a flat loop, so chains of many
// thousands of rules run in constant stack.
//
// The shared context is resolved once before the loop (cloned or passed
// through per the clone policy), then handed unchanged to every rule.
// Sequential rules therefore observe mutations made by earlier siblings
// when the context is a reference type, cloned or not.
//
// Pipe offers a rich API to modify the chain at runtime and is safe for
// concurrent use; the rule list is snapshotted per evaluation.
//
// # Observability
//
// Metrics:
//   - pipe.evaluated.total: counter of evaluations
//   - pipe.passed.total / pipe.failed.total: outcome counters
//   - pipe.rules.evaluated / pipe.rules.total: progress gauges
//   - pipe.duration.ms: gauge of total chain duration
//
// Traces:
//   - pipe.evaluate: parent span for the whole chain
//   - pipe.rule: child span per rule
//
// Events (via hooks):
//   - pipe.rule_complete: fired as each rule settles
//   - pipe.all_complete: fired when the whole chain passes
//
// Example:
//
//	pipe := rulz.NewPipe("validate-tx", checkAmount, checkCurrency)
//	pipe.OnRuleComplete(func(_ context.Context, ev rulz.PipeEvent) error {
//	    log.Printf("%s %d/%d passed=%v", ev.RuleName, ev.RuleIndex, ev.TotalRules, ev.Passed)
//	    return nil
//	})
type Pipe[I, E, C any] struct {
	name      Name
	rules     []Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
	metrics   *metricz.Registry
	tracer    *tracez.Tracer
	hooks     *hookz.Hooks[PipeEvent]
}

// NewPipe creates a Pipe with optional initial rules. The chain is ready to
// use immediately and can be modified concurrently afterwards.
func NewPipe[I, E, C any](name Name, rules ...Rule[I, E, C]) *Pipe[I, E, C] {
	metrics := metricz.New()
	metrics.Counter(PipeEvaluatedTotal)
	metrics.Counter(PipePassedTotal)
	metrics.Counter(PipeFailedTotal)
	metrics.Gauge(PipeRulesEvaluated)
	metrics.Gauge(PipeRulesTotal)
	metrics.Gauge(PipeDurationMs)

	return &Pipe[I, E, C]{
		name:    name,
		rules:   slices.Clone(rules),
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[PipeEvent](),
	}
}

// Evaluate implements the Rule interface.
func (p *Pipe[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	p.mu.RLock()
	rules := make([]Rule[I, E, C], len(p.rules))
	copy(rules, p.rules)
	mode, transform := p.mode, p.transform
	clone, strategy := p.clone, p.strategy
	p.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	p.metrics.Counter(PipeEvaluatedTotal).Inc()
	p.metrics.Gauge(PipeRulesTotal).Set(float64(len(rules)))
	start := time.Now()

	ctx, span := p.tracer.StartSpan(ctx, PipeEvaluateSpan)
	span.SetTag(PipeTagRuleCount, fmt.Sprintf("%d", len(rules)))
	passed := false
	defer func() {
		p.metrics.Gauge(PipeDurationMs).Set(float64(time.Since(start).Milliseconds()))
		if passed {
			span.SetTag(PipeTagPassed, "true")
			p.metrics.Counter(PipePassedTotal).Inc()
		} else {
			span.SetTag(PipeTagPassed, "false")
			p.metrics.Counter(PipeFailedTotal).Inc()
		}
		span.Finish()
	}()

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		return fault(mode, transform, cloneErr)
	}

	evaluated := 0
	for i, r := range rules {
		ruleCtx, ruleSpan := p.tracer.StartSpan(ctx, PipeRuleSpan)
		ruleSpan.SetTag(PipeTagRuleIndex, fmt.Sprintf("%d", i+1))
		ruleSpan.SetTag(PipeTagRuleName, string(r.Name()))

		ruleStart := time.Now()
		res := evalRule(ruleCtx, r, input, shared, mode, transform)
		ruleDuration := time.Since(ruleStart)
		ruleSpan.Finish()

		_ = p.hooks.Emit(ctx, PipeEventRuleComplete, PipeEvent{ //nolint:errcheck
			Name:       p.name,
			RuleName:   r.Name(),
			RuleIndex:  i + 1,
			TotalRules: len(rules),
			Passed:     !res.Failed(),
			Duration:   ruleDuration,
			Timestamp:  time.Now(),
		})

		if res.Failed() {
			// Short-circuit: the failing rule's result is returned verbatim.
			return res
		}

		evaluated++
		p.metrics.Gauge(PipeRulesEvaluated).Set(float64(evaluated))
	}

	passed = true
	_ = p.hooks.Emit(ctx, PipeEventAllComplete, PipeEvent{ //nolint:errcheck
		Name:           p.name,
		TotalRules:     len(rules),
		EvaluatedRules: evaluated,
		TotalDuration:  time.Since(start),
		Passed:         true,
		Timestamp:      time.Now(),
	})

	return Pass[E]()
}

// WithErrorMode sets the composition-level safety mode. ModeSafe forces
// every child safe regardless of its own configuration; ModeUnsafe (or the
// unset default) defers to each child's own mode.
func (p *Pipe[I, E, C]) WithErrorMode(mode ErrorMode) *Pipe[I, E, C] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = mode
	return p
}

// WithTransform sets the transform applied to recovered panics and engine
// sentinels when converting them to E.
func (p *Pipe[I, E, C]) WithTransform(fn Transform[E]) *Pipe[I, E, C] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transform = fn
	return p
}

// WithContextClone requests that the shared context be cloned once per
// evaluation with the given strategy before any rule runs.
func (p *Pipe[I, E, C]) WithContextClone(strategy CloneStrategy) *Pipe[I, E, C] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clone = true
	p.strategy = strategy
	return p
}

// ErrorMode returns the composition-level safety mode for precedence
// resolution when this Pipe is nested inside another composition.
func (p *Pipe[I, E, C]) ErrorMode() ErrorMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// Register appends rules to the chain. Rules run in registration order.
func (p *Pipe[I, E, C]) Register(rules ...Rule[I, E, C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rules...)
}

// Len returns the number of rules in the chain.
func (p *Pipe[I, E, C]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rules)
}

// Clear removes all rules from the chain.
func (p *Pipe[I, E, C]) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = p.rules[:0]
}

// Unshift adds rules to the front of the chain (runs first).
func (p *Pipe[I, E, C]) Unshift(rules ...Rule[I, E, C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = slices.Insert(p.rules, 0, rules...)
}

// Push adds rules to the back of the chain (runs last).
func (p *Pipe[I, E, C]) Push(rules ...Rule[I, E, C]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, rules...)
}

// Shift removes and returns the first rule.
func (p *Pipe[I, E, C]) Shift() (Rule[I, E, C], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.rules) == 0 {
		var zero Rule[I, E, C]
		return zero, ErrEmptyPipe
	}

	r := p.rules[0]
	p.rules = p.rules[1:]
	return r, nil
}

// Pop removes and returns the last rule.
func (p *Pipe[I, E, C]) Pop() (Rule[I, E, C], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.rules) == 0 {
		var zero Rule[I, E, C]
		return zero, ErrEmptyPipe
	}

	last := len(p.rules) - 1
	r := p.rules[last]
	p.rules = p.rules[:last]
	return r, nil
}

// Names returns the names of all rules in chain order.
func (p *Pipe[I, E, C]) Names() []Name {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]Name, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name()
	}
	return names
}

// Remove removes the first rule with the specified name.
func (p *Pipe[I, E, C]) Remove(name Name) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.rules {
		if r.Name() == name {
			p.rules = slices.Delete(p.rules, i, i+1)
			return nil
		}
	}

	return fmt.Errorf("rule %q not found", name)
}

// Replace replaces the first rule with the specified name.
func (p *Pipe[I, E, C]) Replace(name Name, rule Rule[I, E, C]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.rules {
		if r.Name() == name {
			p.rules[i] = rule
			return nil
		}
	}

	return fmt.Errorf("rule %q not found", name)
}

// After inserts rules after the first rule with the specified name.
func (p *Pipe[I, E, C]) After(afterName Name, rules ...Rule[I, E, C]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.rules {
		if r.Name() == afterName {
			p.rules = slices.Insert(p.rules, i+1, rules...)
			return nil
		}
	}

	return fmt.Errorf("rule %q not found", afterName)
}

// Before inserts rules before the first rule with the specified name.
func (p *Pipe[I, E, C]) Before(beforeName Name, rules ...Rule[I, E, C]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.rules {
		if r.Name() == beforeName {
			p.rules = slices.Insert(p.rules, i, rules...)
			return nil
		}
	}

	return fmt.Errorf("rule %q not found", beforeName)
}

// Name returns the name of this chain.
func (p *Pipe[I, E, C]) Name() Name {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Metrics returns the metrics registry for this combinator.
func (p *Pipe[I, E, C]) Metrics() *metricz.Registry {
	return p.metrics
}

// Tracer returns the tracer for this combinator.
func (p *Pipe[I, E, C]) Tracer() *tracez.Tracer {
	return p.tracer
}

// Close gracefully shuts down observability components.
func (p *Pipe[I, E, C]) Close() error {
	if p.tracer != nil {
		p.tracer.Close()
	}
	p.hooks.Close()
	return nil
}

// OnRuleComplete registers a handler called asynchronously as each rule in
// the chain settles, whether it passed or failed.
func (p *Pipe[I, E, C]) OnRuleComplete(handler func(context.Context, PipeEvent) error) error {
	_, err := p.hooks.Hook(PipeEventRuleComplete, handler)
	return err
}

// OnAllComplete registers a handler called asynchronously after the whole
// chain passes. The event carries aggregate statistics.
func (p *Pipe[I, E, C]) OnAllComplete(handler func(context.Context, PipeEvent) error) error {
	_, err := p.hooks.Hook(PipeEventAllComplete, handler)
	return err
}
