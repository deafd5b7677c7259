package rulz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Match combinator.
const (
	// Metrics.
	MatchEvaluatedTotal = metricz.Key("match.evaluated.total")
	MatchRoutedTotal    = metricz.Key("match.routed.total")
	MatchUnroutedTotal  = metricz.Key("match.unrouted.total")
	MatchDurationMs     = metricz.Key("match.duration.ms")

	// Spans.
	MatchEvaluateSpan = tracez.Key("match.evaluate")

	// Tags.
	MatchTagRouteKey = tracez.Tag("match.route_key")
	MatchTagRouted   = tracez.Tag("match.routed")
	MatchTagPassed   = tracez.Tag("match.passed")

	// Hook event keys.
	MatchEventRouted   = hookz.Key("match.routed")
	MatchEventUnrouted = hookz.Key("match.unrouted")
)

// MatchEvent is emitted via hookz when routing decisions are made,
// providing visibility into which rule handled the input or that no
// route was found.
type MatchEvent[K comparable] struct {
	Name      Name          // Combinator name
	RouteKey  K             // The key returned by the accessor
	RuleName  Name          // Name of the routed rule (if any)
	Routed    bool          // Whether a route was found
	Passed    bool          // Whether the routed rule passed
	Duration  time.Duration // How long the routed rule took
	Timestamp time.Time     // When the event occurred
}

// Match dispatches to a rule selected by a key computed from the input.
// The accessor examines the input (and shared context) and returns a
// comparable key; the rule registered for that exact key runs. Keys are
// matched by map equality, so define typed constants rather than magic
// strings:
//
//	type PaymentRoute string
//	const (
//	    RouteCard   PaymentRoute = "credit_card"
//	    RouteCrypto PaymentRoute = "crypto"
//	)
//
//	match := rulz.NewMatch("payment-router",
//	    func(_ context.Context, tx Tx, _ Ctx) PaymentRoute { return PaymentRoute(tx.PaymentType) },
//	)
//	match.AddRoute(RouteCard, cardRules)
//	match.AddRoute(RouteCrypto, cryptoRules)
//
// The default case is an explicit tagged choice, not a duck-typed value:
// DefaultError installs a literal failure payload, Fallback installs a
// rule to evaluate. With neither configured, an unmatched key fails with
// the generated message "No matching rule for key: <key>" through the
// error transform.
//
// # Observability
//
// Metrics:
//   - match.evaluated.total: counter of dispatches
//   - match.routed.total / match.unrouted.total: routing counters
//   - match.duration.ms: gauge of dispatch duration
//
// Traces:
//   - match.evaluate: span covering the routing decision and the rule
//
// Events (via hooks):
//   - match.routed: fired when a route (or fallback) ran
//   - match.unrouted: fired when no route matched
type Match[I, E, C any, K comparable] struct {
	name       Name
	accessor   Accessor[I, C, K]
	routes     map[K]Rule[I, E, C]
	defaultErr *E
	fallback   Rule[I, E, C]
	mode       ErrorMode
	transform  Transform[E]
	clone      bool
	strategy   CloneStrategy
	mu         sync.RWMutex
	metrics    *metricz.Registry
	tracer     *tracez.Tracer
	hooks      *hookz.Hooks[MatchEvent[K]]
}

// NewMatch creates a Match combinator with the given accessor.
func NewMatch[I, E, C any, K comparable](name Name, accessor Accessor[I, C, K]) *Match[I, E, C, K] {
	metrics := metricz.New()
	metrics.Counter(MatchEvaluatedTotal)
	metrics.Counter(MatchRoutedTotal)
	metrics.Counter(MatchUnroutedTotal)
	metrics.Gauge(MatchDurationMs)

	return &Match[I, E, C, K]{
		name:     name,
		accessor: accessor,
		routes:   make(map[K]Rule[I, E, C]),
		metrics:  metrics,
		tracer:   tracez.New(),
		hooks:    hookz.New[MatchEvent[K]](),
	}
}

// Evaluate implements the Rule interface.
func (m *Match[I, E, C, K]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	m.mu.RLock()
	accessor := m.accessor
	routes := make(map[K]Rule[I, E, C], len(m.routes))
	for k, v := range m.routes {
		routes[k] = v
	}
	defaultErr, fallback := m.defaultErr, m.fallback
	mode, transform := m.mode, m.transform
	clone, strategy := m.clone, m.strategy
	m.mu.RUnlock()

	m.metrics.Counter(MatchEvaluatedTotal).Inc()
	start := time.Now()

	ctx, span := m.tracer.StartSpan(ctx, MatchEvaluateSpan)
	defer func() {
		m.metrics.Gauge(MatchDurationMs).Set(float64(time.Since(start).Milliseconds()))
		span.Finish()
	}()

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		return fault(mode, transform, cloneErr)
	}

	key, rec := runAccessor(ctx, accessor, input, shared, compositionMode(mode))
	if rec != nil {
		// Accessor fault; unsafe mode would have let it unwind already.
		return Fail(transformValue(transform, rec))
	}
	span.SetTag(MatchTagRouteKey, fmt.Sprintf("%v", key))

	rule, exists := routes[key]
	if !exists {
		if fallback != nil {
			rule = fallback
		} else {
			span.SetTag(MatchTagRouted, "false")
			m.metrics.Counter(MatchUnroutedTotal).Inc()
			_ = m.hooks.Emit(ctx, MatchEventUnrouted, MatchEvent[K]{ //nolint:errcheck
				Name:      m.name,
				RouteKey:  key,
				Routed:    false,
				Timestamp: time.Now(),
			})
			if defaultErr != nil {
				return Fail(*defaultErr)
			}
			return Fail(transformValue[E](transform, fmt.Errorf("No matching rule for key: %v", key)))
		}
	}

	span.SetTag(MatchTagRouted, "true")
	m.metrics.Counter(MatchRoutedTotal).Inc()

	ruleStart := time.Now()
	res := evalRule(ctx, rule, input, shared, mode, transform)
	span.SetTag(MatchTagPassed, fmt.Sprintf("%v", !res.Failed()))

	_ = m.hooks.Emit(ctx, MatchEventRouted, MatchEvent[K]{ //nolint:errcheck
		Name:      m.name,
		RouteKey:  key,
		RuleName:  rule.Name(),
		Routed:    true,
		Passed:    !res.Failed(),
		Duration:  time.Since(ruleStart),
		Timestamp: time.Now(),
	})

	return res
}

// runAccessor computes the route key, recovering accessor panics in safe
// mode so they surface as the Match's own failure, distinct from any
// routed rule's failure.
func runAccessor[I, C any, K comparable](ctx context.Context, accessor Accessor[I, C, K], input I, shared C, mode ErrorMode) (key K, rec any) {
	if mode == ModeUnsafe {
		return accessor(ctx, input, shared), nil
	}
	defer func() {
		rec = recover()
	}()
	return accessor(ctx, input, shared), nil
}

// AddRoute adds or updates a route.
func (m *Match[I, E, C, K]) AddRoute(key K, rule Rule[I, E, C]) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[key] = rule
	return m
}

// RemoveRoute removes a route.
func (m *Match[I, E, C, K]) RemoveRoute(key K) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, key)
	return m
}

// HasRoute checks whether a route exists for the key.
func (m *Match[I, E, C, K]) HasRoute(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.routes[key]
	return exists
}

// Routes returns a copy of the current routing table.
func (m *Match[I, E, C, K]) Routes() map[K]Rule[I, E, C] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	routes := make(map[K]Rule[I, E, C], len(m.routes))
	for k, v := range m.routes {
		routes[k] = v
	}
	return routes
}

// SetAccessor updates the accessor function.
func (m *Match[I, E, C, K]) SetAccessor(accessor Accessor[I, C, K]) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessor = accessor
	return m
}

// DefaultError installs a literal failure payload for unmatched keys.
// Mutually exclusive with Fallback; the fallback wins when both are set.
func (m *Match[I, E, C, K]) DefaultError(err E) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = &err
	return m
}

// Fallback installs a rule evaluated for unmatched keys.
func (m *Match[I, E, C, K]) Fallback(rule Rule[I, E, C]) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = rule
	return m
}

// WithErrorMode sets the composition-level safety mode.
func (m *Match[I, E, C, K]) WithErrorMode(mode ErrorMode) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return m
}

// WithTransform sets the transform for recovered panics and sentinels.
func (m *Match[I, E, C, K]) WithTransform(fn Transform[E]) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = fn
	return m
}

// WithContextClone requests a once-per-evaluation context clone.
func (m *Match[I, E, C, K]) WithContextClone(strategy CloneStrategy) *Match[I, E, C, K] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clone = true
	m.strategy = strategy
	return m
}

// ErrorMode returns the composition-level safety mode.
func (m *Match[I, E, C, K]) ErrorMode() ErrorMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Name returns the name of this combinator.
func (m *Match[I, E, C, K]) Name() Name {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// Metrics returns the metrics registry for this combinator.
func (m *Match[I, E, C, K]) Metrics() *metricz.Registry {
	return m.metrics
}

// Tracer returns the tracer for this combinator.
func (m *Match[I, E, C, K]) Tracer() *tracez.Tracer {
	return m.tracer
}

// Close gracefully shuts down observability components.
func (m *Match[I, E, C, K]) Close() error {
	if m.tracer != nil {
		m.tracer.Close()
	}
	m.hooks.Close()
	return nil
}

// OnRouted registers a handler called asynchronously after a routed rule
// (or the fallback) settles.
func (m *Match[I, E, C, K]) OnRouted(handler func(context.Context, MatchEvent[K]) error) error {
	_, err := m.hooks.Hook(MatchEventRouted, handler)
	return err
}

// OnUnrouted registers a handler called asynchronously when no route
// matched the computed key.
func (m *Match[I, E, C, K]) OnUnrouted(handler func(context.Context, MatchEvent[K]) error) error {
	_, err := m.hooks.Hook(MatchEventUnrouted, handler)
	return err
}
