package rulz

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the Memoize combinator.
const (
	MemoizeHitsTotal      = metricz.Key("memoize.hits.total")
	MemoizeMissesTotal    = metricz.Key("memoize.misses.total")
	MemoizeEvictionsTotal = metricz.Key("memoize.evictions.total")
	MemoizeSize           = metricz.Key("memoize.size")
)

// memoEntry is one cache slot. Waiters block on done; result and rec are
// published before done closes, so the close is the happens-before edge.
type memoEntry[E any] struct {
	done       chan struct{}
	result     Result[E]
	rec        any
	insertedAt time.Time
	settled    bool
}

// Memoize caches rule results keyed by a caller-supplied string derived
// from the input. The cache is owned exclusively by this combinator
// instance: one cache per NewMemoize call site, shared by all
// evaluations of that wrapped rule, never process-wide.
//
// Cache behavior on each evaluation:
//   - TTL expiry is lazy: entries older than the TTL are swept on access,
//     never by a background timer.
//   - At capacity, the oldest-inserted entry is evicted (insertion order,
//     not access order).
//   - A hit returns the cached outcome, including one still in flight:
//     concurrent evaluations with the same key share the single pending
//     evaluation rather than duplicating work.
//   - A panicking evaluation (unsafe mode) evicts its entry before
//     re-raising, so a future call retries instead of replaying the fault
//     forever. Waiters already joined to the in-flight entry observe the
//     same panic. Safe-mode failures are ordinary results and stay cached.
//
// The cache key is derived purely from the input. Context changes do not
// invalidate the cache, so derive the key from everything that matters
// for the verdict.
//
// Timestamps come from an injectable clockz.Clock for deterministic tests.
//
// Example:
//
//	memo := rulz.NewMemoize("card-lookup", cardCheck, func(tx Tx) string { return tx.CardNumber }).
//	    WithTTL(time.Minute).
//	    WithMaxSize(10_000)
type Memoize[I, E, C any] struct {
	name      Name
	rule      Rule[I, E, C]
	keyFn     func(I) string
	ttl       time.Duration
	maxSize   int
	mode      ErrorMode
	transform Transform[E]
	clock     clockz.Clock
	mu        sync.Mutex
	entries   map[string]*memoEntry[E]
	order     []string
	metrics   *metricz.Registry
}

// NewMemoize creates a Memoize combinator. With no TTL or size bound the
// cache grows without limit.
func NewMemoize[I, E, C any](name Name, rule Rule[I, E, C], keyFn func(I) string) *Memoize[I, E, C] {
	metrics := metricz.New()
	metrics.Counter(MemoizeHitsTotal)
	metrics.Counter(MemoizeMissesTotal)
	metrics.Counter(MemoizeEvictionsTotal)
	metrics.Gauge(MemoizeSize)

	return &Memoize[I, E, C]{
		name:    name,
		rule:    rule,
		keyFn:   keyFn,
		entries: make(map[string]*memoEntry[E]),
		metrics: metrics,
	}
}

// Evaluate implements the Rule interface.
func (m *Memoize[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	m.mu.Lock()
	rule := m.rule
	keyFn := m.keyFn
	ttl, maxSize := m.ttl, m.maxSize
	mode, transform := m.mode, m.transform
	clock := m.getClockLocked()
	m.mu.Unlock()

	key, rec := deriveKey(input, keyFn, compositionMode(mode))
	if rec != nil {
		return Fail(transformValue(transform, rec))
	}

	m.mu.Lock()
	now := clock.Now()
	if ttl > 0 {
		m.sweepLocked(now, ttl)
	}

	if entry, ok := m.entries[key]; ok {
		m.metrics.Counter(MemoizeHitsTotal).Inc()
		m.mu.Unlock()
		<-entry.done
		if entry.rec != nil {
			// Replay the fault this waiter joined; the entry itself has
			// already been evicted, so later calls retry fresh.
			panic(entry.rec)
		}
		return entry.result
	}

	m.metrics.Counter(MemoizeMissesTotal).Inc()
	if maxSize > 0 && len(m.entries) >= maxSize {
		m.evictOldestLocked()
	}
	entry := &memoEntry[E]{done: make(chan struct{}), insertedAt: now}
	m.entries[key] = entry
	m.order = append(m.order, key)
	m.metrics.Gauge(MemoizeSize).Set(float64(len(m.entries)))
	m.mu.Unlock()

	res, rec := evalRuleCapture(ctx, rule, input, shared, mode, transform)
	m.mu.Lock()
	if rec != nil {
		entry.rec = rec
		m.removeLocked(key)
		m.mu.Unlock()
		close(entry.done)
		panic(rec)
	}
	entry.result = res
	entry.settled = true
	m.mu.Unlock()
	close(entry.done)
	return res
}

// deriveKey runs the key function, recovering its panics in safe mode so a
// bad key derivation surfaces as a failure instead of unwinding.
func deriveKey[I any](input I, keyFn func(I) string, mode ErrorMode) (key string, rec any) {
	if mode == ModeUnsafe {
		return keyFn(input), nil
	}
	defer func() {
		rec = recover()
	}()
	return keyFn(input), nil
}

// sweepLocked drops settled entries older than the TTL. In-flight entries
// are left alone so concurrent callers keep sharing them.
func (m *Memoize[I, E, C]) sweepLocked(now time.Time, ttl time.Duration) {
	kept := m.order[:0]
	for _, key := range m.order {
		entry, ok := m.entries[key]
		if !ok {
			continue
		}
		if entry.settled && now.Sub(entry.insertedAt) > ttl {
			delete(m.entries, key)
			m.metrics.Counter(MemoizeEvictionsTotal).Inc()
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
	m.metrics.Gauge(MemoizeSize).Set(float64(len(m.entries)))
}

// evictOldestLocked removes the oldest-inserted settled entry. If every
// entry is in flight the cache temporarily exceeds maxSize rather than
// breaking in-flight sharing.
func (m *Memoize[I, E, C]) evictOldestLocked() {
	for i, key := range m.order {
		entry, ok := m.entries[key]
		if !ok || entry.settled {
			if ok {
				delete(m.entries, key)
				m.metrics.Counter(MemoizeEvictionsTotal).Inc()
			}
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// removeLocked drops a specific key, preserving insertion order of the rest.
func (m *Memoize[I, E, C]) removeLocked(key string) {
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.metrics.Gauge(MemoizeSize).Set(float64(len(m.entries)))
}

// WithTTL sets the entry time-to-live. Zero disables expiry.
func (m *Memoize[I, E, C]) WithTTL(ttl time.Duration) *Memoize[I, E, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
	return m
}

// WithMaxSize bounds the cache; zero means unbounded.
func (m *Memoize[I, E, C]) WithMaxSize(n int) *Memoize[I, E, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSize = n
	return m
}

// WithErrorMode sets the composition-level safety mode for the inner rule.
func (m *Memoize[I, E, C]) WithErrorMode(mode ErrorMode) *Memoize[I, E, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	return m
}

// WithTransform sets the transform for recovered panics and sentinels.
func (m *Memoize[I, E, C]) WithTransform(fn Transform[E]) *Memoize[I, E, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = fn
	return m
}

// WithClock sets a custom clock for testing.
func (m *Memoize[I, E, C]) WithClock(clock clockz.Clock) *Memoize[I, E, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
	return m
}

func (m *Memoize[I, E, C]) getClockLocked() clockz.Clock {
	if m.clock == nil {
		return clockz.RealClock
	}
	return m.clock
}

// Len returns the current number of cached entries.
func (m *Memoize[I, E, C]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ErrorMode returns the composition-level safety mode.
func (m *Memoize[I, E, C]) ErrorMode() ErrorMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Name returns the name of this combinator.
func (m *Memoize[I, E, C]) Name() Name {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Metrics returns the metrics registry for this combinator.
func (m *Memoize[I, E, C]) Metrics() *metricz.Registry {
	return m.metrics
}
