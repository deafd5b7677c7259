package rulz

import (
	"context"
	"sync"
)

// Compose evaluates rules right-to-left: the last rule in the list runs
// first. It is the mirror of Pipe with the same fail-fast contract: the
// first failed Result (in reverse order) short-circuits the rest and is
// returned verbatim, and an empty chain passes.
//
// Compose exists for callers who think in mathematical composition order;
// there is no other behavioral difference from Pipe, so it stays a slim
// combinator without the dynamic modification API.
type Compose[I, E, C any] struct {
	name      Name
	rules     []Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	clone     bool
	strategy  CloneStrategy
	mu        sync.RWMutex
}

// NewCompose creates a Compose combinator over the given rules.
func NewCompose[I, E, C any](name Name, rules ...Rule[I, E, C]) *Compose[I, E, C] {
	return &Compose[I, E, C]{
		name:  name,
		rules: rules,
	}
}

// Evaluate implements the Rule interface.
func (c *Compose[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	c.mu.RLock()
	rules := make([]Rule[I, E, C], len(c.rules))
	copy(rules, c.rules)
	mode, transform := c.mode, c.transform
	clone, strategy := c.clone, c.strategy
	c.mu.RUnlock()

	shared, cloneErr := resolveShared(shared, clone, strategy)
	if cloneErr != nil {
		return fault(mode, transform, cloneErr)
	}

	for i := len(rules) - 1; i >= 0; i-- {
		res := evalRule(ctx, rules[i], input, shared, mode, transform)
		if res.Failed() {
			return res
		}
	}
	return Pass[E]()
}

// WithErrorMode sets the composition-level safety mode.
func (c *Compose[I, E, C]) WithErrorMode(mode ErrorMode) *Compose[I, E, C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return c
}

// WithTransform sets the transform for recovered panics and sentinels.
func (c *Compose[I, E, C]) WithTransform(fn Transform[E]) *Compose[I, E, C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transform = fn
	return c
}

// WithContextClone requests a once-per-evaluation context clone.
func (c *Compose[I, E, C]) WithContextClone(strategy CloneStrategy) *Compose[I, E, C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clone = true
	c.strategy = strategy
	return c
}

// ErrorMode returns the composition-level safety mode.
func (c *Compose[I, E, C]) ErrorMode() ErrorMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Name returns the name of this combinator.
func (c *Compose[I, E, C]) Name() Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}
