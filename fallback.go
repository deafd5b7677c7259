package rulz

import (
	"context"
	"sync"
)

// Fallback tries the primary rule and, only if it fails, evaluates the
// backup and returns the backup's result as its own. A passing primary
// short-circuits the backup entirely. Fallback is for primary/backup
// pairs (trying a different way to reach the same verdict) where OneOf
// would be overkill.
type Fallback[I, E, C any] struct {
	name      Name
	primary   Rule[I, E, C]
	backup    Rule[I, E, C]
	mode      ErrorMode
	transform Transform[E]
	mu        sync.RWMutex
}

// NewFallback creates a Fallback combinator.
func NewFallback[I, E, C any](name Name, primary, backup Rule[I, E, C]) *Fallback[I, E, C] {
	return &Fallback[I, E, C]{
		name:    name,
		primary: primary,
		backup:  backup,
	}
}

// Evaluate implements the Rule interface.
func (f *Fallback[I, E, C]) Evaluate(ctx context.Context, input I, shared C) Result[E] {
	f.mu.RLock()
	primary, backup := f.primary, f.backup
	mode, transform := f.mode, f.transform
	f.mu.RUnlock()

	res := evalRule(ctx, primary, input, shared, mode, transform)
	if !res.Failed() {
		return res
	}
	return evalRule(ctx, backup, input, shared, mode, transform)
}

// WithErrorMode sets the composition-level safety mode.
func (f *Fallback[I, E, C]) WithErrorMode(mode ErrorMode) *Fallback[I, E, C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	return f
}

// WithTransform sets the transform for recovered panics and sentinels.
func (f *Fallback[I, E, C]) WithTransform(fn Transform[E]) *Fallback[I, E, C] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transform = fn
	return f
}

// ErrorMode returns the composition-level safety mode.
func (f *Fallback[I, E, C]) ErrorMode() ErrorMode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mode
}

// Name returns the name of this combinator.
func (f *Fallback[I, E, C]) Name() Name {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}
