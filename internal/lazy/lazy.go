// Package lazy provides a load-once value whose failed loads are retried.
package lazy

import "sync"

// Value holds a T produced by a loader on first use. A successful load is
// kept for the life of the Value; a failed load is not cached, so the next
// Get tries again. Concurrent callers share one load.
type Value[T any] struct {
	mu     sync.Mutex
	load   func() (T, error)
	value  T
	loaded bool
}

func New[T any](load func() (T, error)) *Value[T] {
	return &Value[T]{load: load}
}

// Get returns the loaded value, loading it if needed.
func (v *Value[T]) Get() (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded {
		return v.value, nil
	}
	val, err := v.load()
	if err != nil {
		var zero T
		return zero, err
	}
	v.value = val
	v.loaded = true
	return val, nil
}

// Loaded reports whether a load has succeeded.
func (v *Value[T]) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Peek returns the value without loading it.
func (v *Value[T]) Peek() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.loaded
}
