package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Value caches a single value together with the time it was fetched.
// Callers must Invalidate after writing to the underlying source.
type Value[T any] struct {
	mu        sync.RWMutex
	ttl       time.Duration
	now       func() time.Time
	value     T
	fetchedAt time.Time
	valid     bool
	gen       uint64
	group     singleflight.Group
}

// NewValue creates a cache that serves a loaded value for ttl.
func NewValue[T any](ttl time.Duration, opts ...Option) *Value[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Value[T]{ttl: ttl, now: o.now}
}

// Get returns the cached value if it is still fresh.
func (v *Value[T]) Get() (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.freshLocked() {
		var zero T
		return zero, false
	}
	return v.value, true
}

// FetchedAt reports when the cached value was loaded; zero when empty.
func (v *Value[T]) FetchedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.valid {
		return time.Time{}
	}
	return v.fetchedAt
}

// Set stores a freshly fetched value.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = val
	v.fetchedAt = v.now()
	v.valid = true
}

// Invalidate discards the cached value. A load already in flight will not
// repopulate the cache.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	v.value = zero
	v.valid = false
	v.gen++
}

// GetOrLoad returns the fresh cached value or loads a new one. Concurrent
// callers share a single load, which keeps running when the caller that
// started it goes away; a caller whose ctx ends stops waiting with ctx.Err().
// Failed loads are not cached.
func (v *Value[T]) GetOrLoad(ctx context.Context, load func(context.Context) (T, error)) (T, error) {
	if val, ok := v.Get(); ok {
		return val, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := v.group.DoChan("value", func() (any, error) {
		if val, ok := v.Get(); ok {
			return val, nil
		}
		v.mu.RLock()
		gen := v.gen
		v.mu.RUnlock()

		val, err := load(shared)
		if err != nil {
			return val, err
		}

		v.mu.Lock()
		if v.gen == gen && v.ttl > 0 {
			v.value = val
			v.fetchedAt = v.now()
			v.valid = true
		}
		v.mu.Unlock()
		return val, nil
	})
	return waitShared[T](ctx, ch)
}

// waitShared waits for a shared load on behalf of one caller.
func waitShared[T any](ctx context.Context, ch <-chan singleflight.Result) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (v *Value[T]) freshLocked() bool {
	return v.valid && v.ttl > 0 && v.now().Sub(v.fetchedAt) < v.ttl
}
