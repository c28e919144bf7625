// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syncx holds small generic wrappers around the sync package.
package syncx

import "sync"

// Protected is a value guarded by a read-write mutex. Reference types
// (maps, slices, pointers) may be mutated in place under [Protected.Access].
type Protected[T any] struct {
	mu  sync.RWMutex
	val T
}

// Protect wraps val.
func Protect[T any](val T) *Protected[T] {
	return &Protected[T]{val: val}
}

// RAccess calls f with the value while holding the read lock.
func (p *Protected[T]) RAccess(f func(T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f(p.val)
}

// Access calls f with the value while holding the write lock.
func (p *Protected[T]) Access(f func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.val)
}

// Swap replaces the value with the one returned by f, which is called with
// the current value under the write lock.
func (p *Protected[T]) Swap(f func(T) T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.val = f(p.val)
}

// Read returns f applied to the value of p under the read lock.
func Read[T, R any](p *Protected[T], f func(T) R) R {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return f(p.val)
}

// Lazy holds a value computed on first use.
type Lazy[T any] struct {
	once sync.Once
	val  T
}

// Get returns the value, calling f to compute it if this is the first call.
// Later calls ignore f.
func (l *Lazy[T]) Get(f func() T) T {
	l.once.Do(func() { l.val = f() })
	return l.val
}
