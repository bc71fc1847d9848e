// Package lock serializes snapshot creation per project so the version chain
// stays linear under concurrent writers.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a string key. Acquire blocks until the
// key is free or ctx is done; the returned function releases the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Compile-time check
var _ Locker = (*KeyedMutex)(nil)

// KeyedMutex is an in-process Locker. It is sufficient while a single
// instance serves all writers for a project; use the redis locker when the
// service runs replicated.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewKeyedMutex creates an empty in-process locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]chan struct{})}
}

func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	slot, ok := m.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.slots[key] = slot
	}
	m.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
