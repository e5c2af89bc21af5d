// Package timedmutex provides a mutex whose Lock can time out, built
// on a buffered channel of capacity one.
package timedmutex

import (
	"context"
	"errors"
)

// ErrTimeout is returned by TryLock when ctx expires before the lock
// is acquired.
var ErrTimeout = errors.New("timedmutex: timed out acquiring lock")

type Mutex struct {
	ch chan struct{}
}

func New() *Mutex {
	m := &Mutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// TryLock blocks until the lock is acquired or ctx is done.
func (m *Mutex) TryLock(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Unlock releases the lock. Must only be called after a successful
// TryLock.
func (m *Mutex) Unlock() {
	select {
	case m.ch <- struct{}{}:
	default:
		panic("timedmutex: Unlock of unlocked mutex")
	}
}
