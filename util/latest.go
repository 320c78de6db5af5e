// Package util holds small concurrency helpers shared between the sampling
// loop and its observers.
package util

import "sync"

// Latest keeps the most recent value sent to it and signals observers that
// a new one arrived. Send never blocks: bursts collapse into one pending
// notification.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	set    bool
	notify chan struct{}
}

// NewLatest creates an empty Latest.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{notify: make(chan struct{}, 1)}
}

// Send replaces the stored value.
func (l *Latest[T]) Send(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
	l.set = true
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Channel returns the notification channel for use in select statements.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

// Value returns the stored value and whether anything was sent yet.
func (l *Latest[T]) Value() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.set
}
