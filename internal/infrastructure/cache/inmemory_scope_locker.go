package cache

import (
	"context"
	"sync"

	"github.com/xtravels/backend/internal/domain/shared"
)

// InMemoryScopeLocker implements ScopeLocker with one channel mutex per scope.
// This is suitable for single-instance deployments and testing
type InMemoryScopeLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// slot is a mutex that a waiter can abandon when its context ends
type slot struct {
	ch      chan struct{}
	waiters int
}

// NewInMemoryScopeLocker creates a new in-memory scope locker
func NewInMemoryScopeLocker() *InMemoryScopeLocker {
	return &InMemoryScopeLocker{slots: make(map[string]*slot)}
}

// Lock blocks until scope is free or ctx is done
func (l *InMemoryScopeLocker) Lock(ctx context.Context, scope string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[scope]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[scope] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(scope, s)
		return nil, shared.ErrLockTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.leave(scope, s)
		})
	}, nil
}

// leave drops the slot once nobody holds or waits for it
func (l *InMemoryScopeLocker) leave(scope string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, scope)
	}
}

// Size returns the number of scopes currently held or awaited
func (l *InMemoryScopeLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Ensure InMemoryScopeLocker implements ScopeLocker
var _ shared.ScopeLocker = (*InMemoryScopeLocker)(nil)
