// Package sequence hands out unique integer keys for new travels and
// positions for new bookings under concurrent writers.
package sequence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Scope delimits the rows a key is unique among: the rows of Entity
// matching Filter. Keys are read from and assigned to Column.
type Scope struct {
	Entity string
	Column string
	Filter store.Row
}

// Global is the scope of a root key. filter narrows the rows that
// consume keys (for travels: active rows only).
func Global(entity, column string, filter store.Row) Scope {
	return Scope{Entity: entity, Column: column, Filter: filter}
}

// Child is the scope of a position unique within one parent
func Child(entity, column, parentColumn string, parentKey any) Scope {
	return Scope{Entity: entity, Column: column, Filter: store.Row{parentColumn: parentKey}}
}

// Name identifies the scope family, independent of the parent
func (s Scope) Name() string {
	return s.Entity + "." + s.Column
}

// Key identifies the scope for locking
func (s Scope) Key() string {
	if len(s.Filter) == 0 {
		return s.Name()
	}
	cols := make([]string, 0, len(s.Filter))
	for c := range s.Filter {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s=%v", c, s.Filter[c])
	}
	return s.Name() + "|" + strings.Join(parts, ",")
}

// Allocator reads the current maximum of a scope under a scope lock
type Allocator struct {
	locker   shared.ScopeLocker
	lockWait time.Duration
	metrics  *telemetry.FederationMetrics
	logger   *zap.Logger
}

// AllocatorOption configures an Allocator
type AllocatorOption func(*Allocator)

// WithLockWait bounds how long Reserve waits for a busy scope
func WithLockWait(d time.Duration) AllocatorOption {
	return func(a *Allocator) {
		if d > 0 {
			a.lockWait = d
		}
	}
}

// WithMetrics records allocations and lock waits
func WithMetrics(m *telemetry.FederationMetrics) AllocatorOption {
	return func(a *Allocator) {
		a.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) AllocatorOption {
	return func(a *Allocator) {
		a.logger = logger
	}
}

// NewAllocator creates an allocator serializing scopes through locker
func NewAllocator(locker shared.ScopeLocker, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		locker:   locker,
		lockWait: 10 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reservation holds a scope lock and hands out consecutive values after
// the maximum observed under the lock. Release it once the unit of work
// that persists the values has ended.
type Reservation struct {
	scope   Scope
	next    int
	issued  int
	release func()
	once    sync.Once
}

// Reserve locks scope and reads MAX(column) within it through q.
// A scope without rows starts at 1.
func (a *Allocator) Reserve(ctx context.Context, q store.Querier, scope Scope) (*Reservation, error) {
	start := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, a.lockWait)
	defer cancel()

	release, err := a.locker.Lock(lockCtx, scope.Key())
	if err != nil {
		logger.For(ctx, a.logger).Warn("failed to lock numbering scope",
			zap.String("scope", scope.Key()),
			zap.Duration("waited", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}
	waited := time.Since(start)

	res, err := q.Select(ctx, store.Query{
		Entity:  scope.Entity,
		Columns: []store.Column{store.MaxCol(scope.Column, "max_value")},
		Where:   scope.Filter,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to read max %s: %w", scope.Name(), err)
	}

	current := 0
	if row, ok := res.First(); ok {
		current = row.Int("max_value")
	}
	r := &Reservation{scope: scope, next: current + 1}
	r.release = func() {
		release()
		a.metrics.RecordAllocation(context.WithoutCancel(ctx), scope.Name(), r.issued, waited)
	}
	return r, nil
}

// Allocate reserves scope and takes a single value. The caller must call
// release after the unit of work persisting the value has ended.
func (a *Allocator) Allocate(ctx context.Context, q store.Querier, scope Scope) (value int, release func(), err error) {
	r, err := a.Reserve(ctx, q, scope)
	if err != nil {
		return 0, nil, err
	}
	return r.Next(), r.Release, nil
}

// Next returns the next value of the reservation
func (r *Reservation) Next() int {
	v := r.next
	r.next++
	r.issued++
	return v
}

// Issued returns how many values were handed out
func (r *Reservation) Issued() int {
	return r.issued
}

// Release unlocks the scope. Further calls are no-ops.
func (r *Reservation) Release() {
	r.once.Do(r.release)
}
