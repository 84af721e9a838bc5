package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// FederationMetrics counts replication, remote reads and key allocation.
// A nil *FederationMetrics records nothing.
type FederationMetrics struct {
	replicatedRows   *Counter
	remoteFailures   *Counter
	fallbackReads    *Counter
	remoteDuration   *Histogram
	allocations      *Counter
	lockWait         *Histogram
	conflictRetries  *Counter
	recomputedTotals *Counter
}

// NewFederationMetrics creates the instruments on meter.
func NewFederationMetrics(meter metric.Meter) (*FederationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   FederationMetrics
		err error
	)
	if m.replicatedRows, err = NewCounter(meter, "federation_replicated_rows_total",
		"Federated rows copied into the local cache", "{row}"); err != nil {
		return nil, err
	}
	if m.remoteFailures, err = NewCounter(meter, "federation_remote_failures_total",
		"Failed or timed out calls to the remote source", "{call}"); err != nil {
		return nil, err
	}
	if m.fallbackReads, err = NewCounter(meter, "federation_fallback_reads_total",
		"Value-help reads served from the local cache after a remote failure", "{read}"); err != nil {
		return nil, err
	}
	if m.remoteDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "federation_remote_duration_seconds",
		Description: "Latency of calls to the remote source",
		Unit:        "s",
		Boundaries:  RemoteDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.allocations, err = NewCounter(meter, "sequence_allocations_total",
		"Keys and positions assigned", "{key}"); err != nil {
		return nil, err
	}
	if m.lockWait, err = NewHistogram(meter, HistogramOpts{
		Name:        "sequence_lock_wait_seconds",
		Description: "Time spent waiting for a numbering scope lock",
		Unit:        "s",
		Boundaries:  LockWaitBuckets,
	}); err != nil {
		return nil, err
	}
	if m.conflictRetries, err = NewCounter(meter, "sequence_conflict_retries_total",
		"Units of work retried after a key collision", "{retry}"); err != nil {
		return nil, err
	}
	if m.recomputedTotals, err = NewCounter(meter, "pricing_recomputations_total",
		"Travel totals recomputed", "{travel}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordReplicated counts n rows of entity written to the local cache.
func (m *FederationMetrics) RecordReplicated(ctx context.Context, entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.replicatedRows.Add(ctx, int64(n), AttrEntity.String(entity))
}

// RecordRemoteCall records the latency and outcome of one remote call.
func (m *FederationMetrics) RecordRemoteCall(ctx context.Context, entity string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.remoteFailures.Inc(ctx, AttrEntity.String(entity))
	}
	m.remoteDuration.RecordDuration(ctx, elapsed, AttrEntity.String(entity), AttrOutcome.String(outcome))
}

// RecordFallback counts a read answered locally instead of remotely.
func (m *FederationMetrics) RecordFallback(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.fallbackReads.Inc(ctx, AttrEntity.String(entity))
}

// RecordAllocation counts n keys assigned in scope after waiting for its lock.
func (m *FederationMetrics) RecordAllocation(ctx context.Context, scope string, n int, waited time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.RecordDuration(ctx, waited, AttrScope.String(scope))
	if n > 0 {
		m.allocations.Add(ctx, int64(n), AttrScope.String(scope))
	}
}

// RecordConflictRetry counts a retried unit of work.
func (m *FederationMetrics) RecordConflictRetry(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.conflictRetries.Inc(ctx, AttrEntity.String(entity))
}

// RecordRecompute counts a travel total recomputation.
func (m *FederationMetrics) RecordRecompute(ctx context.Context) {
	if m == nil {
		return
	}
	m.recomputedTotals.Inc(ctx)
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewFederationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
