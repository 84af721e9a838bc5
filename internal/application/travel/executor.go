package travel

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Step is one write run through the mutation pipeline
type Step struct {
	Event  event.Event
	Entity string
	Keys   store.Row
	Data   []store.Row
	// Write overrides the default write of Event
	Write func(ctx context.Context, tx store.Store, m *event.Mutation) error
}

// Executor runs steps as units of work: before handlers, the write and after
// handlers share one transaction. Functions deferred by handlers run once the
// transaction has ended. A unit of work failing with a concurrency conflict
// is rebuilt and retried.
type Executor struct {
	store      store.Store
	dispatcher *event.Dispatcher
	maxRetries int
	metrics    *telemetry.FederationMetrics
	logger     *zap.Logger
}

// NewExecutor creates an executor
func NewExecutor(s store.Store, d *event.Dispatcher, maxRetries int, metrics *telemetry.FederationMetrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Executor{store: s, dispatcher: d, maxRetries: maxRetries, metrics: metrics, logger: logger}
}

// Execute runs the step returned by build. build is called again for every
// retry since handlers change the rows of a step in place.
func (e *Executor) Execute(ctx context.Context, build func() Step) error {
	for attempt := 1; ; attempt++ {
		step := build()
		err := e.run(ctx, step, attempt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt > e.maxRetries {
			return err
		}
		e.metrics.RecordConflictRetry(ctx, step.Entity)
		logger.For(ctx, e.logger).Warn("unit of work conflicted, retrying",
			zap.String("entity", step.Entity),
			zap.String("event", string(step.Event)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

func (e *Executor) run(ctx context.Context, step Step, attempt int) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "mutation", string(step.Event),
		telemetry.SpanAttrEntity, step.Entity,
		telemetry.SpanAttrAttempt, attempt,
	)
	defer span.End()

	deferred := &event.Deferred{}
	defer deferred.Run()

	err := e.store.Transaction(ctx, func(tx store.Store) error {
		m := event.NewMutation(step.Event, step.Entity, tx, deferred).
			WithKeys(step.Keys).
			WithData(step.Data...)
		if err := e.dispatcher.Before(ctx, m); err != nil {
			return err
		}
		write := step.Write
		if write == nil {
			write = defaultWrite
		}
		if err := write(ctx, tx, m); err != nil {
			return err
		}
		return e.dispatcher.After(ctx, m)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func defaultWrite(ctx context.Context, tx store.Store, m *event.Mutation) error {
	var (
		n   int64
		err error
	)
	switch m.Event {
	case event.Create, event.DraftNew:
		n, err = tx.Insert(ctx, m.Entity, m.Data, store.WriteOptions{})
	case event.Upsert:
		n, err = tx.Upsert(ctx, m.Entity, m.Data, store.WriteOptions{})
	case event.Update, event.DraftPatch:
		if len(m.Data) != 1 {
			return fmt.Errorf("update %s: expected one data row, got %d", m.Entity, len(m.Data))
		}
		n, err = tx.Update(ctx, m.Entity, m.Keys, m.Data[0], store.WriteOptions{})
	case event.Delete, event.DraftCancel:
		n, err = tx.Delete(ctx, m.Entity, m.Keys)
	default:
		return fmt.Errorf("unsupported event %s", m.Event)
	}
	if err != nil {
		return err
	}
	if n == 0 && m.Event != event.Upsert {
		return shared.ErrNotFound
	}
	return nil
}
