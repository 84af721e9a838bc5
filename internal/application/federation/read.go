package federation

import (
	"context"
	"errors"
	"time"

	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

type remoteResult struct {
	res *store.Result
	err error
}

// Read serves single-level reads of federated entities from the remote and
// falls back to the local replica when the remote fails or does not answer
// within the read timeout. Every other read goes to the local store.
func (c *Cache) Read(ctx context.Context, q store.Query) (*store.Result, error) {
	et, err := c.registry.Entity(q.Entity)
	if err != nil {
		return nil, err
	}
	if q.Locale == "" {
		q.Locale = store.LocaleFromContext(ctx)
	}
	if !et.Federated || !q.IsSingleLevel() {
		return c.local.Select(ctx, q)
	}

	remoteCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	// buffered so an abandoned call can finish without a reader
	done := make(chan remoteResult, 1)
	start := time.Now()
	go func() {
		res, err := c.remote.Select(remoteCtx, q)
		done <- remoteResult{res: res, err: err}
	}()

	var cause error
	select {
	case r := <-done:
		c.metrics.RecordRemoteCall(ctx, et.Name, time.Since(start), r.err)
		if r.err == nil {
			return r.res, nil
		}
		cause = r.err
	case <-remoteCtx.Done():
		cause = remoteCtx.Err()
		c.metrics.RecordRemoteCall(ctx, et.Name, time.Since(start), cause)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	logger.For(ctx, c.logger).Warn("remote read failed, serving local replica",
		zap.String("entity", et.Name),
		zap.Duration("timeout", c.readTimeout),
		zap.Error(cause),
	)
	c.metrics.RecordFallback(ctx, et.Name)
	return c.local.Select(ctx, q)
}
