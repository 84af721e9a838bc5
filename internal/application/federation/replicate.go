package federation

import (
	"context"
	"fmt"

	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

var replicatedEvents = []event.Event{event.Create, event.Update, event.Upsert, event.DraftNew, event.DraftPatch}

// Register replicates the federated rows referenced by every written row
func (c *Cache) Register(d *event.Dispatcher) {
	d.On(event.After, "federation.replicate", event.HandlerFunc(c.onWritten), replicatedEvents)
}

func (c *Cache) onWritten(ctx context.Context, m *event.Mutation) error {
	et, err := c.registry.Entity(m.Entity)
	if err != nil || et.Federated {
		return nil
	}
	rows := m.Data
	if (m.Event == event.Update || m.Event == event.DraftPatch) && len(m.Keys) > 0 && touchesAssociation(et, rows) {
		rows = c.currentRow(ctx, m)
	}
	c.ReplicateAssociations(ctx, m.Tx, m.Entity, rows)
	return nil
}

// currentRow reads the updated row so that a change of one foreign key
// column still yields the complete key of the referenced row.
func (c *Cache) currentRow(ctx context.Context, m *event.Mutation) []store.Row {
	res, err := m.Tx.Select(ctx, store.Query{Entity: m.Entity, Where: m.Keys})
	if err != nil {
		logger.For(ctx, c.logger).Warn("failed to read updated row for replication",
			zap.String("entity", m.Entity),
			zap.Error(err),
		)
		return m.Data
	}
	return res.Rows
}

func touchesAssociation(et *schema.EntityType, rows []store.Row) bool {
	for _, assoc := range et.Associations {
		for _, fk := range assoc.ForeignKeys {
			for _, row := range rows {
				if row.Has(fk.Local) {
					return true
				}
			}
		}
	}
	return false
}

// ReplicateAssociations walks rows of entity and their nested compositions
// and replicates every federated row they reference. Failures are logged;
// the write that referenced the rows is never aborted.
func (c *Cache) ReplicateAssociations(ctx context.Context, uow store.Store, entity string, rows []store.Row) {
	c.walk(ctx, uow, entity, rows, 0, map[string]bool{})
}

func (c *Cache) walk(ctx context.Context, uow store.Store, entity string, rows []store.Row, depth int, path map[string]bool) {
	if depth >= c.maxDepth || path[entity] || len(rows) == 0 {
		return
	}
	et, err := c.registry.Entity(entity)
	if err != nil {
		return
	}
	path[entity] = true
	defer delete(path, entity)

	for _, assoc := range et.Associations {
		target, err := c.registry.Entity(assoc.Target)
		if err != nil || !target.Federated {
			continue
		}
		seen := make(map[string]bool)
		for _, row := range rows {
			keys, ok := keyTuple(row, assoc.ForeignKeys)
			if !ok {
				continue
			}
			id := keys.KeyString(target.Keys)
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := c.Replicate(ctx, uow, target.Name, keys); err != nil {
				logger.For(ctx, c.logger).Warn("failed to replicate federated row",
					zap.String("entity", target.Name),
					zap.Any("keys", map[string]any(keys)),
					zap.Error(err),
				)
			}
		}
	}

	for _, comp := range et.Compositions {
		var nested []store.Row
		for _, row := range rows {
			nested = append(nested, row.Rows(comp.Name)...)
		}
		c.walk(ctx, uow, comp.Target, nested, depth+1, path)
	}
}

// Replicate makes the row of a federated entity identified by keys available
// in the local store of uow. A row already present is left alone. The remote
// fetch of one key is shared between concurrent callers and the upsert runs
// in a savepoint.
func (c *Cache) Replicate(ctx context.Context, uow store.Store, entity string, keys store.Row) error {
	et, err := c.registry.Entity(entity)
	if err != nil {
		return err
	}
	if !et.Federated {
		return fmt.Errorf("replicate %s: entity is not federated", entity)
	}

	exists, err := c.exists(ctx, uow, et, keys)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	flightKey := et.Name + "|" + keys.KeyString(et.Keys)
	flight := c.inflight.DoChan(flightKey, func() (any, error) {
		// the fetch is shared, so it must outlive the caller that started it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.readTimeout)
		defer cancel()
		res, err := c.fetch(fetchCtx, et, store.Query{Where: keys, Limit: 1})
		if err != nil {
			return nil, err
		}
		row, ok := res.First()
		if !ok {
			return nil, nil
		}
		return row, nil
	})
	var (
		v      any
		shared bool
	)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-flight:
		if r.Err != nil {
			return r.Err
		}
		v, shared = r.Val, r.Shared
	}
	if v == nil {
		logger.For(ctx, c.logger).Debug("federated row unknown to remote",
			zap.String("entity", et.Name),
			zap.Any("keys", map[string]any(keys)),
		)
		return nil
	}
	row := c.detach(et, v.(store.Row))

	err = uow.Transaction(ctx, func(sp store.Store) error {
		_, err := sp.Upsert(ctx, et.Name, []store.Row{row}, store.WriteOptions{BypassReadOnly: true})
		return err
	})
	if err != nil {
		return fmt.Errorf("store replica of %s: %w", et.Name, err)
	}
	c.metrics.RecordReplicated(ctx, et.Name, 1)
	logger.For(ctx, c.logger).Debug("federated row replicated",
		zap.String("entity", et.Name),
		zap.Any("keys", map[string]any(keys)),
		zap.Bool("shared_fetch", shared),
	)
	return nil
}

func (c *Cache) exists(ctx context.Context, q store.Querier, et *schema.EntityType, keys store.Row) (bool, error) {
	res, err := q.Select(ctx, store.Query{
		Entity:  et.Name,
		Columns: store.Cols(et.Keys...),
		Where:   keys,
		Limit:   1,
	})
	if err != nil {
		return false, fmt.Errorf("check replica of %s: %w", et.Name, err)
	}
	return res.RowCount() > 0, nil
}
