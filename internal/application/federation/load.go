package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InitialLoad replicates every federated row referenced by local data that
// is not cached yet. Federated entities are loaded concurrently.
func (c *Cache) InitialLoad(ctx context.Context) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, et := range c.registry.Federated() {
		et := et
		g.Go(func() error {
			n, err := c.loadEntity(gctx, et)
			if err != nil {
				return fmt.Errorf("initial load of %s: %w", et.Name, err)
			}
			c.logger.Info("federated entity loaded",
				zap.String("entity", et.Name),
				zap.Int("rows", n),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("initial load completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// loadEntity replicates the missing rows of et and returns how many it stored
func (c *Cache) loadEntity(ctx context.Context, et *schema.EntityType) (int, error) {
	referenced, err := c.referencedKeys(ctx, et)
	if err != nil {
		return 0, err
	}
	if len(referenced) == 0 {
		return 0, nil
	}
	missing, err := c.missingKeys(ctx, et, referenced)
	if err != nil {
		return 0, err
	}

	stored := 0
	for start := 0; start < len(missing); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		res, err := c.fetch(ctx, et, store.Query{
			In: &store.In{Columns: et.Keys, Values: missing[start:end]},
		})
		if err != nil {
			return stored, err
		}
		if res.RowCount() == 0 {
			continue
		}
		rows := make([]store.Row, len(res.Rows))
		for i := range res.Rows {
			rows[i] = c.detach(et, res.Rows[i])
		}
		if _, err := c.local.Upsert(ctx, et.Name, rows, store.WriteOptions{BypassReadOnly: true}); err != nil {
			return stored, fmt.Errorf("store replicas: %w", err)
		}
		stored += len(rows)
		c.metrics.RecordReplicated(ctx, et.Name, len(rows))
	}
	return stored, nil
}

// referencedKeys collects the distinct complete key tuples of et that local
// rows point at, ordered as et.Keys.
func (c *Cache) referencedKeys(ctx context.Context, et *schema.EntityType) ([][]any, error) {
	seen := make(map[string]bool)
	var tuples [][]any
	for _, ref := range c.registry.ReferencesTo(et.Name) {
		if ref.Entity.Federated {
			continue
		}
		locals := make([]string, len(ref.Association.ForeignKeys))
		for i, fk := range ref.Association.ForeignKeys {
			locals[i] = fk.Local
		}
		res, err := c.local.Select(ctx, store.Query{
			Entity:   ref.Entity.Name,
			Columns:  store.Cols(locals...),
			Distinct: true,
		})
		if err != nil {
			return nil, fmt.Errorf("collect references from %s: %w", ref.Entity.Name, err)
		}
		for _, row := range res.Rows {
			keys, ok := keyTuple(row, ref.Association.ForeignKeys)
			if !ok {
				continue
			}
			id := keys.KeyString(et.Keys)
			if seen[id] {
				continue
			}
			seen[id] = true
			tuple := make([]any, len(et.Keys))
			for i, k := range et.Keys {
				tuple[i] = keys[k]
			}
			tuples = append(tuples, tuple)
		}
	}
	return tuples, nil
}

// missingKeys drops the tuples already present locally
func (c *Cache) missingKeys(ctx context.Context, et *schema.EntityType, tuples [][]any) ([][]any, error) {
	present := make(map[string]bool)
	for start := 0; start < len(tuples); start += c.batchSize {
		end := start + c.batchSize
		if end > len(tuples) {
			end = len(tuples)
		}
		res, err := c.local.Select(ctx, store.Query{
			Entity:  et.Name,
			Columns: store.Cols(et.Keys...),
			In:      &store.In{Columns: et.Keys, Values: tuples[start:end]},
		})
		if err != nil {
			return nil, fmt.Errorf("check cached %s: %w", et.Name, err)
		}
		for _, row := range res.Rows {
			present[row.KeyString(et.Keys)] = true
		}
	}

	missing := make([][]any, 0, len(tuples))
	for _, tuple := range tuples {
		row := make(store.Row, len(et.Keys))
		for i, k := range et.Keys {
			row[k] = tuple[i]
		}
		if !present[row.KeyString(et.Keys)] {
			missing = append(missing, tuple)
		}
	}
	return missing, nil
}
