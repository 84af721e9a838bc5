// Package federation keeps a local replica of master data owned by a remote
// system. Rows of federated entities are copied on first reference, bulk
// loaded at startup, and read from the remote with the local replica as the
// fallback.
package federation

import (
	"context"
	"fmt"
	"time"

	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultMaxDepth    = 8
	defaultBatchSize   = 200
)

// Cache replicates federated rows from remote into local
type Cache struct {
	local       store.Store
	remote      store.Querier
	registry    *schema.Registry
	logger      *zap.Logger
	metrics     *telemetry.FederationMetrics
	readTimeout time.Duration
	maxDepth    int
	batchSize   int
	inflight    singleflight.Group
}

// Option configures a Cache
type Option func(*Cache)

// WithReadTimeout bounds remote reads before the local replica is served
func WithReadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithMaxDepth bounds how deep compositions are expanded when fetching a row
func WithMaxDepth(depth int) Option {
	return func(c *Cache) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithBatchSize bounds the number of keys per initial load request
func WithBatchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics records replication, remote calls and fallbacks
func WithMetrics(m *telemetry.FederationMetrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates a replication cache between local and remote
func NewCache(local store.Store, remote store.Querier, registry *schema.Registry, opts ...Option) *Cache {
	c := &Cache{
		local:       local,
		remote:      remote,
		registry:    registry,
		logger:      zap.NewNop(),
		readTimeout: defaultReadTimeout,
		maxDepth:    defaultMaxDepth,
		batchSize:   defaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// expandTree expands every composition of et recursively. The walk stops at
// maxDepth and never enters an entity already on the current path.
func (c *Cache) expandTree(et *schema.EntityType, depth int, path map[string]bool) []store.Expand {
	if depth >= c.maxDepth {
		return nil
	}
	path[et.Name] = true
	defer delete(path, et.Name)

	var expands []store.Expand
	for _, comp := range et.Compositions {
		if path[comp.Target] {
			continue
		}
		child, err := c.registry.Entity(comp.Target)
		if err != nil {
			continue
		}
		expands = append(expands, store.Expand{
			Composition: comp.Name,
			Expand:      c.expandTree(child, depth+1, path),
		})
	}
	return expands
}

// fetch reads rows of et from the remote, without locale so that the base
// columns hold the untranslated values.
func (c *Cache) fetch(ctx context.Context, et *schema.EntityType, q store.Query) (*store.Result, error) {
	q.Entity = et.Name
	q.Locale = ""
	q.Expand = c.expandTree(et, 0, map[string]bool{})

	ctx, span := telemetry.StartSpan(ctx, "federation.fetch", telemetry.SpanAttrEntity, et.Name)
	defer span.End()

	start := time.Now()
	res, err := c.remote.Select(ctx, q)
	c.metrics.RecordRemoteCall(ctx, et.Name, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("fetch %s: %w", et.Name, err)
	}
	return res, nil
}

// detach copies a fetched row so that writing it never touches rows shared
// with other callers.
func (c *Cache) detach(et *schema.EntityType, row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, comp := range et.Compositions {
		if _, ok := row[comp.Name]; !ok {
			continue
		}
		child, err := c.registry.Entity(comp.Target)
		if err != nil {
			delete(out, comp.Name)
			continue
		}
		nested := row.Rows(comp.Name)
		rows := make([]store.Row, len(nested))
		for i := range nested {
			rows[i] = c.detach(child, nested[i])
		}
		out[comp.Name] = rows
	}
	return out
}

// keyTuple maps the foreign key columns of an association on row to the
// key columns of the target. ok is false when any column is missing or empty.
func keyTuple(row store.Row, fks []schema.ForeignKey) (store.Row, bool) {
	tuple := make(store.Row, len(fks))
	for _, fk := range fks {
		v, present := row[fk.Local]
		if !present || v == nil {
			return nil, false
		}
		if s, isString := v.(string); isString && s == "" {
			return nil, false
		}
		tuple[fk.Target] = v
	}
	return tuple, true
}
