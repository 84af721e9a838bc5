// Package pricing keeps the derived total price of a travel consistent with
// its fee, bookings and booking supplements.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/domain/shared/valueobject"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Priced columns of the travel model
const (
	BookingFeeColumn  = "booking_fee"
	TotalPriceColumn  = "total_price"
	FlightPriceColumn = "flight_price"
	PriceColumn       = "price"
)

// PriceScale is the number of fraction digits the price columns store
const PriceScale int32 = 3

// maxParentHops bounds the walk from a child to its root
const maxParentHops = 8

// Engine recomputes travel totals inside the unit of work of the write that
// changed a priced column.
type Engine struct {
	registry *schema.Registry
	root     string
	total    store.Expr
	metrics  *telemetry.FederationMetrics
	logger   *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics counts recomputations
func WithMetrics(m *telemetry.FederationMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates the pricing engine of the travel model
func NewEngine(registry *schema.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		root:     schema.EntityTravels,
		total:    TotalExpr(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TotalExpr is fee + Σ bookings(flight price + Σ supplements(price)),
// with missing values counted as zero.
func TotalExpr() store.Expr {
	return store.Plus(
		store.OrZero(store.Ref(BookingFeeColumn)),
		store.OrZero(store.SumOf("bookings", store.Plus(
			store.OrZero(store.Ref(FlightPriceColumn)),
			store.OrZero(store.SumOf("supplements", store.OrZero(store.Ref(PriceColumn)))),
		))),
	)
}

// Root is the entity recomputations are written to
func (e *Engine) Root() string {
	return e.root
}

// ResolveRoot walks from a row of entity up its composition parents and
// returns the keys of the owning root. row may carry the parent foreign key
// already (as a freshly written child does); otherwise it is read through q
// by the entity keys held in row.
func (e *Engine) ResolveRoot(ctx context.Context, q store.Querier, entity string, row store.Row) (store.Row, error) {
	current, known := entity, row
	for hop := 0; hop < maxParentHops; hop++ {
		et, err := e.registry.Entity(current)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrRootUnresolved, err)
		}
		parent, comp, ok := e.registry.ParentOf(current)
		if !ok {
			if current != e.root {
				return nil, fmt.Errorf("%w: %s is not owned by %s", shared.ErrRootUnresolved, entity, e.root)
			}
			keys := known.Pick(et.Keys...)
			if len(keys) != len(et.Keys) {
				return nil, fmt.Errorf("%w: %s without keys", shared.ErrRootUnresolved, current)
			}
			return keys, nil
		}

		childCols := make([]string, len(comp.ForeignKeys))
		for i, fk := range comp.ForeignKeys {
			childCols[i] = fk.Target
		}
		link := known.Pick(childCols...)
		if len(link) != len(childCols) || anyNull(link) {
			link, err = e.readLink(ctx, q, et, known, childCols)
			if err != nil {
				return nil, err
			}
		}

		next := make(store.Row, len(comp.ForeignKeys))
		for _, fk := range comp.ForeignKeys {
			next[fk.Local] = link[fk.Target]
		}
		current, known = parent.Name, next
	}
	return nil, fmt.Errorf("%w: %s nested too deep", shared.ErrRootUnresolved, entity)
}

func (e *Engine) readLink(ctx context.Context, q store.Querier, et *schema.EntityType, known store.Row, cols []string) (store.Row, error) {
	keys := known.Pick(et.Keys...)
	if len(keys) != len(et.Keys) {
		return nil, fmt.Errorf("%w: %s without keys", shared.ErrRootUnresolved, et.Name)
	}
	res, err := q.Select(ctx, store.Query{Entity: et.Name, Columns: store.Cols(cols...), Where: keys})
	if err != nil {
		return nil, fmt.Errorf("resolve parent of %s: %w", et.Name, err)
	}
	row, err := res.Single()
	if err != nil || anyNull(row.Pick(cols...)) {
		return nil, fmt.Errorf("%w: no parent for %s %v", shared.ErrRootUnresolved, et.Name, map[string]any(keys))
	}
	return row, nil
}

// Recompute writes the aggregated total of the root identified by rootKeys.
// Running it twice without intermediate writes leaves the row unchanged.
func (e *Engine) Recompute(ctx context.Context, uow store.Store, rootKeys store.Row) (decimal.Decimal, error) {
	res, err := uow.Select(ctx, store.Query{
		Entity:  e.root,
		Columns: []store.Column{{Expr: e.total, As: TotalPriceColumn}},
		Where:   rootKeys,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate %s: %w", TotalPriceColumn, err)
	}
	row, err := res.Single()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %v", shared.ErrRootUnresolved, e.root, map[string]any(rootKeys))
	}
	// sqlite sums decimals as floats; every addend has at most PriceScale digits
	total := row.Decimal(TotalPriceColumn).Round(PriceScale)

	if _, err := uow.Update(ctx, e.root, rootKeys, store.Row{TotalPriceColumn: total}, store.WriteOptions{BypassReadOnly: true}); err != nil {
		return decimal.Zero, fmt.Errorf("write %s: %w", TotalPriceColumn, err)
	}
	e.metrics.RecordRecompute(ctx)
	logger.For(ctx, e.logger).Debug("travel total recomputed",
		zap.Any("root", map[string]any(rootKeys)),
		zap.String("total", total.String()),
	)
	return total, nil
}

// InitializeTotal sets the total of a new root to its fee when no total has
// been stored yet.
func (e *Engine) InitializeTotal(ctx context.Context, uow store.Store, rootKeys store.Row) error {
	res, err := uow.Select(ctx, store.Query{
		Entity:  e.root,
		Columns: store.Cols(BookingFeeColumn, TotalPriceColumn),
		Where:   rootKeys,
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", e.root, err)
	}
	row, err := res.Single()
	if err != nil {
		return fmt.Errorf("%w: %s %v", shared.ErrRootUnresolved, e.root, map[string]any(rootKeys))
	}
	if total, ok := row.NullDecimal(TotalPriceColumn); ok && !total.IsZero() {
		return nil
	}
	_, err = uow.Update(ctx, e.root, rootKeys,
		store.Row{TotalPriceColumn: row.Decimal(BookingFeeColumn)},
		store.WriteOptions{BypassReadOnly: true})
	return err
}

// DeductDiscount lowers fee and total of a root by percent, each rounded to
// three significant digits, and returns the updated root row.
func (e *Engine) DeductDiscount(ctx context.Context, uow store.Store, rootKeys store.Row, percent decimal.Decimal) (store.Row, error) {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.NewDomainError("INVALID_PERCENT", "Discount percent must be between 0 and 100")
	}
	res, err := uow.Select(ctx, store.Query{
		Entity:  e.root,
		Columns: store.Cols(BookingFeeColumn, TotalPriceColumn),
		Where:   rootKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.root, err)
	}
	row, err := res.Single()
	if err != nil {
		return nil, shared.ErrNotFound
	}

	data := store.Row{
		BookingFeeColumn: valueobject.DeductPercent(row.Decimal(BookingFeeColumn), percent),
		TotalPriceColumn: valueobject.DeductPercent(row.Decimal(TotalPriceColumn), percent),
	}
	if _, err := uow.Update(ctx, e.root, rootKeys, data, store.WriteOptions{BypassReadOnly: true}); err != nil {
		return nil, fmt.Errorf("apply discount: %w", err)
	}

	res, err = uow.Select(ctx, store.Query{Entity: e.root, Where: rootKeys})
	if err != nil {
		return nil, err
	}
	return res.Single()
}

func anyNull(row store.Row) bool {
	for c := range row {
		if row.IsNull(c) {
			return true
		}
	}
	return false
}
