package pricing

import (
	"context"
	"fmt"

	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

const rootValueKey = "pricing.root"

var (
	createEvents = []event.Event{event.Create, event.DraftNew}
	updateEvents = []event.Event{event.Update, event.DraftPatch}
	removeEvents = []event.Event{event.Delete, event.DraftCancel}
)

// Register wires recomputation into d. The after handlers must be registered
// before any handler that reads the total within the same write.
func (e *Engine) Register(d *event.Dispatcher) {
	d.On(event.After, "pricing.root_created", event.HandlerFunc(e.onRootCreated), createEvents, e.root)
	d.On(event.After, "pricing.item_created", event.HandlerFunc(e.onItemCreated), createEvents,
		schema.EntityBookings, schema.EntityBookingSupplements)
	d.On(event.After, "pricing.price_changed", event.HandlerFunc(e.onPriceChanged), updateEvents,
		e.root, schema.EntityBookings, schema.EntityBookingSupplements)
	d.On(event.Before, "pricing.resolve_removed", event.HandlerFunc(e.onItemRemoving), removeEvents,
		schema.EntityBookings, schema.EntityBookingSupplements)
	d.On(event.After, "pricing.item_removed", event.HandlerFunc(e.onItemRemoved), removeEvents,
		schema.EntityBookings, schema.EntityBookingSupplements)
}

// onRootCreated prices a new root: deep creates are aggregated, a bare root
// starts with its fee as total.
func (e *Engine) onRootCreated(ctx context.Context, m *event.Mutation) error {
	for _, row := range m.Data {
		keys, err := e.rootKeys(row, m.Keys)
		if err != nil {
			return err
		}
		if len(row.Rows("bookings")) > 0 {
			if _, err := e.Recompute(ctx, m.Tx, keys); err != nil {
				return err
			}
			continue
		}
		if err := e.InitializeTotal(ctx, m.Tx, keys); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onItemCreated(ctx context.Context, m *event.Mutation) error {
	seen := make(map[string]bool)
	for _, row := range m.Data {
		root, err := e.ResolveRoot(ctx, m.Tx, m.Entity, row)
		if err != nil {
			return err
		}
		if err := e.recomputeOnce(ctx, m.Tx, root, seen); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onPriceChanged(ctx context.Context, m *event.Mutation) error {
	if !m.Changed(BookingFeeColumn, FlightPriceColumn, PriceColumn) {
		return nil
	}
	root, err := e.ResolveRoot(ctx, m.Tx, m.Entity, m.Keys)
	if err != nil {
		return err
	}
	_, err = e.Recompute(ctx, m.Tx, root)
	return err
}

// onItemRemoving resolves the root while the removed row can still be read
func (e *Engine) onItemRemoving(ctx context.Context, m *event.Mutation) error {
	root, err := e.ResolveRoot(ctx, m.Tx, m.Entity, m.Keys)
	if err != nil {
		return err
	}
	m.Set(rootValueKey, root)
	return nil
}

func (e *Engine) onItemRemoved(ctx context.Context, m *event.Mutation) error {
	v, ok := m.Get(rootValueKey)
	root, isRow := v.(store.Row)
	if !ok || !isRow {
		return fmt.Errorf("%w: removed %s %v", shared.ErrRootUnresolved, m.Entity, map[string]any(m.Keys))
	}
	_, err := e.Recompute(ctx, m.Tx, root)
	return err
}

func (e *Engine) recomputeOnce(ctx context.Context, uow store.Store, root store.Row, seen map[string]bool) error {
	et, err := e.registry.Entity(e.root)
	if err != nil {
		return err
	}
	key := root.KeyString(et.Keys)
	if seen[key] {
		return nil
	}
	seen[key] = true
	_, err = e.Recompute(ctx, uow, root)
	return err
}

// rootKeys takes the root keys from the written row, or from the mutation
// target when the row only carries changed columns.
func (e *Engine) rootKeys(row, target store.Row) (store.Row, error) {
	et, err := e.registry.Entity(e.root)
	if err != nil {
		return nil, err
	}
	if keys := row.Pick(et.Keys...); len(keys) == len(et.Keys) && !anyNull(keys) {
		return keys, nil
	}
	if keys := target.Pick(et.Keys...); len(keys) == len(et.Keys) {
		return keys, nil
	}
	return nil, fmt.Errorf("%w: %s without keys", shared.ErrRootUnresolved, e.root)
}
