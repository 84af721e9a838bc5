package sequence

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/xtravels/backend/internal/domain/travel"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Numbering columns of the travel model
const (
	TravelNumberColumn = "travel_number"
	PositionColumn     = "pos"
	BookingDateColumn  = "booking_date"
	bookingsComp       = "bookings"
	activeColumn       = "is_active_entity"
	travelIDColumn     = "travel_id"
)

// Numbering assigns travel numbers and booking positions before the rows are written
type Numbering struct {
	allocator *Allocator
	logger    *zap.Logger
	now       func() time.Time
}

// NewNumbering creates the numbering handlers
func NewNumbering(allocator *Allocator, logger *zap.Logger) *Numbering {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Numbering{allocator: allocator, logger: logger, now: time.Now}
}

// Register wires the handlers into d. Travel numbers are drawn on CREATE
// only, so drafts never consume one; positions are drawn on CREATE and DRAFT_NEW.
func (n *Numbering) Register(d *event.Dispatcher) {
	d.On(event.Before, "sequence.travel_number", event.HandlerFunc(n.numberTravels),
		[]event.Event{event.Create}, schema.EntityTravels)
	d.On(event.Before, "sequence.nested_positions", event.HandlerFunc(n.positionNestedBookings),
		[]event.Event{event.Create, event.DraftNew}, schema.EntityTravels)
	d.On(event.Before, "sequence.booking_position", event.HandlerFunc(n.positionBookings),
		[]event.Event{event.Create, event.DraftNew}, schema.EntityBookings)
}

// numberTravels gives every created travel the next active travel number.
// The scope lock is held until the unit of work has ended.
func (n *Numbering) numberTravels(ctx context.Context, m *event.Mutation) error {
	if len(m.Data) == 0 {
		return nil
	}
	scope := Global(schema.EntityTravels, TravelNumberColumn, store.Row{activeColumn: true})
	res, err := n.allocator.Reserve(ctx, m.Tx, scope)
	if err != nil {
		return fmt.Errorf("allocate travel number: %w", err)
	}
	m.Defer(res.Release)

	for _, row := range m.Data {
		row[TravelNumberColumn] = res.Next()
	}
	logger.For(ctx, n.logger).Debug("travel numbers assigned",
		zap.Int("count", res.Issued()),
		zap.Any("first", m.Data[0][TravelNumberColumn]),
	)
	return nil
}

// positionNestedBookings numbers the bookings written together with a new
// travel 1..n in order. Caller supplied positions are overwritten.
func (n *Numbering) positionNestedBookings(_ context.Context, m *event.Mutation) error {
	today := n.today()
	for _, row := range m.Data {
		for i, booking := range row.Rows(bookingsComp) {
			booking[PositionColumn] = i + 1
			booking[BookingDateColumn] = today
		}
	}
	return nil
}

// positionBookings appends bookings created on their own after the highest
// position of their travel. Bookings of one travel share a reservation;
// travels are locked in key order so concurrent batches cannot deadlock.
func (n *Numbering) positionBookings(ctx context.Context, m *event.Mutation) error {
	parents := make(map[string]any)
	for _, row := range m.Data {
		parent, ok := row[travelIDColumn]
		if !ok || parent == nil {
			return fmt.Errorf("allocate booking position: booking without %s", travelIDColumn)
		}
		parents[fmt.Sprint(parent)] = parent
	}

	reservations := make(map[string]*Reservation, len(parents))
	for _, key := range slices.Sorted(maps.Keys(parents)) {
		scope := Child(schema.EntityBookings, PositionColumn, travelIDColumn, parents[key])
		res, err := n.allocator.Reserve(ctx, m.Tx, scope)
		if err != nil {
			return fmt.Errorf("allocate booking position: %w", err)
		}
		m.Defer(res.Release)
		reservations[key] = res
	}

	today := n.today()
	for _, row := range m.Data {
		row[PositionColumn] = reservations[fmt.Sprint(row[travelIDColumn])].Next()
		row[BookingDateColumn] = today
	}
	return nil
}

func (n *Numbering) today() string {
	return n.now().Format(travel.DateLayout)
}
