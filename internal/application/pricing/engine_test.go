package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/testutil"
	"go.uber.org/zap"
)

type fixture struct {
	store      *store.GormStore
	engine     *Engine
	dispatcher *event.Dispatcher
	travelID   string
	bookingID  string
	waterID    string
	mealID     string
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// newFixture stores a travel with fee 100 and one booking priced 50 that
// carries supplements priced 10 and 20. The stored total is left empty.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := schema.NewTravelRegistry()
	f := &fixture{
		store:      store.NewGormStore(testutil.NewSQLiteDB(t), registry),
		engine:     NewEngine(registry, WithLogger(zap.NewNop())),
		dispatcher: event.NewDispatcher(zap.NewNop()),
		travelID:   uuid.NewString(),
		bookingID:  uuid.NewString(),
		waterID:    uuid.NewString(),
		mealID:     uuid.NewString(),
	}
	f.engine.Register(f.dispatcher)

	now := time.Now()
	root := store.Row{
		"id": f.travelID, "description": "Conference", "booking_fee": dec(100),
		"currency_code": "EUR", "status": "O", "is_active_entity": true,
		"created_at": now, "updated_at": now,
		"bookings": []store.Row{{
			"id": f.bookingID, "pos": 1, "flight_id": testutil.FlightID, "flight_date": testutil.FlightDate,
			"flight_price": dec(50), "currency_code": "EUR",
			"supplements": []store.Row{
				{"id": f.waterID, "booked_id": testutil.SupplementID, "price": dec(10), "currency_code": "EUR"},
				{"id": f.mealID, "booked_id": "ml-0001", "price": dec(20), "currency_code": "EUR"},
			},
		}},
	}
	_, err := f.store.Insert(context.Background(), schema.EntityTravels, []store.Row{root}, store.WriteOptions{})
	require.NoError(t, err)
	return f
}

func (f *fixture) root() store.Row {
	return store.Row{"id": f.travelID}
}

func (f *fixture) travel(t *testing.T) store.Row {
	t.Helper()
	res, err := f.store.Select(context.Background(), store.Query{Entity: schema.EntityTravels, Where: f.root()})
	require.NoError(t, err)
	row, err := res.Single()
	require.NoError(t, err)
	return row
}

// mutate runs write for m inside one unit of work, dispatching around it
func (f *fixture) mutate(ev event.Event, entity string, keys store.Row, data []store.Row, write func(ctx context.Context, tx store.Store) error) error {
	ctx := context.Background()
	return f.store.Transaction(ctx, func(tx store.Store) error {
		m := event.NewMutation(ev, entity, tx, nil).WithKeys(keys).WithData(data...)
		if err := f.dispatcher.Before(ctx, m); err != nil {
			return err
		}
		if err := write(ctx, tx); err != nil {
			return err
		}
		return f.dispatcher.After(ctx, m)
	})
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %d, got %s", want, got)
}

func TestEngine_RecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Recompute(ctx, f.store, f.root())
	require.NoError(t, err)
	assertDecimal(t, 180, first)
	stored := f.travel(t)

	second, err := f.engine.Recompute(ctx, f.store, f.root())
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, stored, f.travel(t))
}

func TestEngine_RemovingLineItemLowersTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	travelID, secondID := uuid.NewString(), uuid.NewString()
	now := time.Now()
	root := store.Row{
		"id": travelID, "description": "Trade fair", "booking_fee": dec(100),
		"currency_code": "EUR", "status": "O", "is_active_entity": true,
		"created_at": now, "updated_at": now,
		"bookings": []store.Row{
			{
				"id": uuid.NewString(), "pos": 1, "flight_id": testutil.FlightID, "flight_date": testutil.FlightDate,
				"flight_price": dec(50), "currency_code": "EUR",
				"supplements": []store.Row{
					{"id": uuid.NewString(), "booked_id": testutil.SupplementID, "price": dec(10), "currency_code": "EUR"},
				},
			},
			{
				"id": secondID, "pos": 2, "flight_id": testutil.FlightID, "flight_date": testutil.FlightDate,
				"flight_price": dec(20), "currency_code": "EUR",
			},
		},
	}
	keys := store.Row{"id": travelID}
	err := f.mutate(event.Create, schema.EntityTravels, keys, []store.Row{root}, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Insert(ctx, schema.EntityTravels, []store.Row{root}, store.WriteOptions{})
		return err
	})
	require.NoError(t, err)

	total := func() decimal.Decimal {
		res, err := f.store.Select(ctx, store.Query{Entity: schema.EntityTravels, Columns: store.Cols(TotalPriceColumn), Where: keys})
		require.NoError(t, err)
		row, err := res.Single()
		require.NoError(t, err)
		return row.Decimal(TotalPriceColumn)
	}
	assertDecimal(t, 180, total())

	bookingKeys := store.Row{"id": secondID}
	err = f.mutate(event.Delete, schema.EntityBookings, bookingKeys, nil, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Delete(ctx, schema.EntityBookings, bookingKeys)
		return err
	})
	require.NoError(t, err)
	assertDecimal(t, 160, total())
}

func TestEngine_RecomputeSumsFractionsExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Update(ctx, schema.EntityTravels, f.root(),
		store.Row{BookingFeeColumn: decimal.RequireFromString("0.1")}, store.WriteOptions{})
	require.NoError(t, err)
	_, err = f.store.Update(ctx, schema.EntityBookings, store.Row{"id": f.bookingID},
		store.Row{FlightPriceColumn: decimal.RequireFromString("0.2")}, store.WriteOptions{})
	require.NoError(t, err)
	_, err = f.store.Update(ctx, schema.EntityBookingSupplements, store.Row{"id": f.waterID},
		store.Row{PriceColumn: decimal.RequireFromString("0.7")}, store.WriteOptions{})
	require.NoError(t, err)
	_, err = f.store.Delete(ctx, schema.EntityBookingSupplements, store.Row{"id": f.mealID})
	require.NoError(t, err)

	total, err := f.engine.Recompute(ctx, f.store, f.root())
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(1)), "got %s", total)
	assert.True(t, f.travel(t).Decimal(TotalPriceColumn).Equal(decimal.NewFromInt(1)))
}

func TestEngine_RemovingSupplementLowersTotal(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Recompute(context.Background(), f.store, f.root())
	require.NoError(t, err)
	assertDecimal(t, 180, f.travel(t).Decimal(TotalPriceColumn))

	keys := store.Row{"id": f.mealID}
	err = f.mutate(event.Delete, schema.EntityBookingSupplements, keys, nil, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Delete(ctx, schema.EntityBookingSupplements, keys)
		return err
	})
	require.NoError(t, err)
	assertDecimal(t, 160, f.travel(t).Decimal(TotalPriceColumn))
}

func TestEngine_RemovingBookingDropsItsSupplements(t *testing.T) {
	f := newFixture(t)
	keys := store.Row{"id": f.bookingID}
	err := f.mutate(event.DraftCancel, schema.EntityBookings, keys, nil, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Delete(ctx, schema.EntityBookings, keys)
		return err
	})
	require.NoError(t, err)
	assertDecimal(t, 100, f.travel(t).Decimal(TotalPriceColumn))
}

func TestEngine_PriceChangeRecomputes(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		keys   func(f *fixture) store.Row
		data   store.Row
		want   int64
	}{
		{"flight price", schema.EntityBookings, func(f *fixture) store.Row { return store.Row{"id": f.bookingID} }, store.Row{FlightPriceColumn: dec(70)}, 200},
		{"supplement price", schema.EntityBookingSupplements, func(f *fixture) store.Row { return store.Row{"id": f.waterID} }, store.Row{PriceColumn: dec(15)}, 185},
		{"booking fee", schema.EntityTravels, func(f *fixture) store.Row { return f.root() }, store.Row{BookingFeeColumn: dec(40)}, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			keys := tt.keys(f)
			err := f.mutate(event.Update, tt.entity, keys, []store.Row{tt.data}, func(ctx context.Context, tx store.Store) error {
				_, err := tx.Update(ctx, tt.entity, keys, tt.data, store.WriteOptions{})
				return err
			})
			require.NoError(t, err)
			assertDecimal(t, tt.want, f.travel(t).Decimal(TotalPriceColumn))
		})
	}
}

func TestEngine_UnpricedChangeIsIgnored(t *testing.T) {
	f := newFixture(t)
	keys := store.Row{"id": f.bookingID}
	data := store.Row{"flight_id": testutil.FlightID2}
	err := f.mutate(event.DraftPatch, schema.EntityBookings, keys, []store.Row{data}, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Update(ctx, schema.EntityBookings, keys, data, store.WriteOptions{})
		return err
	})
	require.NoError(t, err)
	assert.True(t, f.travel(t).IsNull(TotalPriceColumn))
}

func TestEngine_CreatedItemsRecompute(t *testing.T) {
	f := newFixture(t)
	booking := store.Row{
		"id": uuid.NewString(), "travel_id": f.travelID, "pos": 2,
		"flight_id": testutil.FlightID2, "flight_date": testutil.FlightDate2,
		"flight_price": dec(80), "currency_code": "EUR",
	}
	err := f.mutate(event.Create, schema.EntityBookings, nil, []store.Row{booking}, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Insert(ctx, schema.EntityBookings, []store.Row{booking}, store.WriteOptions{})
		return err
	})
	require.NoError(t, err)
	assertDecimal(t, 260, f.travel(t).Decimal(TotalPriceColumn))

	supplement := store.Row{"id": uuid.NewString(), "booking_id": booking["id"], "booked_id": testutil.SupplementID, "price": dec(5)}
	err = f.mutate(event.DraftNew, schema.EntityBookingSupplements, nil, []store.Row{supplement}, func(ctx context.Context, tx store.Store) error {
		_, err := tx.Insert(ctx, schema.EntityBookingSupplements, []store.Row{supplement}, store.WriteOptions{})
		return err
	})
	require.NoError(t, err)
	assertDecimal(t, 265, f.travel(t).Decimal(TotalPriceColumn))
}

func TestEngine_RootCreated(t *testing.T) {
	registry := schema.NewTravelRegistry()
	s := store.NewGormStore(testutil.NewSQLiteDB(t), registry)
	engine := NewEngine(registry)
	d := event.NewDispatcher(nil)
	engine.Register(d)
	ctx := context.Background()

	create := func(row store.Row) store.Row {
		err := s.Transaction(ctx, func(tx store.Store) error {
			if _, err := tx.Insert(ctx, schema.EntityTravels, []store.Row{row}, store.WriteOptions{}); err != nil {
				return err
			}
			return d.After(ctx, event.NewMutation(event.Create, schema.EntityTravels, tx, nil).WithData(row))
		})
		require.NoError(t, err)
		res, err := s.Select(ctx, store.Query{Entity: schema.EntityTravels, Where: store.Row{"id": row["id"]}})
		require.NoError(t, err)
		stored, err := res.Single()
		require.NoError(t, err)
		return stored
	}
	newRoot := func(fee int64) store.Row {
		now := time.Now()
		return store.Row{
			"id": uuid.NewString(), "description": "Sales trip", "booking_fee": dec(fee),
			"currency_code": "EUR", "status": "O", "is_active_entity": true,
			"created_at": now, "updated_at": now,
		}
	}

	t.Run("bare root starts at its fee", func(t *testing.T) {
		stored := create(newRoot(30))
		assertDecimal(t, 30, stored.Decimal(TotalPriceColumn))
	})

	t.Run("deep create aggregates", func(t *testing.T) {
		row := newRoot(30)
		row["bookings"] = []store.Row{
			{"id": uuid.NewString(), "pos": 1, "flight_id": testutil.FlightID, "flight_date": testutil.FlightDate, "flight_price": dec(50)},
			{"id": uuid.NewString(), "pos": 2, "flight_id": testutil.FlightID2, "flight_date": testutil.FlightDate2, "flight_price": nil},
		}
		stored := create(row)
		assertDecimal(t, 80, stored.Decimal(TotalPriceColumn))
	})
}

func TestEngine_InitializeTotalKeepsExistingTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Recompute(ctx, f.store, f.root())
	require.NoError(t, err)

	require.NoError(t, f.engine.InitializeTotal(ctx, f.store, f.root()))
	assertDecimal(t, 180, f.travel(t).Decimal(TotalPriceColumn))
}

func TestEngine_DeductDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Recompute(ctx, f.store, f.root())
	require.NoError(t, err)

	row, err := f.engine.DeductDiscount(ctx, f.store, f.root(), dec(10))
	require.NoError(t, err)
	assertDecimal(t, 90, row.Decimal(BookingFeeColumn))
	assertDecimal(t, 162, row.Decimal(TotalPriceColumn))

	_, err = f.engine.DeductDiscount(ctx, f.store, f.root(), dec(101))
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INVALID_PERCENT", domainErr.Code)

	_, err = f.engine.DeductDiscount(ctx, f.store, store.Row{"id": uuid.NewString()}, dec(5))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEngine_ResolveRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("from supplement keys", func(t *testing.T) {
		root, err := f.engine.ResolveRoot(ctx, f.store, schema.EntityBookingSupplements, store.Row{"id": f.waterID})
		require.NoError(t, err)
		assert.Equal(t, f.travelID, root.String("id"))
	})

	t.Run("from a row carrying its parent key", func(t *testing.T) {
		root, err := f.engine.ResolveRoot(ctx, f.store, schema.EntityBookings, store.Row{"travel_id": f.travelID})
		require.NoError(t, err)
		assert.Equal(t, store.Row{"id": f.travelID}, root)
	})

	t.Run("root resolves to itself", func(t *testing.T) {
		root, err := f.engine.ResolveRoot(ctx, f.store, schema.EntityTravels, store.Row{"id": f.travelID, "description": "x"})
		require.NoError(t, err)
		assert.Equal(t, f.root(), root)
	})

	t.Run("missing row", func(t *testing.T) {
		_, err := f.engine.ResolveRoot(ctx, f.store, schema.EntityBookingSupplements, store.Row{"id": uuid.NewString()})
		assert.ErrorIs(t, err, shared.ErrRootUnresolved)
	})

	t.Run("entity outside the root", func(t *testing.T) {
		_, err := f.engine.ResolveRoot(ctx, f.store, schema.EntityFlights, store.Row{"id": testutil.FlightID, "flight_date": testutil.FlightDate})
		assert.ErrorIs(t, err, shared.ErrRootUnresolved)
	})

	t.Run("unresolvable root aborts the write", func(t *testing.T) {
		keys := store.Row{"id": uuid.NewString()}
		err := f.mutate(event.Delete, schema.EntityBookings, keys, nil, func(ctx context.Context, tx store.Store) error {
			t.Fatal("write must not run")
			return nil
		})
		assert.ErrorIs(t, err, shared.ErrRootUnresolved)
	})
}

func TestEngine_RecomputeQueryFailure(t *testing.T) {
	mock := testutil.NewMockDB(t)
	s := store.NewGormStore(mock.DB, schema.NewTravelRegistry())
	mock.Mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset by peer"))

	_, err := NewEngine(schema.NewTravelRegistry()).Recompute(context.Background(), s, store.Row{"id": uuid.NewString()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate total_price")
	mock.ExpectationsWereMet(t)
}
