package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/testutil"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return NewGormStore(db, schema.NewTravelRegistry())
}

func travelRow(id string, fee int64) Row {
	now := time.Now()
	return Row{
		"id":               id,
		"description":      "Business trip",
		"booking_fee":      decimal.NewFromInt(fee),
		"currency_code":    "EUR",
		"status":           "O",
		"is_active_entity": true,
		"created_at":       now,
		"updated_at":       now,
	}
}

func bookingRow(pos int, price any) Row {
	return Row{
		"id":            uuid.NewString(),
		"pos":           pos,
		"flight_id":     testutil.FlightID,
		"flight_date":   testutil.FlightDate,
		"flight_price":  price,
		"currency_code": "EUR",
	}
}

func supplementRow(price any) Row {
	return Row{
		"id":            uuid.NewString(),
		"booked_id":     testutil.SupplementID,
		"price":         price,
		"currency_code": "EUR",
	}
}

func totalQuery(id string) Query {
	return Query{
		Entity: schema.EntityTravels,
		Columns: []Column{{
			Expr: Plus(
				OrZero(Ref("booking_fee")),
				OrZero(SumOf("bookings", Plus(
					OrZero(Ref("flight_price")),
					OrZero(SumOf("supplements", OrZero(Ref("price")))),
				))),
			),
			As: "total_price",
		}},
		Where: Row{"id": id},
	}
}

func TestGormStore_InsertDeepAndExpand(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	root := travelRow(id, 100)
	root["total_price"] = decimal.NewFromInt(999)
	root["bookings"] = []Row{
		func() Row {
			b := bookingRow(1, decimal.NewFromInt(50))
			b["supplements"] = []Row{supplementRow(decimal.NewFromInt(10)), supplementRow(decimal.NewFromInt(20))}
			return b
		}(),
	}

	n, err := s.Insert(ctx, schema.EntityTravels, []Row{root}, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := s.Select(ctx, Query{
		Entity:  schema.EntityTravels,
		Columns: Cols("description", "total_price"),
		Where:   Row{"id": id},
		Expand: []Expand{{
			Composition: "bookings",
			Columns:     Cols("pos", "flight_price"),
			Expand:      []Expand{{Composition: "supplements", Columns: Cols("price")}},
		}},
	})
	require.NoError(t, err)
	row, err := res.Single()
	require.NoError(t, err)

	assert.True(t, row.IsNull("total_price"), "read-only column is not written without bypass")
	assert.False(t, row.Has("id"), "key added for the expansion is not returned")
	bookings := row.Rows("bookings")
	require.Len(t, bookings, 1)
	assert.Equal(t, 1, bookings[0].Int("pos"))
	assert.Len(t, bookings[0].Rows("supplements"), 2)
	assert.False(t, bookings[0].Has("travel_id"))
}

func TestGormStore_SumOfAggregation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("sums nested line items and sub-items", func(t *testing.T) {
		id := uuid.NewString()
		root := travelRow(id, 100)
		b1 := bookingRow(1, decimal.NewFromInt(50))
		b1["supplements"] = []Row{supplementRow(decimal.NewFromInt(10)), supplementRow(decimal.NewFromInt(20))}
		root["bookings"] = []Row{b1}
		_, err := s.Insert(ctx, schema.EntityTravels, []Row{root}, WriteOptions{})
		require.NoError(t, err)

		res, err := s.Select(ctx, totalQuery(id))
		require.NoError(t, err)
		row, err := res.Single()
		require.NoError(t, err)
		assert.True(t, row.Decimal("total_price").Equal(decimal.NewFromInt(180)), "got %v", row["total_price"])
	})

	t.Run("coalesces null prices and empty compositions", func(t *testing.T) {
		id := uuid.NewString()
		root := travelRow(id, 40)
		b1 := bookingRow(1, nil)
		b1["supplements"] = []Row{supplementRow(nil)}
		root["bookings"] = []Row{b1, bookingRow(2, decimal.NewFromInt(5))}
		_, err := s.Insert(ctx, schema.EntityTravels, []Row{root}, WriteOptions{})
		require.NoError(t, err)

		res, err := s.Select(ctx, totalQuery(id))
		require.NoError(t, err)
		row, err := res.Single()
		require.NoError(t, err)
		assert.True(t, row.Decimal("total_price").Equal(decimal.NewFromInt(45)), "got %v", row["total_price"])
	})

	t.Run("max over no rows is null", func(t *testing.T) {
		res, err := s.Select(ctx, Query{
			Entity:  schema.EntityBookings,
			Columns: []Column{MaxCol("pos", "max_pos")},
			Where:   Row{"travel_id": uuid.NewString()},
		})
		require.NoError(t, err)
		row, err := res.Single()
		require.NoError(t, err)
		assert.True(t, row.IsNull("max_pos"))
		assert.Equal(t, 0, row.Int("max_pos"))
	})
}

func TestGormStore_ProjectionsAreTypedValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	root := travelRow(id, 0)
	root["booking_fee"] = decimal.RequireFromString("0.1")
	b1 := bookingRow(3, decimal.RequireFromString("0.2"))
	b1["supplements"] = []Row{supplementRow(decimal.RequireFromString("0.7"))}
	root["bookings"] = []Row{bookingRow(1, nil), b1}
	_, err := s.Insert(ctx, schema.EntityTravels, []Row{root}, WriteOptions{})
	require.NoError(t, err)

	res, err := s.Select(ctx, Query{
		Entity:  schema.EntityBookings,
		Columns: []Column{MaxCol("pos", "max_pos")},
		Where:   Row{"travel_id": id},
	})
	require.NoError(t, err)
	row, err := res.Single()
	require.NoError(t, err)
	assert.Equal(t, 3, row.Int("max_pos"))

	res, err = s.Select(ctx, totalQuery(id))
	require.NoError(t, err)
	row, err = res.Single()
	require.NoError(t, err)
	total, ok := row.NullDecimal("total_price")
	require.True(t, ok, "got %T", row["total_price"])
	assert.True(t, total.Round(3).Equal(decimal.NewFromInt(1)), "got %v", total)

	res, err = s.Select(ctx, Query{Entity: schema.EntityTravels, Columns: Cols("id", "booking_fee"), Where: Row{"id": id}})
	require.NoError(t, err)
	row, err = res.Single()
	require.NoError(t, err)
	assert.Equal(t, id, row.String("id"))
	parsed, err := row.UUID("id")
	require.NoError(t, err)
	assert.Equal(t, id, parsed.String())
	assert.True(t, row.Decimal("booking_fee").Equal(decimal.RequireFromString("0.1")), "got %v", row["booking_fee"])
}

func TestNormalizeValue(t *testing.T) {
	var boxed any = int64(7)
	var empty *any
	var nilDecimal *decimal.Decimal
	fee := decimal.RequireFromString("12.5")

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"boxed interface", &boxed, int64(7)},
		{"nil boxed interface", empty, nil},
		{"bytes", []byte("LH0400"), "LH0400"},
		{"valid null int", sql.NullInt64{Int64: 4, Valid: true}, int64(4)},
		{"invalid null string", sql.NullString{}, nil},
		{"decimal pointer", &fee, fee},
		{"nil decimal pointer", nilDecimal, nil},
		{"plain", "EUR", "EUR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestGormStore_Localize(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.SeedRemoteCatalog(t, db)
	s := NewGormStore(db, schema.NewTravelRegistry())
	ctx := context.Background()

	tests := []struct {
		locale string
		want   string
	}{
		{"", "Mineral water"},
		{"de", "Mineralwasser"},
		{"de-CH", "Mineralwasser"},
		{"fr_FR", "Eau minérale"},
		{"it", "Mineral water"},
	}
	for _, tt := range tests {
		t.Run("locale "+tt.locale, func(t *testing.T) {
			res, err := s.Select(ctx, Query{
				Entity:  schema.EntitySupplements,
				Columns: Cols("id", "descr"),
				Where:   Row{"id": testutil.SupplementID},
				Locale:  tt.locale,
			})
			require.NoError(t, err)
			row, err := res.Single()
			require.NoError(t, err)
			assert.Equal(t, tt.want, row.String("descr"))
		})
	}
}

func TestGormStore_SelectFilters(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.SeedRemoteCatalog(t, db)
	s := NewGormStore(db, schema.NewTravelRegistry())
	ctx := context.Background()

	t.Run("tuple in filter", func(t *testing.T) {
		res, err := s.Select(ctx, Query{
			Entity:  schema.EntityFlights,
			Columns: Cols("id", "flight_date"),
			In: &In{
				Columns: []string{"id", "flight_date"},
				Values:  [][]any{{testutil.FlightID, testutil.FlightDate}, {"XX0000", "2024-01-01"}},
			},
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.RowCount())
		assert.Equal(t, testutil.FlightID, res.Rows[0].String("id"))
	})

	t.Run("single column in filter", func(t *testing.T) {
		res, err := s.Select(ctx, Query{
			Entity:  schema.EntityFlights,
			Columns: Cols("id"),
			In:      &In{Columns: []string{"id"}, Values: [][]any{{testutil.FlightID}, {testutil.FlightID2}}},
			OrderBy: []string{"id desc"},
		})
		require.NoError(t, err)
		require.Equal(t, 2, res.RowCount())
		assert.Equal(t, testutil.FlightID, res.Rows[0].String("id"))
	})

	t.Run("empty in filter matches nothing", func(t *testing.T) {
		res, err := s.Select(ctx, Query{
			Entity: schema.EntityFlights,
			In:     &In{Columns: []string{"id"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, res.RowCount())
	})

	t.Run("distinct with limit", func(t *testing.T) {
		res, err := s.Select(ctx, Query{
			Entity:   schema.EntityFlights,
			Columns:  Cols("currency_code"),
			Distinct: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.RowCount())
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := s.Select(ctx, Query{Entity: "Hotels"})
		assert.Error(t, err)
	})

	t.Run("computed column needs alias", func(t *testing.T) {
		_, err := s.Select(ctx, Query{
			Entity:  schema.EntityFlights,
			Columns: []Column{{Expr: MaxOf(Ref("price"))}},
		})
		assert.Error(t, err)
	})
}

func TestGormStore_UpsertReplacesCompositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	supplement := func(descr string, texts ...Row) Row {
		return Row{"id": "ml-0001", "type": "ML", "price": decimal.NewFromInt(7), "currency_code": "EUR", "descr": descr, "texts": texts}
	}

	_, err := s.Upsert(ctx, schema.EntitySupplements, []Row{supplement("Lunch",
		Row{"locale": "de", "descr": "Mittagessen"},
		Row{"locale": "fr", "descr": "Déjeuner"},
	)}, WriteOptions{})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, schema.EntitySupplements, []Row{supplement("Lunch menu",
		Row{"locale": "it", "descr": "Pranzo"},
	)}, WriteOptions{})
	require.NoError(t, err)

	res, err := s.Select(ctx, Query{Entity: schema.EntitySupplements, Where: Row{"id": "ml-0001"}})
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, "Lunch menu", res.Rows[0].String("descr"))

	texts, err := s.Select(ctx, Query{Entity: schema.EntitySupplementTexts, Columns: Cols("locale"), Where: Row{"id": "ml-0001"}})
	require.NoError(t, err)
	require.Equal(t, 1, texts.RowCount())
	assert.Equal(t, "it", texts.Rows[0].String("locale"))
}

func TestGormStore_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()
	_, err := s.Insert(ctx, schema.EntityTravels, []Row{travelRow(id, 100)}, WriteOptions{})
	require.NoError(t, err)

	t.Run("drops read-only columns", func(t *testing.T) {
		n, err := s.Update(ctx, schema.EntityTravels, Row{"id": id}, Row{"total_price": decimal.NewFromInt(5)}, WriteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("bypass writes read-only columns", func(t *testing.T) {
		n, err := s.Update(ctx, schema.EntityTravels, Row{"id": id}, Row{"total_price": decimal.NewFromInt(5)}, WriteOptions{BypassReadOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		res, err := s.Select(ctx, Query{Entity: schema.EntityTravels, Columns: Cols("total_price"), Where: Row{"id": id}})
		require.NoError(t, err)
		assert.True(t, res.Rows[0].Decimal("total_price").Equal(decimal.NewFromInt(5)))
	})

	t.Run("requires keys", func(t *testing.T) {
		_, err := s.Update(ctx, schema.EntityTravels, nil, Row{"description": "x"}, WriteOptions{})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestGormStore_DeleteIsDeep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	root := travelRow(id, 100)
	b := bookingRow(1, decimal.NewFromInt(50))
	b["supplements"] = []Row{supplementRow(decimal.NewFromInt(10))}
	root["bookings"] = []Row{b}
	_, err := s.Insert(ctx, schema.EntityTravels, []Row{root}, WriteOptions{})
	require.NoError(t, err)

	n, err := s.Delete(ctx, schema.EntityTravels, Row{"id": id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, entity := range []string{schema.EntityTravels, schema.EntityBookings, schema.EntityBookingSupplements} {
		res, err := s.Select(ctx, Query{Entity: entity})
		require.NoError(t, err)
		assert.Equal(t, 0, res.RowCount(), entity)
	}
}

func TestGormStore_TransactionSavepoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	outer := uuid.NewString()
	inner := uuid.NewString()

	err := s.Transaction(ctx, func(tx Store) error {
		if _, err := tx.Insert(ctx, schema.EntityTravels, []Row{travelRow(outer, 10)}, WriteOptions{}); err != nil {
			return err
		}
		innerErr := tx.Transaction(ctx, func(sp Store) error {
			if _, err := sp.Insert(ctx, schema.EntityTravels, []Row{travelRow(inner, 20)}, WriteOptions{}); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		assert.Error(t, innerErr)
		return nil
	})
	require.NoError(t, err)

	res, err := s.Select(ctx, Query{Entity: schema.EntityTravels, Columns: Cols("id")})
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, outer, res.Rows[0].String("id"))
}

func TestGormStore_DuplicateKeyIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := travelRow(uuid.NewString(), 10)
	first["travel_number"] = 1
	second := travelRow(uuid.NewString(), 10)
	second["travel_number"] = 1

	_, err := s.Insert(ctx, schema.EntityTravels, []Row{first}, WriteOptions{})
	require.NoError(t, err)
	_, err = s.Insert(ctx, schema.EntityTravels, []Row{second}, WriteOptions{})
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}
