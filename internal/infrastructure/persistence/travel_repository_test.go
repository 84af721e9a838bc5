package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/domain/travel"
	"github.com/xtravels/backend/internal/infrastructure/persistence/models"
	"github.com/xtravels/backend/internal/testutil"
	"gorm.io/gorm"
)

func intPtr(i int) *int { return &i }

func seedTravel(t *testing.T, db *gorm.DB, number *int, description string, active bool) models.TravelModel {
	t.Helper()
	now := time.Now()
	m := models.TravelModel{
		BaseModel:      models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		TravelNumber:   number,
		Description:    description,
		BeginDate:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		BookingFee:     decimal.NewFromInt(100),
		TotalPrice:     decimal.NewNullDecimal(decimal.NewFromInt(180)),
		CurrencyCode:   "EUR",
		Status:         "O",
		AgencyID:       testutil.AgencyID,
		CustomerID:     testutil.CustomerID,
		IsActiveEntity: active,
	}
	require.NoError(t, db.Omit("Bookings").Create(&m).Error)
	return m
}

func seedBooking(t *testing.T, db *gorm.DB, travelID uuid.UUID, pos int, price int64) models.BookingModel {
	t.Helper()
	b := models.BookingModel{
		ID:           uuid.New(),
		TravelID:     travelID,
		Pos:          intPtr(pos),
		FlightID:     testutil.FlightID,
		FlightDate:   testutil.FlightDate,
		FlightPrice:  decimal.NewNullDecimal(decimal.NewFromInt(price)),
		CurrencyCode: "EUR",
	}
	require.NoError(t, db.Omit("Supplements").Create(&b).Error)
	return b
}

func TestGormTravelRepository_FindByID(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormTravelRepository(db)
	ctx := context.Background()

	tm := seedTravel(t, db, intPtr(1), "Business trip", true)
	second := seedBooking(t, db, tm.ID, 2, 30)
	first := seedBooking(t, db, tm.ID, 1, 50)
	require.NoError(t, db.Create(&models.BookingSupplementModel{
		ID:           uuid.New(),
		BookingID:    first.ID,
		BookedID:     testutil.SupplementID,
		Price:        decimal.NewNullDecimal(decimal.NewFromInt(10)),
		CurrencyCode: "EUR",
	}).Error)

	t.Run("loads bookings ordered by position with supplements", func(t *testing.T) {
		found, err := repo.FindByID(ctx, tm.ID)
		require.NoError(t, err)

		assert.Equal(t, 1, found.TravelNumber)
		assert.Equal(t, "Business trip", found.Description)
		assert.Equal(t, travel.StatusOpen, found.Status)
		assert.True(t, found.TotalPrice.Equal(decimal.NewFromInt(180)))
		require.Len(t, found.Bookings, 2)
		assert.Equal(t, first.ID, found.Bookings[0].ID)
		assert.Equal(t, second.ID, found.Bookings[1].ID)
		assert.Equal(t, 1, found.Bookings[0].Pos)
		require.Len(t, found.Bookings[0].Supplements, 1)
		assert.True(t, found.Bookings[0].Supplements[0].Price.Equal(decimal.NewFromInt(10)))
		assert.Empty(t, found.Bookings[1].Supplements)
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTravelRepository_FindByNumber(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormTravelRepository(db)
	ctx := context.Background()

	active := seedTravel(t, db, intPtr(7), "Active travel", true)
	seedTravel(t, db, nil, "Draft travel", false)

	found, err := repo.FindByNumber(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, active.ID, found.ID)

	_, err = repo.FindByNumber(ctx, 8)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormTravelRepository_FindAllAndCount(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormTravelRepository(db)
	ctx := context.Background()

	seedTravel(t, db, intPtr(1), "Summer in Rome", true)
	seedTravel(t, db, intPtr(2), "Winter in Oslo", true)
	seedTravel(t, db, nil, "Summer draft", false)

	t.Run("search matches description case-insensitively", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Search = "SUMMER"
		travels, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, travels, 2)
	})

	t.Run("filters active entities and orders by number", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.OrderBy = "travel_number"
		filter.OrderDir = "asc"
		filter.Filters["is_active_entity"] = true
		travels, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, travels, 2)
		assert.Equal(t, 1, travels[0].TravelNumber)
		assert.Equal(t, 2, travels[1].TravelNumber)

		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("paginates", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 2
		filter.Page = 2
		travels, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, travels, 1)
	})
}

func TestGormTravelRepository_FindBookingAndSupplement(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormTravelRepository(db)
	ctx := context.Background()

	tm := seedTravel(t, db, intPtr(1), "Business trip", true)
	b := seedBooking(t, db, tm.ID, 1, 50)
	s := models.BookingSupplementModel{ID: uuid.New(), BookingID: b.ID, BookedID: testutil.SupplementID, CurrencyCode: "EUR"}
	require.NoError(t, db.Create(&s).Error)

	booking, err := repo.FindBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tm.ID, booking.TravelID)
	assert.Len(t, booking.Supplements, 1)

	supplement, err := repo.FindSupplement(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, supplement.BookingID)
	assert.True(t, supplement.Price.IsZero(), "NULL price maps to zero")

	_, err = repo.FindBooking(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindSupplement(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormTravelRepository_DatabaseError(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormTravelRepository(mockDB.DB)

	mockDB.Mock.ExpectQuery(`SELECT count\(\*\) FROM "travels"`).WillReturnError(assert.AnError)

	_, err := repo.Count(context.Background(), shared.DefaultFilter())
	assert.ErrorIs(t, err, assert.AnError)
	mockDB.ExpectationsWereMet(t)
}

func TestTravelModel_StoresDraftAsInactive(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	draft := seedTravel(t, db, nil, "Draft trip", false)

	var stored models.TravelModel
	require.NoError(t, db.First(&stored, "id = ?", draft.ID).Error)
	assert.False(t, stored.IsActiveEntity)

	var active int64
	require.NoError(t, db.Model(&models.TravelModel{}).Where("is_active_entity = ?", true).Count(&active).Error)
	assert.Zero(t, active)
}
