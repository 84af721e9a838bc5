package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/domain/travel"
	"github.com/xtravels/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTravelRepository implements travel.TravelRepository using GORM
type GormTravelRepository struct {
	db *gorm.DB
}

// NewGormTravelRepository creates a new GormTravelRepository
func NewGormTravelRepository(db *gorm.DB) *GormTravelRepository {
	return &GormTravelRepository{db: db}
}

// FindByID finds a travel with its bookings (ordered by position) and supplements
func (r *GormTravelRepository) FindByID(ctx context.Context, id uuid.UUID) (*travel.Travel, error) {
	var model models.TravelModel
	if err := r.withBookings(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an active travel by its travel number
func (r *GormTravelRepository) FindByNumber(ctx context.Context, number int) (*travel.Travel, error) {
	var model models.TravelModel
	if err := r.withBookings(ctx).
		Where("travel_number = ? AND is_active_entity = ?", number, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists travels matching the filter, without bookings
func (r *GormTravelRepository) FindAll(ctx context.Context, filter shared.Filter) ([]travel.Travel, error) {
	var rows []models.TravelModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.TravelModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	travels := make([]travel.Travel, len(rows))
	for i := range rows {
		travels[i] = *rows[i].ToDomain()
	}
	return travels, nil
}

// Count counts travels matching the filter
func (r *GormTravelRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.TravelModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindBooking finds a booking with its supplements
func (r *GormTravelRepository) FindBooking(ctx context.Context, id uuid.UUID) (*travel.Booking, error) {
	var model models.BookingModel
	if err := r.db.WithContext(ctx).Preload("Supplements").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSupplement finds a booking supplement
func (r *GormTravelRepository) FindSupplement(ctx context.Context, id uuid.UUID) (*travel.BookingSupplement, error) {
	var model models.BookingSupplementModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormTravelRepository) withBookings(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Bookings", func(db *gorm.DB) *gorm.DB {
			return db.Order("pos ASC")
		}).
		Preload("Bookings.Supplements")
}

// applyFilter applies filter options with pagination and ordering
func (r *GormTravelRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	return query.Order(orderClause(filter.OrderBy, filter.OrderDir, travelOrderColumns, "created_at"))
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormTravelRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		query = query.Where("LOWER(description) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "agency_id":
			query = query.Where("agency_id = ?", value)
		case "customer_id":
			query = query.Where("customer_id = ?", value)
		case "is_active_entity":
			query = query.Where("is_active_entity = ?", value)
		}
	}

	return query
}

var _ travel.TravelRepository = (*GormTravelRepository)(nil)
