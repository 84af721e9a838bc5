package persistence

import (
	"context"

	"github.com/xtravels/backend/internal/domain/masterdata"
	"github.com/xtravels/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMasterDataRepository implements masterdata.Repository using GORM
type GormMasterDataRepository struct {
	db *gorm.DB
}

// NewGormMasterDataRepository creates a new GormMasterDataRepository
func NewGormMasterDataRepository(db *gorm.DB) *GormMasterDataRepository {
	return &GormMasterDataRepository{db: db}
}

// AgencyExists checks if a travel agency exists
func (r *GormMasterDataRepository) AgencyExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, &models.TravelAgencyModel{}, id)
}

// PassengerExists checks if a passenger exists
func (r *GormMasterDataRepository) PassengerExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, &models.PassengerModel{}, id)
}

func (r *GormMasterDataRepository) exists(ctx context.Context, model any, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAgencies lists all travel agencies ordered by name
func (r *GormMasterDataRepository) ListAgencies(ctx context.Context) ([]masterdata.TravelAgency, error) {
	var rows []models.TravelAgencyModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	agencies := make([]masterdata.TravelAgency, len(rows))
	for i := range rows {
		agencies[i] = rows[i].ToDomain()
	}
	return agencies, nil
}

// ListPassengers lists all passengers ordered by last name
func (r *GormMasterDataRepository) ListPassengers(ctx context.Context) ([]masterdata.Passenger, error) {
	var rows []models.PassengerModel
	if err := r.db.WithContext(ctx).Order("last_name ASC, first_name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	passengers := make([]masterdata.Passenger, len(rows))
	for i := range rows {
		passengers[i] = rows[i].ToDomain()
	}
	return passengers, nil
}

var _ masterdata.Repository = (*GormMasterDataRepository)(nil)
