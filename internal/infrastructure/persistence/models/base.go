package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/xtravels/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields for root models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// All returns every persistence model of the travel service, in dependency order
func All() []any {
	return []any{
		&TravelAgencyModel{},
		&PassengerModel{},
		&FlightModel{},
		&SupplementModel{},
		&SupplementTextModel{},
		&TravelModel{},
		&BookingModel{},
		&BookingSupplementModel{},
	}
}
