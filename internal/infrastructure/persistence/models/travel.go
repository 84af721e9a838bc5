package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/shared/valueobject"
	"github.com/xtravels/backend/internal/domain/travel"
)

// TravelModel is the persistence model for the Travel aggregate root.
// TravelNumber stays NULL while the travel is a draft.
type TravelModel struct {
	BaseModel
	TravelNumber   *int                `gorm:"uniqueIndex:idx_travels_number"`
	Description    string              `gorm:"type:varchar(1024);not null"`
	BeginDate      time.Time           `gorm:"type:date"`
	EndDate        time.Time           `gorm:"type:date"`
	BookingFee     decimal.Decimal     `gorm:"type:decimal(16,3);not null;default:0"`
	TotalPrice     decimal.NullDecimal `gorm:"type:decimal(16,3)"`
	CurrencyCode   string              `gorm:"type:varchar(3);not null;default:'EUR'"`
	Status         string              `gorm:"type:varchar(1);not null;default:'O'"`
	AgencyID       string              `gorm:"type:varchar(36);index"`
	CustomerID     string              `gorm:"type:varchar(36);index"`
	IsActiveEntity bool                `gorm:"not null;index"`
	Bookings       []BookingModel      `gorm:"foreignKey:TravelID;references:ID"`
}

// TableName returns the table name for GORM
func (TravelModel) TableName() string {
	return "travels"
}

// ToDomain converts the persistence model to a domain Travel
func (m *TravelModel) ToDomain() *travel.Travel {
	t := &travel.Travel{
		BaseEntity:     m.BaseModel.ToDomain(),
		Description:    m.Description,
		BeginDate:      m.BeginDate,
		EndDate:        m.EndDate,
		BookingFee:     m.BookingFee,
		TotalPrice:     m.TotalPrice.Decimal,
		CurrencyCode:   valueobject.Currency(m.CurrencyCode),
		Status:         travel.Status(m.Status),
		AgencyID:       m.AgencyID,
		CustomerID:     m.CustomerID,
		IsActiveEntity: m.IsActiveEntity,
		Bookings:       make([]travel.Booking, len(m.Bookings)),
	}
	if m.TravelNumber != nil {
		t.TravelNumber = *m.TravelNumber
	}
	for i := range m.Bookings {
		t.Bookings[i] = *m.Bookings[i].ToDomain()
	}
	return t
}

// BookingModel is the persistence model for a booking line item.
// (travel_id, pos) is unique: positions are allocated per travel.
type BookingModel struct {
	ID           uuid.UUID                `gorm:"type:uuid;primary_key"`
	TravelID     uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:idx_bookings_travel_pos,priority:1"`
	Pos          *int                     `gorm:"uniqueIndex:idx_bookings_travel_pos,priority:2"`
	BookingDate  *time.Time               `gorm:"type:date"`
	FlightID     string                   `gorm:"type:varchar(10);index:idx_bookings_flight,priority:1"`
	FlightDate   string                   `gorm:"type:varchar(10);index:idx_bookings_flight,priority:2"`
	FlightPrice  decimal.NullDecimal      `gorm:"type:decimal(16,3)"`
	CurrencyCode string                   `gorm:"type:varchar(3)"`
	Supplements  []BookingSupplementModel `gorm:"foreignKey:BookingID;references:ID"`
}

// TableName returns the table name for GORM
func (BookingModel) TableName() string {
	return "bookings"
}

// ToDomain converts the persistence model to a domain Booking
func (m *BookingModel) ToDomain() *travel.Booking {
	b := &travel.Booking{
		ID:           m.ID,
		TravelID:     m.TravelID,
		BookingDate:  m.BookingDate,
		FlightID:     m.FlightID,
		FlightDate:   m.FlightDate,
		FlightPrice:  m.FlightPrice.Decimal,
		CurrencyCode: valueobject.Currency(m.CurrencyCode),
		Supplements:  make([]travel.BookingSupplement, len(m.Supplements)),
	}
	if m.Pos != nil {
		b.Pos = *m.Pos
	}
	for i := range m.Supplements {
		b.Supplements[i] = *m.Supplements[i].ToDomain()
	}
	return b
}

// BookingSupplementModel is the persistence model for a supplement booked on a flight
type BookingSupplementModel struct {
	ID           uuid.UUID           `gorm:"type:uuid;primary_key"`
	BookingID    uuid.UUID           `gorm:"type:uuid;not null;index"`
	BookedID     string              `gorm:"type:varchar(10);index"`
	Price        decimal.NullDecimal `gorm:"type:decimal(16,3)"`
	CurrencyCode string              `gorm:"type:varchar(3)"`
}

// TableName returns the table name for GORM
func (BookingSupplementModel) TableName() string {
	return "booking_supplements"
}

// ToDomain converts the persistence model to a domain BookingSupplement
func (m *BookingSupplementModel) ToDomain() *travel.BookingSupplement {
	return &travel.BookingSupplement{
		ID:           m.ID,
		BookingID:    m.BookingID,
		BookedID:     m.BookedID,
		Price:        m.Price.Decimal,
		CurrencyCode: valueobject.Currency(m.CurrencyCode),
	}
}
