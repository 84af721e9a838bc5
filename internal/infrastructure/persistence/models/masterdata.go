package models

import (
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/masterdata"
)

// FlightModel is the local replica of a remote flight, keyed by (id, flight_date)
type FlightModel struct {
	ID            string          `gorm:"type:varchar(10);primaryKey"`
	FlightDate    string          `gorm:"type:varchar(10);primaryKey"`
	AirlineID     string          `gorm:"type:varchar(3)"`
	ConnectionID  string          `gorm:"type:varchar(4)"`
	Price         decimal.Decimal `gorm:"type:decimal(16,3)"`
	CurrencyCode  string          `gorm:"type:varchar(3)"`
	SeatsMax      int
	SeatsOccupied int
}

// TableName returns the table name for GORM
func (FlightModel) TableName() string {
	return "flights"
}

// ToDomain converts the persistence model to a domain Flight
func (m *FlightModel) ToDomain() masterdata.Flight {
	return masterdata.Flight{
		ID:            m.ID,
		FlightDate:    m.FlightDate,
		AirlineID:     m.AirlineID,
		ConnectionID:  m.ConnectionID,
		Price:         m.Price,
		CurrencyCode:  m.CurrencyCode,
		SeatsMax:      m.SeatsMax,
		SeatsOccupied: m.SeatsOccupied,
	}
}

// SupplementModel is the local replica of a remote supplement
type SupplementModel struct {
	ID           string                `gorm:"type:varchar(10);primaryKey"`
	Type         string                `gorm:"type:varchar(2)"`
	Price        decimal.Decimal       `gorm:"type:decimal(16,3)"`
	CurrencyCode string                `gorm:"type:varchar(3)"`
	Descr        string                `gorm:"type:varchar(1024)"`
	Texts        []SupplementTextModel `gorm:"foreignKey:ID;references:ID"`
}

// TableName returns the table name for GORM
func (SupplementModel) TableName() string {
	return "supplements"
}

// ToDomain converts the persistence model to a domain Supplement
func (m *SupplementModel) ToDomain() masterdata.Supplement {
	s := masterdata.Supplement{
		ID:           m.ID,
		Type:         m.Type,
		Price:        m.Price,
		CurrencyCode: m.CurrencyCode,
		Descr:        m.Descr,
	}
	for _, t := range m.Texts {
		s.Texts = append(s.Texts, masterdata.SupplementText{Locale: t.Locale, Descr: t.Descr})
	}
	return s
}

// SupplementTextModel holds a localized supplement description
type SupplementTextModel struct {
	ID     string `gorm:"type:varchar(10);primaryKey"`
	Locale string `gorm:"type:varchar(14);primaryKey"`
	Descr  string `gorm:"type:varchar(1024)"`
}

// TableName returns the table name for GORM
func (SupplementTextModel) TableName() string {
	return "supplement_texts"
}

// TravelAgencyModel is a locally maintained travel agency
type TravelAgencyModel struct {
	ID   string `gorm:"type:varchar(36);primaryKey"`
	Name string `gorm:"type:varchar(80);not null"`
	City string `gorm:"type:varchar(40)"`
}

// TableName returns the table name for GORM
func (TravelAgencyModel) TableName() string {
	return "travel_agencies"
}

// ToDomain converts the persistence model to a domain TravelAgency
func (m *TravelAgencyModel) ToDomain() masterdata.TravelAgency {
	return masterdata.TravelAgency{ID: m.ID, Name: m.Name, City: m.City}
}

// PassengerModel is a locally maintained customer
type PassengerModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	FirstName string `gorm:"type:varchar(40)"`
	LastName  string `gorm:"type:varchar(40);not null"`
	Email     string `gorm:"type:varchar(256)"`
}

// TableName returns the table name for GORM
func (PassengerModel) TableName() string {
	return "passengers"
}

// ToDomain converts the persistence model to a domain Passenger
func (m *PassengerModel) ToDomain() masterdata.Passenger {
	return masterdata.Passenger{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName, Email: m.Email}
}
