package masterdata

import (
	"context"

	"github.com/shopspring/decimal"
)

// Flight is a scheduled flight owned by the remote flights system
type Flight struct {
	ID            string          `json:"id"`
	FlightDate    string          `json:"flight_date"`
	AirlineID     string          `json:"airline_id"`
	ConnectionID  string          `json:"connection_id"`
	Price         decimal.Decimal `json:"price"`
	CurrencyCode  string          `json:"currency_code"`
	SeatsMax      int             `json:"seats_max"`
	SeatsOccupied int             `json:"seats_occupied"`
}

// FreeSeats returns the number of unoccupied seats
func (f Flight) FreeSeats() int {
	if f.SeatsOccupied >= f.SeatsMax {
		return 0
	}
	return f.SeatsMax - f.SeatsOccupied
}

// Supplement is a bookable extra owned by the remote flights system
type Supplement struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Price        decimal.Decimal  `json:"price"`
	CurrencyCode string           `json:"currency_code"`
	Descr        string           `json:"descr"`
	Texts        []SupplementText `json:"texts,omitempty"`
}

// SupplementText is a localized supplement description
type SupplementText struct {
	Locale string `json:"locale"`
	Descr  string `json:"descr"`
}

// TravelAgency is a locally maintained agency
type TravelAgency struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// Passenger is a locally maintained customer
type Passenger struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Repository reads the locally maintained master data
type Repository interface {
	AgencyExists(ctx context.Context, id string) (bool, error)
	PassengerExists(ctx context.Context, id string) (bool, error)
	ListAgencies(ctx context.Context) ([]TravelAgency, error)
	ListPassengers(ctx context.Context) ([]Passenger, error)
}
