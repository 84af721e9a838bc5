// Package masterdata serves the value help lists of the travel UI: flights
// and supplements owned by the remote flights system, agencies and
// passengers maintained locally.
package masterdata

import (
	"context"

	"github.com/xtravels/backend/internal/domain/masterdata"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

// Reader reads federated entities with fallback to the local replica
type Reader interface {
	Read(ctx context.Context, q store.Query) (*store.Result, error)
}

// FlightFilter narrows the flight value help
type FlightFilter struct {
	AirlineID  string `form:"airline_id" binding:"omitempty,max=3"`
	FlightDate string `form:"flight_date" binding:"omitempty,datetime=2006-01-02"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// SupplementFilter narrows the supplement value help
type SupplementFilter struct {
	Type  string `form:"type" binding:"omitempty,max=2"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// Service serves value help lists
type Service struct {
	reader Reader
	repo   masterdata.Repository
}

// NewService creates a value help service
func NewService(reader Reader, repo masterdata.Repository) *Service {
	return &Service{reader: reader, repo: repo}
}

// Flights lists flights. Texts follow the locale carried by ctx.
func (s *Service) Flights(ctx context.Context, f FlightFilter) ([]masterdata.Flight, error) {
	where := store.Row{}
	if f.AirlineID != "" {
		where["airline_id"] = f.AirlineID
	}
	if f.FlightDate != "" {
		where["flight_date"] = f.FlightDate
	}
	res, err := s.reader.Read(ctx, store.Query{
		Entity:  schema.EntityFlights,
		Where:   where,
		OrderBy: []string{"flight_date", "id"},
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, err
	}
	flights := make([]masterdata.Flight, 0, res.RowCount())
	for _, row := range res.Rows {
		flights = append(flights, masterdata.Flight{
			ID:            row.String("id"),
			FlightDate:    row.String("flight_date"),
			AirlineID:     row.String("airline_id"),
			ConnectionID:  row.String("connection_id"),
			Price:         row.Decimal("price"),
			CurrencyCode:  row.String("currency_code"),
			SeatsMax:      row.Int("seats_max"),
			SeatsOccupied: row.Int("seats_occupied"),
		})
	}
	return flights, nil
}

// Supplements lists supplements with the description in the locale carried by ctx
func (s *Service) Supplements(ctx context.Context, f SupplementFilter) ([]masterdata.Supplement, error) {
	where := store.Row{}
	if f.Type != "" {
		where["type"] = f.Type
	}
	res, err := s.reader.Read(ctx, store.Query{
		Entity:  schema.EntitySupplements,
		Where:   where,
		OrderBy: []string{"id"},
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, err
	}
	supplements := make([]masterdata.Supplement, 0, res.RowCount())
	for _, row := range res.Rows {
		supplements = append(supplements, masterdata.Supplement{
			ID:           row.String("id"),
			Type:         row.String("type"),
			Price:        row.Decimal("price"),
			CurrencyCode: row.String("currency_code"),
			Descr:        row.String("descr"),
		})
	}
	return supplements, nil
}

// Agencies lists travel agencies
func (s *Service) Agencies(ctx context.Context) ([]masterdata.TravelAgency, error) {
	return s.repo.ListAgencies(ctx)
}

// Passengers lists customers
func (s *Service) Passengers(ctx context.Context) ([]masterdata.Passenger, error) {
	return s.repo.ListPassengers(ctx)
}
