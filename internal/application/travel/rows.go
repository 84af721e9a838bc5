package travel

import (
	"github.com/xtravels/backend/internal/domain/travel"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

// travelRow maps a new travel and its bookings to store rows. Travel number
// and booking positions are left to the numbering handlers.
func travelRow(t *travel.Travel) store.Row {
	row := store.Row{
		"id":               t.ID.String(),
		"description":      t.Description,
		"begin_date":       t.BeginDate,
		"end_date":         t.EndDate,
		"booking_fee":      t.BookingFee,
		"currency_code":    string(t.CurrencyCode),
		"status":           string(t.Status),
		"agency_id":        t.AgencyID,
		"customer_id":      t.CustomerID,
		"is_active_entity": t.IsActiveEntity,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
	}
	if len(t.Bookings) > 0 {
		bookings := make([]store.Row, len(t.Bookings))
		for i := range t.Bookings {
			bookings[i] = bookingRow(t.Bookings[i])
		}
		row["bookings"] = bookings
	}
	return row
}

func bookingRow(b travel.Booking) store.Row {
	row := store.Row{
		"id":            b.ID.String(),
		"travel_id":     b.TravelID.String(),
		"flight_id":     b.FlightID,
		"flight_date":   b.FlightDate,
		"flight_price":  b.FlightPrice,
		"currency_code": string(b.CurrencyCode),
	}
	if len(b.Supplements) > 0 {
		supplements := make([]store.Row, len(b.Supplements))
		for i := range b.Supplements {
			supplements[i] = supplementRow(b.Supplements[i])
		}
		row["supplements"] = supplements
	}
	return row
}

func supplementRow(s travel.BookingSupplement) store.Row {
	return store.Row{
		"id":            s.ID.String(),
		"booking_id":    s.BookingID.String(),
		"booked_id":     s.BookedID,
		"price":         s.Price,
		"currency_code": string(s.CurrencyCode),
	}
}
