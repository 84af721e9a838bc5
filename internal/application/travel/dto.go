package travel

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/travel"
)

// CreateTravelRequest creates a travel, optionally with its bookings
type CreateTravelRequest struct {
	Description  string                 `json:"description" binding:"required,min=3,max=1024"`
	BeginDate    string                 `json:"begin_date" binding:"required,datetime=2006-01-02"`
	EndDate      string                 `json:"end_date" binding:"required,datetime=2006-01-02"`
	BookingFee   *decimal.Decimal       `json:"booking_fee"`
	CurrencyCode string                 `json:"currency_code" binding:"omitempty,len=3"`
	AgencyID     string                 `json:"agency_id" binding:"required,max=36"`
	CustomerID   string                 `json:"customer_id" binding:"required,max=36"`
	Bookings     []CreateBookingRequest `json:"bookings" binding:"omitempty,dive"`
}

// UpdateTravelRequest changes the header of a travel. Omitted fields keep their value.
type UpdateTravelRequest struct {
	Description  *string          `json:"description" binding:"omitempty,min=3,max=1024"`
	BeginDate    *string          `json:"begin_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate      *string          `json:"end_date" binding:"omitempty,datetime=2006-01-02"`
	BookingFee   *decimal.Decimal `json:"booking_fee"`
	CurrencyCode *string          `json:"currency_code" binding:"omitempty,len=3"`
	AgencyID     *string          `json:"agency_id" binding:"omitempty,max=36"`
	CustomerID   *string          `json:"customer_id" binding:"omitempty,max=36"`
}

// IsEmpty reports whether the request changes nothing
func (r UpdateTravelRequest) IsEmpty() bool {
	return r.Description == nil && r.BeginDate == nil && r.EndDate == nil && r.BookingFee == nil &&
		r.CurrencyCode == nil && r.AgencyID == nil && r.CustomerID == nil
}

// CreateBookingRequest books a flight
type CreateBookingRequest struct {
	FlightID     string                    `json:"flight_id" binding:"required,max=10"`
	FlightDate   string                    `json:"flight_date" binding:"required,datetime=2006-01-02"`
	FlightPrice  *decimal.Decimal          `json:"flight_price"`
	CurrencyCode string                    `json:"currency_code" binding:"omitempty,len=3"`
	Supplements  []CreateSupplementRequest `json:"supplements" binding:"omitempty,dive"`
}

// UpdateBookingRequest changes a booking. Omitted fields keep their value.
type UpdateBookingRequest struct {
	FlightID    *string          `json:"flight_id" binding:"omitempty,max=10"`
	FlightDate  *string          `json:"flight_date" binding:"omitempty,datetime=2006-01-02"`
	FlightPrice *decimal.Decimal `json:"flight_price"`
}

// CreateSupplementRequest books a supplement on a booking
type CreateSupplementRequest struct {
	BookedID     string           `json:"booked_id" binding:"required,max=10"`
	Price        *decimal.Decimal `json:"price"`
	CurrencyCode string           `json:"currency_code" binding:"omitempty,len=3"`
}

// UpdateSupplementRequest changes a booked supplement
type UpdateSupplementRequest struct {
	BookedID *string          `json:"booked_id" binding:"omitempty,max=10"`
	Price    *decimal.Decimal `json:"price"`
}

// DeductDiscountRequest lowers fee and total by a percentage
type DeductDiscountRequest struct {
	Percent *decimal.Decimal `json:"percent" binding:"required"`
}

// TravelListFilter filters the travel list
type TravelListFilter struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Search   string `form:"search"`
	Status   string `form:"status" binding:"omitempty,oneof=O A X"`
	Drafts   bool   `form:"drafts"`
}

// TravelResponse is a travel with its bookings
type TravelResponse struct {
	ID             uuid.UUID         `json:"id"`
	TravelNumber   *int              `json:"travel_number"`
	Description    string            `json:"description"`
	BeginDate      string            `json:"begin_date"`
	EndDate        string            `json:"end_date"`
	BookingFee     decimal.Decimal   `json:"booking_fee"`
	TotalPrice     decimal.Decimal   `json:"total_price"`
	CurrencyCode   string            `json:"currency_code"`
	Status         string            `json:"status"`
	AgencyID       string            `json:"agency_id"`
	CustomerID     string            `json:"customer_id"`
	IsActiveEntity bool              `json:"is_active_entity"`
	Bookings       []BookingResponse `json:"bookings,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// BookingResponse is a booking with its supplements
type BookingResponse struct {
	ID           uuid.UUID            `json:"id"`
	TravelID     uuid.UUID            `json:"travel_id"`
	Pos          int                  `json:"pos"`
	BookingDate  *string              `json:"booking_date"`
	FlightID     string               `json:"flight_id"`
	FlightDate   string               `json:"flight_date"`
	FlightPrice  decimal.Decimal      `json:"flight_price"`
	CurrencyCode string               `json:"currency_code"`
	Supplements  []SupplementResponse `json:"supplements,omitempty"`
}

// SupplementResponse is a booked supplement
type SupplementResponse struct {
	ID           uuid.UUID       `json:"id"`
	BookingID    uuid.UUID       `json:"booking_id"`
	BookedID     string          `json:"booked_id"`
	Price        decimal.Decimal `json:"price"`
	CurrencyCode string          `json:"currency_code"`
}

// ToTravelResponse converts a domain travel
func ToTravelResponse(t *travel.Travel) TravelResponse {
	resp := TravelResponse{
		ID:             t.ID,
		Description:    t.Description,
		BeginDate:      formatDate(t.BeginDate),
		EndDate:        formatDate(t.EndDate),
		BookingFee:     t.BookingFee,
		TotalPrice:     t.TotalPrice,
		CurrencyCode:   string(t.CurrencyCode),
		Status:         string(t.Status),
		AgencyID:       t.AgencyID,
		CustomerID:     t.CustomerID,
		IsActiveEntity: t.IsActiveEntity,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if t.TravelNumber > 0 {
		n := t.TravelNumber
		resp.TravelNumber = &n
	}
	for i := range t.Bookings {
		resp.Bookings = append(resp.Bookings, ToBookingResponse(&t.Bookings[i]))
	}
	return resp
}

// ToBookingResponse converts a domain booking
func ToBookingResponse(b *travel.Booking) BookingResponse {
	resp := BookingResponse{
		ID:           b.ID,
		TravelID:     b.TravelID,
		Pos:          b.Pos,
		FlightID:     b.FlightID,
		FlightDate:   b.FlightDate,
		FlightPrice:  b.FlightPrice,
		CurrencyCode: string(b.CurrencyCode),
	}
	if b.BookingDate != nil {
		d := formatDate(*b.BookingDate)
		resp.BookingDate = &d
	}
	for i := range b.Supplements {
		resp.Supplements = append(resp.Supplements, ToSupplementResponse(&b.Supplements[i]))
	}
	return resp
}

// ToSupplementResponse converts a domain booking supplement
func ToSupplementResponse(s *travel.BookingSupplement) SupplementResponse {
	return SupplementResponse{
		ID:           s.ID,
		BookingID:    s.BookingID,
		BookedID:     s.BookedID,
		Price:        s.Price,
		CurrencyCode: string(s.CurrencyCode),
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(travel.DateLayout)
}
