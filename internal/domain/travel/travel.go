package travel

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/domain/shared/valueobject"
)

// DateLayout is the wire and storage format of flight dates
const DateLayout = "2006-01-02"

// Status represents the approval status of a travel
type Status string

const (
	StatusOpen     Status = "O"
	StatusAccepted Status = "A"
	StatusCanceled Status = "X"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusOpen && (target == StatusAccepted || target == StatusCanceled)
}

// Travel is the aggregate root of a trip: a fee plus its bookings.
// TotalPrice is derived and is only written by the pricing engine.
type Travel struct {
	shared.BaseEntity
	TravelNumber   int
	Description    string
	BeginDate      time.Time
	EndDate        time.Time
	BookingFee     decimal.Decimal
	TotalPrice     decimal.Decimal
	CurrencyCode   valueobject.Currency
	Status         Status
	AgencyID       string
	CustomerID     string
	IsActiveEntity bool
	Bookings       []Booking
}

// Booking is a flight booked within a travel
type Booking struct {
	ID           uuid.UUID
	TravelID     uuid.UUID
	Pos          int
	BookingDate  *time.Time
	FlightID     string
	FlightDate   string
	FlightPrice  decimal.Decimal
	CurrencyCode valueobject.Currency
	Supplements  []BookingSupplement
}

// BookingSupplement is an extra (meal, luggage, ...) booked on a flight
type BookingSupplement struct {
	ID           uuid.UUID
	BookingID    uuid.UUID
	BookedID     string
	Price        decimal.Decimal
	CurrencyCode valueobject.Currency
}

// Details carries the editable header fields of a travel
type Details struct {
	Description string
	BeginDate   time.Time
	EndDate     time.Time
	BookingFee  decimal.Decimal
	Currency    string
	AgencyID    string
	CustomerID  string
}

// NewTravel validates details and creates an open travel.
// The travel number is assigned when the travel is persisted.
func NewTravel(d Details) (*Travel, error) {
	currency, err := valueobject.ParseCurrency(d.Currency)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_CURRENCY", err.Error())
	}
	t := &Travel{
		BaseEntity:     shared.NewBaseEntity(),
		CurrencyCode:   currency,
		Status:         StatusOpen,
		IsActiveEntity: true,
	}
	if err := t.apply(d); err != nil {
		return nil, err
	}
	return t, nil
}

// Update replaces the header fields of an open travel.
func (t *Travel) Update(d Details) error {
	if t.Status != StatusOpen {
		return shared.NewDomainError("INVALID_STATE", "Only open travels can be changed")
	}
	if d.Currency != "" {
		currency, err := valueobject.ParseCurrency(d.Currency)
		if err != nil {
			return shared.NewDomainError("INVALID_CURRENCY", err.Error())
		}
		t.CurrencyCode = currency
	}
	if err := t.apply(d); err != nil {
		return err
	}
	t.Touch()
	return nil
}

func (t *Travel) apply(d Details) error {
	if len(strings.TrimSpace(d.Description)) < 3 {
		return shared.NewDomainError("INVALID_DESCRIPTION", "Description too short")
	}
	if !d.BeginDate.IsZero() && !d.EndDate.IsZero() && d.BeginDate.After(d.EndDate) {
		return shared.NewDomainError("INVALID_PERIOD", "Begin date must not be after end date")
	}
	if d.BookingFee.IsNegative() {
		return shared.NewDomainError("INVALID_FEE", "Booking fee must not be negative")
	}
	t.Description = strings.TrimSpace(d.Description)
	t.BeginDate = d.BeginDate
	t.EndDate = d.EndDate
	t.BookingFee = d.BookingFee
	t.AgencyID = d.AgencyID
	t.CustomerID = d.CustomerID
	return nil
}

// AddBooking validates and appends a booking. Positions are assigned on persist.
func (t *Travel) AddBooking(flightID, flightDate string, price decimal.Decimal, currency string) (*Booking, error) {
	b := Booking{
		ID:           uuid.New(),
		TravelID:     t.ID,
		FlightID:     strings.TrimSpace(flightID),
		FlightDate:   flightDate,
		FlightPrice:  price,
		CurrencyCode: t.CurrencyCode,
	}
	if currency != "" {
		c, err := valueobject.ParseCurrency(currency)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_CURRENCY", err.Error())
		}
		b.CurrencyCode = c
	}
	if err := t.ValidateBooking(b); err != nil {
		return nil, err
	}
	t.Bookings = append(t.Bookings, b)
	return &t.Bookings[len(t.Bookings)-1], nil
}

// ValidateBooking checks a booking against the travel it belongs to.
func (t *Travel) ValidateBooking(b Booking) error {
	if b.FlightID == "" {
		return shared.NewDomainError("INVALID_FLIGHT", "Flight must be specified")
	}
	date, err := time.Parse(DateLayout, b.FlightDate)
	if err != nil {
		return shared.NewDomainError("INVALID_FLIGHT_DATE", "Flight date must be formatted as YYYY-MM-DD")
	}
	if !t.BeginDate.IsZero() && !t.EndDate.IsZero() {
		if date.Before(truncateDay(t.BeginDate)) || date.After(truncateDay(t.EndDate)) {
			return shared.NewDomainError("BOOKING_OUTSIDE_PERIOD", "All bookings must be within the travel period")
		}
	}
	if b.FlightPrice.IsNegative() {
		return shared.NewDomainError("INVALID_FLIGHT_PRICE", "Flight price must be a positive value")
	}
	if b.CurrencyCode != t.CurrencyCode {
		return shared.NewDomainError("CURRENCY_MISMATCH", "All bookings must use the same currency as the travel")
	}
	return nil
}

// AddSupplement validates and appends a supplement to a booking.
func (b *Booking) AddSupplement(bookedID string, price decimal.Decimal, currency valueobject.Currency) (*BookingSupplement, error) {
	if currency == "" {
		currency = b.CurrencyCode
	}
	s := BookingSupplement{
		ID:           uuid.New(),
		BookingID:    b.ID,
		BookedID:     strings.TrimSpace(bookedID),
		Price:        price,
		CurrencyCode: currency,
	}
	if err := b.ValidateSupplement(s); err != nil {
		return nil, err
	}
	b.Supplements = append(b.Supplements, s)
	return &b.Supplements[len(b.Supplements)-1], nil
}

// ValidateSupplement checks a supplement against its booking.
func (b *Booking) ValidateSupplement(s BookingSupplement) error {
	if s.BookedID == "" {
		return shared.NewDomainError("INVALID_SUPPLEMENT", "Supplement must be specified")
	}
	if s.Price.IsNegative() {
		return shared.NewDomainError("INVALID_SUPPLEMENT_PRICE", "Supplement price must not be negative")
	}
	if s.CurrencyCode != "" && s.CurrencyCode != b.CurrencyCode {
		return shared.NewDomainError("CURRENCY_MISMATCH", "Supplements must use the same currency as the booking")
	}
	return nil
}

// Accept moves an open travel to accepted
func (t *Travel) Accept() error {
	return t.transition(StatusAccepted)
}

// Reject moves an open travel to canceled
func (t *Travel) Reject() error {
	return t.transition(StatusCanceled)
}

func (t *Travel) transition(target Status) error {
	if !t.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE", "Cannot change travel status from "+string(t.Status)+" to "+string(target))
	}
	t.Status = target
	t.Touch()
	return nil
}

// ComputeTotal returns fee + Σ(flight price + Σ supplement price).
func (t *Travel) ComputeTotal() decimal.Decimal {
	total := t.BookingFee
	for _, b := range t.Bookings {
		total = total.Add(b.FlightPrice)
		for _, s := range b.Supplements {
			total = total.Add(s.Price)
		}
	}
	return total
}

// IsDraft reports whether the travel is an unactivated draft
func (t *Travel) IsDraft() bool {
	return !t.IsActiveEntity
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
