// Package travel implements the travel booking use cases: travels with their
// draft workflow, bookings and booked supplements. Every write runs as one
// unit of work through the mutation pipeline so that numbering, pricing and
// master data replication happen together with it.
package travel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtravels/backend/internal/application/pricing"
	"github.com/xtravels/backend/internal/domain/masterdata"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/domain/shared/valueobject"
	"github.com/xtravels/backend/internal/domain/travel"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/logger"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Service handles travel operations
type Service struct {
	travels    travel.TravelRepository
	masterData masterdata.Repository
	executor   *Executor
	store      store.Store
	pricing    *pricing.Engine
	logger     *zap.Logger
}

// NewService creates a new travel service
func NewService(
	travels travel.TravelRepository,
	masterData masterdata.Repository,
	executor *Executor,
	s store.Store,
	engine *pricing.Engine,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		travels:    travels,
		masterData: masterData,
		executor:   executor,
		store:      s,
		pricing:    engine,
		logger:     logger,
	}
}

// CreateTravel creates an active travel together with its bookings.
// The travel number and booking positions are assigned on write.
func (s *Service) CreateTravel(ctx context.Context, req CreateTravelRequest) (*TravelResponse, error) {
	return s.create(ctx, req, true)
}

// CreateDraft creates a travel draft. Drafts have no travel number until activated.
func (s *Service) CreateDraft(ctx context.Context, req CreateTravelRequest) (*TravelResponse, error) {
	return s.create(ctx, req, false)
}

func (s *Service) create(ctx context.Context, req CreateTravelRequest, active bool) (*TravelResponse, error) {
	t, err := s.buildTravel(ctx, req)
	if err != nil {
		return nil, err
	}
	t.IsActiveEntity = active

	ev := event.Create
	if !active {
		ev = event.DraftNew
	}
	err = s.executor.Execute(ctx, func() Step {
		return Step{Event: ev, Entity: schema.EntityTravels, Data: []store.Row{travelRow(t)}}
	})
	if err != nil {
		return nil, err
	}
	logger.For(ctx, s.logger).Info("travel created",
		zap.String("travel_id", t.ID.String()),
		zap.Bool("draft", !active),
		zap.Int("bookings", len(t.Bookings)),
	)
	return s.Get(ctx, t.ID)
}

func (s *Service) buildTravel(ctx context.Context, req CreateTravelRequest) (*travel.Travel, error) {
	begin, err := parseDate("begin_date", req.BeginDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	t, err := travel.NewTravel(travel.Details{
		Description: req.Description,
		BeginDate:   begin,
		EndDate:     end,
		BookingFee:  amount(req.BookingFee),
		Currency:    req.CurrencyCode,
		AgencyID:    req.AgencyID,
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkParties(ctx, req.AgencyID, req.CustomerID); err != nil {
		return nil, err
	}

	for _, br := range req.Bookings {
		b, err := t.AddBooking(br.FlightID, br.FlightDate, amount(br.FlightPrice), br.CurrencyCode)
		if err != nil {
			return nil, err
		}
		for _, sr := range br.Supplements {
			currency, err := supplementCurrency(sr.CurrencyCode)
			if err != nil {
				return nil, err
			}
			if _, err := b.AddSupplement(sr.BookedID, amount(sr.Price), currency); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// checkParties verifies that the referenced agency and customer exist.
// Empty ids are not checked.
func (s *Service) checkParties(ctx context.Context, agencyID, customerID string) error {
	if agencyID != "" {
		ok, err := s.masterData.AgencyExists(ctx, agencyID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError("INVALID_AGENCY", "Travel agency "+agencyID+" does not exist")
		}
	}
	if customerID != "" {
		ok, err := s.masterData.PassengerExists(ctx, customerID)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewDomainError("INVALID_CUSTOMER", "Customer "+customerID+" does not exist")
		}
	}
	return nil
}

// Get returns a travel with its bookings
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TravelResponse, error) {
	t, err := s.travels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToTravelResponse(t)
	return &resp, nil
}

// GetByNumber returns an active travel by its travel number
func (s *Service) GetByNumber(ctx context.Context, number int) (*TravelResponse, error) {
	t, err := s.travels.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	resp := ToTravelResponse(t)
	return &resp, nil
}

// List returns a page of travels without bookings
func (s *Service) List(ctx context.Context, f TravelListFilter) (*shared.Paginated[TravelResponse], error) {
	filter := shared.DefaultFilter()
	if f.Page > 0 {
		filter.Page = f.Page
	}
	if f.PageSize > 0 {
		filter.PageSize = min(f.PageSize, shared.MaxPageSize)
	}
	if f.OrderBy != "" {
		filter.OrderBy = f.OrderBy
	}
	if f.OrderDir != "" {
		filter.OrderDir = f.OrderDir
	}
	filter.Search = f.Search
	filter.Filters["is_active_entity"] = !f.Drafts
	if f.Status != "" {
		filter.Filters["status"] = f.Status
	}

	travels, err := s.travels.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.travels.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]TravelResponse, len(travels))
	for i := range travels {
		items[i] = ToTravelResponse(&travels[i])
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// UpdateTravel changes the header of an active open travel
func (s *Service) UpdateTravel(ctx context.Context, id uuid.UUID, req UpdateTravelRequest) (*TravelResponse, error) {
	return s.update(ctx, id, req, false)
}

// PatchDraft changes the header of a draft
func (s *Service) PatchDraft(ctx context.Context, id uuid.UUID, req UpdateTravelRequest) (*TravelResponse, error) {
	return s.update(ctx, id, req, true)
}

func (s *Service) update(ctx context.Context, id uuid.UUID, req UpdateTravelRequest, draft bool) (*TravelResponse, error) {
	if req.IsEmpty() {
		return nil, shared.ErrInvalidInput
	}
	t, err := s.load(ctx, id, draft)
	if err != nil {
		return nil, err
	}
	data, err := s.applyUpdate(ctx, t, req)
	if err != nil {
		return nil, err
	}
	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  eventFor(t, event.Update),
			Entity: schema.EntityTravels,
			Keys:   store.Row{"id": t.ID.String()},
			Data:   []store.Row{data.Clone()},
		}
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// applyUpdate applies req to t and returns the changed columns
func (s *Service) applyUpdate(ctx context.Context, t *travel.Travel, req UpdateTravelRequest) (store.Row, error) {
	d := travel.Details{
		Description: t.Description,
		BeginDate:   t.BeginDate,
		EndDate:     t.EndDate,
		BookingFee:  t.BookingFee,
		AgencyID:    t.AgencyID,
		CustomerID:  t.CustomerID,
	}
	var err error
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.BeginDate != nil {
		if d.BeginDate, err = parseDate("begin_date", *req.BeginDate); err != nil {
			return nil, err
		}
	}
	if req.EndDate != nil {
		if d.EndDate, err = parseDate("end_date", *req.EndDate); err != nil {
			return nil, err
		}
	}
	if req.BookingFee != nil {
		d.BookingFee = *req.BookingFee
	}
	if req.CurrencyCode != nil {
		d.Currency = *req.CurrencyCode
	}
	agency, customer := "", ""
	if req.AgencyID != nil && *req.AgencyID != t.AgencyID {
		d.AgencyID, agency = *req.AgencyID, *req.AgencyID
	}
	if req.CustomerID != nil && *req.CustomerID != t.CustomerID {
		d.CustomerID, customer = *req.CustomerID, *req.CustomerID
	}
	if err := t.Update(d); err != nil {
		return nil, err
	}
	if err := s.checkParties(ctx, agency, customer); err != nil {
		return nil, err
	}
	for _, b := range t.Bookings {
		if err := t.ValidateBooking(b); err != nil {
			return nil, err
		}
	}

	data := store.Row{"updated_at": t.UpdatedAt}
	if req.Description != nil {
		data["description"] = t.Description
	}
	if req.BeginDate != nil {
		data["begin_date"] = t.BeginDate
	}
	if req.EndDate != nil {
		data["end_date"] = t.EndDate
	}
	if req.BookingFee != nil {
		data[pricing.BookingFeeColumn] = t.BookingFee
	}
	if req.CurrencyCode != nil {
		data["currency_code"] = string(t.CurrencyCode)
	}
	if agency != "" {
		data["agency_id"] = t.AgencyID
	}
	if customer != "" {
		data["customer_id"] = t.CustomerID
	}
	return data, nil
}

// ActivateDraft turns a draft into an active travel. The travel number is
// drawn at this point.
func (s *Service) ActivateDraft(ctx context.Context, id uuid.UUID) (*TravelResponse, error) {
	t, err := s.load(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkParties(ctx, t.AgencyID, t.CustomerID); err != nil {
		return nil, err
	}
	for _, b := range t.Bookings {
		if err := t.ValidateBooking(b); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  event.Create,
			Entity: schema.EntityTravels,
			Keys:   store.Row{"id": t.ID.String()},
			Data:   []store.Row{{"is_active_entity": true, "updated_at": now}},
			Write: func(ctx context.Context, tx store.Store, m *event.Mutation) error {
				n, err := tx.Update(ctx, m.Entity, m.Keys, m.Data[0], store.WriteOptions{})
				if err != nil {
					return err
				}
				if n == 0 {
					return shared.ErrNotFound
				}
				return nil
			},
		}
	})
	if err != nil {
		return nil, err
	}
	logger.For(ctx, s.logger).Info("travel draft activated", zap.String("travel_id", id.String()))
	return s.Get(ctx, id)
}

// CancelDraft discards a draft with its bookings
func (s *Service) CancelDraft(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id, true); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func() Step {
		return Step{Event: event.DraftCancel, Entity: schema.EntityTravels, Keys: store.Row{"id": id.String()}}
	})
}

// Accept accepts an open travel
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*TravelResponse, error) {
	return s.transition(ctx, id, (*travel.Travel).Accept)
}

// Reject cancels an open travel
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*TravelResponse, error) {
	return s.transition(ctx, id, (*travel.Travel).Reject)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, apply func(*travel.Travel) error) (*TravelResponse, error) {
	t, err := s.load(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if err := apply(t); err != nil {
		return nil, err
	}
	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  event.Update,
			Entity: schema.EntityTravels,
			Keys:   store.Row{"id": id.String()},
			Data:   []store.Row{{"status": string(t.Status), "updated_at": t.UpdatedAt}},
		}
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// DeductDiscount lowers fee and total price of an open travel by percent
func (s *Service) DeductDiscount(ctx context.Context, id uuid.UUID, percent decimal.Decimal) (*TravelResponse, error) {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.NewDomainError("INVALID_PERCENT", "Discount percent must be between 0 and 100")
	}
	t, err := s.travels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := editable(t); err != nil {
		return nil, err
	}
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		_, err := s.pricing.DeductDiscount(ctx, tx, store.Row{"id": id.String()}, percent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// AddBooking books a flight on a travel or draft
func (s *Service) AddBooking(ctx context.Context, travelID uuid.UUID, req CreateBookingRequest) (*BookingResponse, error) {
	t, err := s.travels.FindByID(ctx, travelID)
	if err != nil {
		return nil, err
	}
	if err := editable(t); err != nil {
		return nil, err
	}
	b, err := t.AddBooking(req.FlightID, req.FlightDate, amount(req.FlightPrice), req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	for _, sr := range req.Supplements {
		currency, err := supplementCurrency(sr.CurrencyCode)
		if err != nil {
			return nil, err
		}
		if _, err := b.AddSupplement(sr.BookedID, amount(sr.Price), currency); err != nil {
			return nil, err
		}
	}
	booking := *b

	err = s.executor.Execute(ctx, func() Step {
		return Step{Event: eventFor(t, event.Create), Entity: schema.EntityBookings, Data: []store.Row{bookingRow(booking)}}
	})
	if err != nil {
		return nil, err
	}
	return s.booking(ctx, booking.ID)
}

// UpdateBooking changes the flight or price of a booking
func (s *Service) UpdateBooking(ctx context.Context, id uuid.UUID, req UpdateBookingRequest) (*BookingResponse, error) {
	if req.FlightID == nil && req.FlightDate == nil && req.FlightPrice == nil {
		return nil, shared.ErrInvalidInput
	}
	b, t, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *b
	data := store.Row{}
	if req.FlightID != nil {
		updated.FlightID = *req.FlightID
		data["flight_id"] = updated.FlightID
	}
	if req.FlightDate != nil {
		updated.FlightDate = *req.FlightDate
		data["flight_date"] = updated.FlightDate
	}
	if req.FlightPrice != nil {
		updated.FlightPrice = *req.FlightPrice
		data[pricing.FlightPriceColumn] = updated.FlightPrice
	}
	if err := t.ValidateBooking(updated); err != nil {
		return nil, err
	}

	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  eventFor(t, event.Update),
			Entity: schema.EntityBookings,
			Keys:   store.Row{"id": id.String()},
			Data:   []store.Row{data.Clone()},
		}
	})
	if err != nil {
		return nil, err
	}
	return s.booking(ctx, id)
}

// DeleteBooking removes a booking with its supplements
func (s *Service) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	_, t, err := s.loadBooking(ctx, id)
	if err != nil {
		return err
	}
	return s.executor.Execute(ctx, func() Step {
		return Step{Event: eventFor(t, event.Delete), Entity: schema.EntityBookings, Keys: store.Row{"id": id.String()}}
	})
}

// AddSupplement books a supplement on a booking
func (s *Service) AddSupplement(ctx context.Context, bookingID uuid.UUID, req CreateSupplementRequest) (*SupplementResponse, error) {
	b, t, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	currency, err := supplementCurrency(req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	sup, err := b.AddSupplement(req.BookedID, amount(req.Price), currency)
	if err != nil {
		return nil, err
	}
	supplement := *sup

	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  eventFor(t, event.Create),
			Entity: schema.EntityBookingSupplements,
			Data:   []store.Row{supplementRow(supplement)},
		}
	})
	if err != nil {
		return nil, err
	}
	return s.supplement(ctx, supplement.ID)
}

// UpdateSupplement changes a booked supplement
func (s *Service) UpdateSupplement(ctx context.Context, id uuid.UUID, req UpdateSupplementRequest) (*SupplementResponse, error) {
	if req.BookedID == nil && req.Price == nil {
		return nil, shared.ErrInvalidInput
	}
	sup, b, t, err := s.loadSupplement(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *sup
	data := store.Row{}
	if req.BookedID != nil {
		updated.BookedID = *req.BookedID
		data["booked_id"] = updated.BookedID
	}
	if req.Price != nil {
		updated.Price = *req.Price
		data[pricing.PriceColumn] = updated.Price
	}
	if err := b.ValidateSupplement(updated); err != nil {
		return nil, err
	}

	err = s.executor.Execute(ctx, func() Step {
		return Step{
			Event:  eventFor(t, event.Update),
			Entity: schema.EntityBookingSupplements,
			Keys:   store.Row{"id": id.String()},
			Data:   []store.Row{data.Clone()},
		}
	})
	if err != nil {
		return nil, err
	}
	return s.supplement(ctx, id)
}

// DeleteSupplement removes a booked supplement
func (s *Service) DeleteSupplement(ctx context.Context, id uuid.UUID) error {
	_, _, t, err := s.loadSupplement(ctx, id)
	if err != nil {
		return err
	}
	return s.executor.Execute(ctx, func() Step {
		return Step{Event: eventFor(t, event.Delete), Entity: schema.EntityBookingSupplements, Keys: store.Row{"id": id.String()}}
	})
}

// load reads a travel and checks that it is a draft or an active travel as expected
func (s *Service) load(ctx context.Context, id uuid.UUID, draft bool) (*travel.Travel, error) {
	t, err := s.travels.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsDraft() != draft {
		if draft {
			return nil, shared.NewDomainError("NOT_A_DRAFT", "Travel is not a draft")
		}
		return nil, shared.NewDomainError("DRAFT_NOT_ACTIVE", "Travel is a draft, activate it first")
	}
	return t, nil
}

func (s *Service) loadBooking(ctx context.Context, id uuid.UUID) (*travel.Booking, *travel.Travel, error) {
	b, err := s.travels.FindBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.travels.FindByID(ctx, b.TravelID)
	if err != nil {
		return nil, nil, err
	}
	if err := editable(t); err != nil {
		return nil, nil, err
	}
	return b, t, nil
}

func (s *Service) loadSupplement(ctx context.Context, id uuid.UUID) (*travel.BookingSupplement, *travel.Booking, *travel.Travel, error) {
	sup, err := s.travels.FindSupplement(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	b, t, err := s.loadBooking(ctx, sup.BookingID)
	if err != nil {
		return nil, nil, nil, err
	}
	return sup, b, t, nil
}

func (s *Service) booking(ctx context.Context, id uuid.UUID) (*BookingResponse, error) {
	b, err := s.travels.FindBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToBookingResponse(b)
	return &resp, nil
}

func (s *Service) supplement(ctx context.Context, id uuid.UUID) (*SupplementResponse, error) {
	sup, err := s.travels.FindSupplement(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSupplementResponse(sup)
	return &resp, nil
}

func editable(t *travel.Travel) error {
	if t.Status != travel.StatusOpen {
		return shared.NewDomainError("INVALID_STATE", "Only open travels can be changed")
	}
	return nil
}

// eventFor returns the draft variant of ev for writes below a draft
func eventFor(t *travel.Travel, ev event.Event) event.Event {
	if !t.IsDraft() {
		return ev
	}
	switch ev {
	case event.Create:
		return event.DraftNew
	case event.Update:
		return event.DraftPatch
	case event.Delete:
		return event.DraftCancel
	}
	return ev
}

func parseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(travel.DateLayout, value)
	if err != nil {
		return time.Time{}, shared.NewDomainError("INVALID_DATE", field+" must be formatted as YYYY-MM-DD")
	}
	return d, nil
}

func amount(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func supplementCurrency(code string) (valueobject.Currency, error) {
	if code == "" {
		return "", nil
	}
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		return "", shared.NewDomainError("INVALID_CURRENCY", err.Error())
	}
	return c, nil
}
