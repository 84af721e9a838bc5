package travel

import (
	"context"

	"github.com/google/uuid"
	"github.com/xtravels/backend/internal/domain/shared"
)

// TravelRepository reads travel aggregates.
// Writes go through the mutation pipeline so that key allocation,
// pricing and replication run on every change.
type TravelRepository interface {
	// FindByID finds a travel (active or draft) with bookings and supplements
	FindByID(ctx context.Context, id uuid.UUID) (*Travel, error)

	// FindByNumber finds an active travel by its travel number
	FindByNumber(ctx context.Context, number int) (*Travel, error)

	// FindAll lists travels without their bookings
	FindAll(ctx context.Context, filter shared.Filter) ([]Travel, error)

	// Count counts travels matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// FindBooking finds a single booking with its supplements
	FindBooking(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindSupplement finds a single booking supplement
	FindSupplement(ctx context.Context, id uuid.UUID) (*BookingSupplement, error)
}
