package schema

// Entity names of the travel model
const (
	EntityTravels            = "Travels"
	EntityBookings           = "Bookings"
	EntityBookingSupplements = "BookingSupplements"
	EntityFlights            = "Flights"
	EntitySupplements        = "Supplements"
	EntitySupplementTexts    = "SupplementTexts"
	EntityTravelAgencies     = "TravelAgencies"
	EntityPassengers         = "Passengers"
)

// NewTravelRegistry returns the registry of the travel booking model.
// Flights and Supplements are owned by the remote flights system.
func NewTravelRegistry() *Registry {
	return NewRegistry().MustRegister(
		EntityType{
			Name:     EntityTravels,
			Table:    "travels",
			Keys:     []string{"id"},
			ReadOnly: []string{"total_price"},
			Associations: []Association{
				{Name: "agency", Target: EntityTravelAgencies, ForeignKeys: []ForeignKey{{Local: "agency_id", Target: "id"}}},
				{Name: "customer", Target: EntityPassengers, ForeignKeys: []ForeignKey{{Local: "customer_id", Target: "id"}}},
			},
			Compositions: []Composition{
				{Name: "bookings", Target: EntityBookings, ForeignKeys: []ForeignKey{{Local: "id", Target: "travel_id"}}},
			},
		},
		EntityType{
			Name:  EntityBookings,
			Table: "bookings",
			Keys:  []string{"id"},
			Associations: []Association{
				{Name: "flight", Target: EntityFlights, ForeignKeys: []ForeignKey{
					{Local: "flight_id", Target: "id"},
					{Local: "flight_date", Target: "flight_date"},
				}},
			},
			Compositions: []Composition{
				{Name: "supplements", Target: EntityBookingSupplements, ForeignKeys: []ForeignKey{{Local: "id", Target: "booking_id"}}},
			},
		},
		EntityType{
			Name:  EntityBookingSupplements,
			Table: "booking_supplements",
			Keys:  []string{"id"},
			Associations: []Association{
				{Name: "booked", Target: EntitySupplements, ForeignKeys: []ForeignKey{{Local: "booked_id", Target: "id"}}},
			},
		},
		EntityType{
			Name:      EntityFlights,
			Table:     "flights",
			Keys:      []string{"id", "flight_date"},
			Federated: true,
		},
		EntityType{
			Name:      EntitySupplements,
			Table:     "supplements",
			Keys:      []string{"id"},
			Federated: true,
			Localized: []string{"descr"},
			Texts:     "texts",
			Compositions: []Composition{
				{Name: "texts", Target: EntitySupplementTexts, ForeignKeys: []ForeignKey{{Local: "id", Target: "id"}}},
			},
		},
		EntityType{
			Name:  EntitySupplementTexts,
			Table: "supplement_texts",
			Keys:  []string{"id", "locale"},
		},
		EntityType{
			Name:  EntityTravelAgencies,
			Table: "travel_agencies",
			Keys:  []string{"id"},
		},
		EntityType{
			Name:  EntityPassengers,
			Table: "passengers",
			Keys:  []string{"id"},
		},
	)
}
