package testutil

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// Fixture identifiers
const (
	AgencyID     = "070001"
	CustomerID   = "000001"
	FlightID     = "LH0400"
	FlightDate   = "2024-06-01"
	FlightID2    = "AA0017"
	FlightDate2  = "2024-06-03"
	SupplementID = "bv-0001"
)

// SeedMasterData inserts one agency and one passenger
func SeedMasterData(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.TravelAgencyModel{ID: AgencyID, Name: "Sunshine Travel", City: "Rome"}).Error)
	require.NoError(t, db.Create(&models.PassengerModel{ID: CustomerID, FirstName: "Theresia", LastName: "Buchholm", Email: "theresia@example.com"}).Error)
}

// SeedRemoteCatalog inserts the flights and supplements a remote flights system owns
func SeedRemoteCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	flights := []models.FlightModel{
		{ID: FlightID, FlightDate: FlightDate, AirlineID: "LH", ConnectionID: "0400", Price: decimal.NewFromInt(50), CurrencyCode: "EUR", SeatsMax: 200, SeatsOccupied: 20},
		{ID: FlightID2, FlightDate: FlightDate2, AirlineID: "AA", ConnectionID: "0017", Price: decimal.NewFromInt(80), CurrencyCode: "EUR", SeatsMax: 150, SeatsOccupied: 150},
	}
	require.NoError(t, db.Create(&flights).Error)
	require.NoError(t, db.Create(&models.SupplementModel{
		ID: SupplementID, Type: "BV", Price: decimal.NewFromInt(10), CurrencyCode: "EUR", Descr: "Mineral water",
		Texts: []models.SupplementTextModel{
			{ID: SupplementID, Locale: "de", Descr: "Mineralwasser"},
			{ID: SupplementID, Locale: "fr", Descr: "Eau minérale"},
		},
	}).Error)
}
