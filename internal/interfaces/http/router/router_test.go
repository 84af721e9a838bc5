package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtravels/backend/internal/application/federation"
	masterdataapp "github.com/xtravels/backend/internal/application/masterdata"
	"github.com/xtravels/backend/internal/application/pricing"
	"github.com/xtravels/backend/internal/application/sequence"
	travelapp "github.com/xtravels/backend/internal/application/travel"
	"github.com/xtravels/backend/internal/infrastructure/cache"
	"github.com/xtravels/backend/internal/infrastructure/event"
	"github.com/xtravels/backend/internal/infrastructure/persistence"
	"github.com/xtravels/backend/internal/infrastructure/remote"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/interfaces/http/dto"
	"github.com/xtravels/backend/internal/interfaces/http/handler"
	"github.com/xtravels/backend/internal/interfaces/http/middleware"
	"github.com/xtravels/backend/internal/testutil"
	"go.uber.org/zap"
)

// ============================================================================
// Setup
// ============================================================================

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

type travelBody struct {
	ID           string          `json:"id"`
	TravelNumber *int            `json:"travel_number"`
	BookingFee   decimal.Decimal `json:"booking_fee"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       string          `json:"status"`
	Bookings     []struct {
		ID  string `json:"id"`
		Pos int    `json:"pos"`
	} `json:"bookings"`
}

// newTestEngine wires the API on SQLite the way cmd/server does. The remote
// flights system is a second SQLite database seeded with the catalog.
func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	registry := schema.NewTravelRegistry()
	db := testutil.NewSQLiteDB(t)
	testutil.SeedMasterData(t, db)
	local := store.NewGormStore(db, registry)

	remoteDB := testutil.NewSQLiteDB(t)
	testutil.SeedRemoteCatalog(t, remoteDB)
	remoteStore := store.NewGormStore(remoteDB, registry)
	replicas := federation.NewCache(local, remoteStore, registry)

	engine := pricing.NewEngine(registry)
	d := event.NewDispatcher(zap.NewNop())
	sequence.NewNumbering(sequence.NewAllocator(cache.NewInMemoryScopeLocker()), zap.NewNop()).Register(d)
	engine.Register(d)
	replicas.Register(d)

	masterData := persistence.NewGormMasterDataRepository(db)
	executor := travelapp.NewExecutor(local, d, 3, nil, zap.NewNop())
	travels := travelapp.NewService(persistence.NewGormTravelRepository(db), masterData, executor, local, engine, zap.NewNop())

	r, err := NewEngine(EngineConfig{
		Mode:    gin.TestMode,
		CORS:    middleware.DefaultCORSConfig(),
		Locales: []string{"en", "de", "fr"},
	}, Handlers{
		Travel:    handler.NewTravelHandler(travels),
		ValueHelp: handler.NewValueHelpHandler(masterdataapp.NewService(replicas, masterData)),
		Query:     handler.NewQueryHandler(remoteStore, registry),
		System: handler.NewSystemHandler("xtravels", "test", map[string]handler.Pinger{
			"database": handler.PingerFunc(func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}),
		}),
	}, zap.NewNop())
	require.NoError(t, err)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (int, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func decodeTravel(t *testing.T, resp apiResponse) travelBody {
	t.Helper()
	var travel travelBody
	require.NoError(t, json.Unmarshal(resp.Data, &travel))
	return travel
}

func travelPayload(bookings ...map[string]any) map[string]any {
	return map[string]any{
		"description":   "Sales conference",
		"begin_date":    "2024-06-01",
		"end_date":      "2024-06-10",
		"booking_fee":   "100",
		"currency_code": "EUR",
		"agency_id":     testutil.AgencyID,
		"customer_id":   testutil.CustomerID,
		"bookings":      bookings,
	}
}

func bookingPayload(supplements ...map[string]any) map[string]any {
	return map[string]any{
		"flight_id":    testutil.FlightID,
		"flight_date":  testutil.FlightDate,
		"flight_price": "50",
		"supplements":  supplements,
	}
}

func supplementPayload(price string) map[string]any {
	return map[string]any{"booked_id": testutil.SupplementID, "price": price}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

// ============================================================================
// Tests
// ============================================================================

func TestAPI_TravelLifecycle(t *testing.T) {
	r := newTestEngine(t)

	code, resp := do(t, r, http.MethodPost, "/api/v1/travels",
		travelPayload(bookingPayload(supplementPayload("10"), supplementPayload("20"))))
	require.Equal(t, http.StatusCreated, code, resp.Error)
	created := decodeTravel(t, resp)
	require.NotNil(t, created.TravelNumber)
	assert.Equal(t, 1, *created.TravelNumber)
	assertDecimal(t, "180", created.TotalPrice)
	require.Len(t, created.Bookings, 1)
	assert.Equal(t, 1, created.Bookings[0].Pos)

	code, resp = do(t, r, http.MethodGet, "/api/v1/travels/number/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, decodeTravel(t, resp).ID)

	code, resp = do(t, r, http.MethodPost, "/api/v1/travels/"+created.ID+"/deduct-discount", map[string]any{"percent": "10"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	discounted := decodeTravel(t, resp)
	assertDecimal(t, "90", discounted.BookingFee)
	assertDecimal(t, "162", discounted.TotalPrice)

	code, resp = do(t, r, http.MethodPost, "/api/v1/bookings/"+created.Bookings[0].ID+"/supplements", supplementPayload("5"))
	require.Equal(t, http.StatusCreated, code, resp.Error)

	code, resp = do(t, r, http.MethodGet, "/api/v1/travels/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assertDecimal(t, "175", decodeTravel(t, resp).TotalPrice)

	code, _ = do(t, r, http.MethodDelete, "/api/v1/bookings/"+created.Bookings[0].ID, nil)
	require.Equal(t, http.StatusNoContent, code)

	code, resp = do(t, r, http.MethodPost, "/api/v1/travels/"+created.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, code)
	accepted := decodeTravel(t, resp)
	assert.Equal(t, "A", accepted.Status)
	assertDecimal(t, "90", accepted.TotalPrice)

	code, resp = do(t, r, http.MethodPost, "/api/v1/travels/"+created.ID+"/reject", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)

	code, resp = do(t, r, http.MethodGet, "/api/v1/travels?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestAPI_DraftWorkflow(t *testing.T) {
	r := newTestEngine(t)

	code, resp := do(t, r, http.MethodPost, "/api/v1/travels/drafts", travelPayload())
	require.Equal(t, http.StatusCreated, code, resp.Error)
	draft := decodeTravel(t, resp)
	assert.Nil(t, draft.TravelNumber)

	code, resp = do(t, r, http.MethodPatch, "/api/v1/travels/"+draft.ID+"/draft", map[string]any{"booking_fee": "40"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assertDecimal(t, "40", decodeTravel(t, resp).TotalPrice)

	code, resp = do(t, r, http.MethodPost, "/api/v1/travels/"+draft.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	active := decodeTravel(t, resp)
	require.NotNil(t, active.TravelNumber)
	assert.Equal(t, 1, *active.TravelNumber)

	code, resp = do(t, r, http.MethodPatch, "/api/v1/travels/"+draft.ID+"/draft", map[string]any{"booking_fee": "50"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)

	code, resp = do(t, r, http.MethodPost, "/api/v1/travels/drafts", travelPayload())
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, r, http.MethodDelete, "/api/v1/travels/"+decodeTravel(t, resp).ID+"/draft", nil)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAPI_Errors(t *testing.T) {
	r := newTestEngine(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "validation error",
			method:   http.MethodPost,
			path:     "/api/v1/travels",
			body:     map[string]any{"description": "ab"},
			wantCode: http.StatusBadRequest,
			wantErr:  dto.ErrCodeValidation,
		},
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     "/api/v1/travels/not-a-uuid",
			wantCode: http.StatusBadRequest,
			wantErr:  dto.ErrCodeBadRequest,
		},
		{
			name:     "unknown travel",
			method:   http.MethodGet,
			path:     "/api/v1/travels/7f1a7c52-3c0e-4b47-9a45-0b8f7c9a1d11",
			wantCode: http.StatusNotFound,
			wantErr:  dto.ErrCodeNotFound,
		},
		{
			name:     "unknown agency",
			method:   http.MethodPost,
			path:     "/api/v1/travels",
			body:     func() map[string]any { p := travelPayload(); p["agency_id"] = "999999"; return p }(),
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_AGENCY",
		},
		{
			name:     "unknown route",
			method:   http.MethodGet,
			path:     "/api/v1/unknown",
			wantCode: http.StatusNotFound,
			wantErr:  dto.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, r, tt.method, tt.path, tt.body, middleware.RequestIDHeader, "req-42")
			assert.Equal(t, tt.wantCode, code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
			assert.Equal(t, "req-42", resp.Error.RequestID)
		})
	}

	t.Run("discount out of range", func(t *testing.T) {
		code, resp := do(t, r, http.MethodPost, "/api/v1/travels", travelPayload())
		require.Equal(t, http.StatusCreated, code)
		id := decodeTravel(t, resp).ID

		code, resp = do(t, r, http.MethodPost, "/api/v1/travels/"+id+"/deduct-discount", map[string]any{"percent": "150"})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "INVALID_PERCENT", resp.Error.Code)
	})
}

func TestAPI_ValueHelp(t *testing.T) {
	r := newTestEngine(t)

	code, resp := do(t, r, http.MethodGet, "/api/v1/value-help/supplements", nil, "Accept-Language", "de-DE, en;q=0.5")
	require.Equal(t, http.StatusOK, code)
	var supplements []struct {
		ID    string `json:"id"`
		Descr string `json:"descr"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &supplements))
	require.Len(t, supplements, 1)
	assert.Equal(t, "Mineralwasser", supplements[0].Descr)

	code, resp = do(t, r, http.MethodGet, "/api/v1/value-help/flights?airline_id=LH", nil)
	require.Equal(t, http.StatusOK, code)
	var flights []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &flights))
	require.Len(t, flights, 1)
	assert.Equal(t, testutil.FlightID, flights[0].ID)

	code, resp = do(t, r, http.MethodGet, "/api/v1/value-help/flights?flight_date=June", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

	code, _ = do(t, r, http.MethodGet, "/api/v1/value-help/agencies", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPI_QueryEndpointServesHTTPSource(t *testing.T) {
	srv := httptest.NewServer(newTestEngine(t))
	defer srv.Close()

	src := remote.NewHTTPSource(srv.URL + "/api/v1/federation")
	defer src.Close()

	res, err := src.Select(context.Background(), store.Query{
		Entity: schema.EntitySupplements,
		Locale: "fr",
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, "Eau minérale", res.Rows[0].String("descr"))
	assert.True(t, res.Rows[0].Decimal("price").Equal(decimal.NewFromInt(10)))

	res, err = src.Select(context.Background(), store.Query{
		Entity: schema.EntityFlights,
		In: &store.In{
			Columns: []string{"id", "flight_date"},
			Values:  [][]any{{testutil.FlightID2, testutil.FlightDate2}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, "AA", res.Rows[0].String("airline_id"))

	_, err = src.Select(context.Background(), store.Query{Entity: schema.EntityTravels})
	assert.Error(t, err, "local entities are not exposed")
}

func TestAPI_Health(t *testing.T) {
	r := newTestEngine(t)

	code, resp := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"database":"ok"}`, string(resp.Data))

	code, _ = do(t, r, http.MethodGet, "/api/v1/system/ping", nil)
	assert.Equal(t, http.StatusOK, code)
}
