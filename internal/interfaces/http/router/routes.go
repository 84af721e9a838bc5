package router

import (
	"github.com/xtravels/backend/internal/interfaces/http/handler"
)

// Handlers are the endpoint handlers served by the API
type Handlers struct {
	Travel    *handler.TravelHandler
	ValueHelp *handler.ValueHelpHandler
	Query     *handler.QueryHandler
	System    *handler.SystemHandler
}

// Routes groups the handlers by area. Nil handlers are skipped.
func Routes(h Handlers) []*RouteGroup {
	var groups []*RouteGroup

	if t := h.Travel; t != nil {
		groups = append(groups,
			NewRouteGroup("/travels").
				POST("", t.Create).
				POST("/drafts", t.CreateDraft).
				GET("", t.List).
				GET("/number/:number", t.GetByNumber).
				GET("/:id", t.Get).
				PUT("/:id", t.Update).
				PATCH("/:id/draft", t.PatchDraft).
				DELETE("/:id/draft", t.CancelDraft).
				POST("/:id/activate", t.ActivateDraft).
				POST("/:id/accept", t.Accept).
				POST("/:id/reject", t.Reject).
				POST("/:id/deduct-discount", t.DeductDiscount).
				POST("/:id/bookings", t.AddBooking),
			NewRouteGroup("/bookings").
				PUT("/:id", t.UpdateBooking).
				DELETE("/:id", t.DeleteBooking).
				POST("/:id/supplements", t.AddSupplement),
			NewRouteGroup("/booking-supplements").
				PUT("/:id", t.UpdateSupplement).
				DELETE("/:id", t.DeleteSupplement),
		)
	}

	if v := h.ValueHelp; v != nil {
		groups = append(groups, NewRouteGroup("/value-help").
			GET("/flights", v.Flights).
			GET("/supplements", v.Supplements).
			GET("/agencies", v.Agencies).
			GET("/passengers", v.Passengers))
	}

	if q := h.Query; q != nil {
		groups = append(groups, NewRouteGroup("/federation").
			POST("/query", q.Query))
	}

	if s := h.System; s != nil {
		groups = append(groups, NewRouteGroup("/system").
			GET("/info", s.GetSystemInfo).
			GET("/ping", s.Ping))
	}
	return groups
}
