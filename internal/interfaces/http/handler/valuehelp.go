package handler

import (
	"github.com/gin-gonic/gin"
	masterdataapp "github.com/xtravels/backend/internal/application/masterdata"
)

// ValueHelpHandler serves the value help lists of the travel UI
type ValueHelpHandler struct {
	BaseHandler
	service *masterdataapp.Service
}

// NewValueHelpHandler creates a new ValueHelpHandler
func NewValueHelpHandler(service *masterdataapp.Service) *ValueHelpHandler {
	return &ValueHelpHandler{service: service}
}

// Flights lists bookable flights. Served by the remote flights system,
// or by the local replica when it is slow or down.
// GET /value-help/flights
func (h *ValueHelpHandler) Flights(c *gin.Context) {
	var filter masterdataapp.FlightFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	flights, err := h.service.Flights(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, flights)
}

// Supplements lists supplements in the request locale
// GET /value-help/supplements
func (h *ValueHelpHandler) Supplements(c *gin.Context) {
	var filter masterdataapp.SupplementFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	supplements, err := h.service.Supplements(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, supplements)
}

// Agencies lists travel agencies
// GET /value-help/agencies
func (h *ValueHelpHandler) Agencies(c *gin.Context) {
	agencies, err := h.service.Agencies(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agencies)
}

// Passengers lists customers
// GET /value-help/passengers
func (h *ValueHelpHandler) Passengers(c *gin.Context) {
	passengers, err := h.service.Passengers(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, passengers)
}
