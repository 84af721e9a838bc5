package handler

import (
	"github.com/gin-gonic/gin"
	travelapp "github.com/xtravels/backend/internal/application/travel"
)

// AddBooking books a flight on a travel
// POST /travels/:id/bookings
func (h *TravelHandler) AddBooking(c *gin.Context) {
	travelID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.CreateBookingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	booking, err := h.service.AddBooking(c.Request.Context(), travelID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, booking)
}

// UpdateBooking changes a booking
// PUT /bookings/:id
func (h *TravelHandler) UpdateBooking(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.UpdateBookingRequest
	if !h.BindJSON(c, &req) {
		return
	}
	booking, err := h.service.UpdateBooking(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, booking)
}

// DeleteBooking removes a booking with its supplements
// DELETE /bookings/:id
func (h *TravelHandler) DeleteBooking(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteBooking(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AddSupplement books a supplement on a booking
// POST /bookings/:id/supplements
func (h *TravelHandler) AddSupplement(c *gin.Context) {
	bookingID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.CreateSupplementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	supplement, err := h.service.AddSupplement(c.Request.Context(), bookingID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, supplement)
}

// UpdateSupplement changes a booked supplement
// PUT /booking-supplements/:id
func (h *TravelHandler) UpdateSupplement(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.UpdateSupplementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	supplement, err := h.service.UpdateSupplement(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, supplement)
}

// DeleteSupplement removes a booked supplement
// DELETE /booking-supplements/:id
func (h *TravelHandler) DeleteSupplement(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSupplement(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
