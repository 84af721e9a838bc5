package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	travelapp "github.com/xtravels/backend/internal/application/travel"
)

// TravelHandler handles travel, booking and booking supplement endpoints
type TravelHandler struct {
	BaseHandler
	service *travelapp.Service
}

// NewTravelHandler creates a new TravelHandler
func NewTravelHandler(service *travelapp.Service) *TravelHandler {
	return &TravelHandler{service: service}
}

// Create creates an active travel, optionally with bookings and supplements.
// POST /travels
func (h *TravelHandler) Create(c *gin.Context) {
	var req travelapp.CreateTravelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	travel, err := h.service.CreateTravel(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, travel)
}

// CreateDraft creates a draft travel. Drafts get no travel number until activated.
// POST /travels/drafts
func (h *TravelHandler) CreateDraft(c *gin.Context) {
	var req travelapp.CreateTravelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	travel, err := h.service.CreateDraft(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, travel)
}

// List lists travels
// GET /travels
func (h *TravelHandler) List(c *gin.Context) {
	var filter travelapp.TravelListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get returns a travel with its bookings
// GET /travels/:id
func (h *TravelHandler) Get(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	travel, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// GetByNumber returns the active travel with the given travel number
// GET /travels/number/:number
func (h *TravelHandler) GetByNumber(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		h.BadRequest(c, "Invalid travel number")
		return
	}
	travel, err := h.service.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// Update changes the header of an active travel
// PUT /travels/:id
func (h *TravelHandler) Update(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.UpdateTravelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	travel, err := h.service.UpdateTravel(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// PatchDraft changes the header of a draft
// PATCH /travels/:id/draft
func (h *TravelHandler) PatchDraft(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.UpdateTravelRequest
	if !h.BindJSON(c, &req) {
		return
	}
	travel, err := h.service.PatchDraft(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// ActivateDraft turns a draft into an active travel and assigns its travel number
// POST /travels/:id/activate
func (h *TravelHandler) ActivateDraft(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	travel, err := h.service.ActivateDraft(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// CancelDraft discards a draft
// DELETE /travels/:id/draft
func (h *TravelHandler) CancelDraft(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.CancelDraft(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Accept accepts an open travel
// POST /travels/:id/accept
func (h *TravelHandler) Accept(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	travel, err := h.service.Accept(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// Reject cancels an open travel
// POST /travels/:id/reject
func (h *TravelHandler) Reject(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	travel, err := h.service.Reject(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}

// DeductDiscount lowers booking fee and total price by a percentage
// POST /travels/:id/deduct-discount
func (h *TravelHandler) DeductDiscount(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req travelapp.DeductDiscountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	travel, err := h.service.DeductDiscount(c.Request.Context(), id, *req.Percent)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, travel)
}
