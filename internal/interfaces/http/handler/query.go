package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/remote"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
)

// QueryHandler exposes federated master data to other instances through
// the structured query endpoint that remote.HTTPSource calls.
type QueryHandler struct {
	BaseHandler
	querier  store.Querier
	registry *schema.Registry
}

// NewQueryHandler creates a handler answering queries from querier
func NewQueryHandler(querier store.Querier, registry *schema.Registry) *QueryHandler {
	return &QueryHandler{querier: querier, registry: registry}
}

// Query runs a structured read on a federated entity. The locale comes
// from Accept-Language.
// POST /federation/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req remote.QueryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	et, err := h.registry.Entity(req.Entity)
	if err != nil || !et.Federated {
		h.HandleError(c, shared.NewDomainError("NOT_FOUND", "Unknown federated entity "+req.Entity))
		return
	}

	ctx := c.Request.Context()
	res, err := h.querier.Select(ctx, req.Query(store.LocaleFromContext(ctx)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	rows := res.Rows
	if rows == nil {
		rows = []store.Row{}
	}
	h.Success(c, remote.QueryResponse{Rows: rows})
}
