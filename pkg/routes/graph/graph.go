package graph

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	graphpkg "github.com/Ramsey-B/fern/pkg/graph"
)

// Handler handles graph query API endpoints
type Handler struct {
	recordGraph *graphpkg.RecordGraph
}

// NewHandler creates a new graph handler
func NewHandler(recordGraph *graphpkg.RecordGraph) *Handler {
	return &Handler{
		recordGraph: recordGraph,
	}
}

// Register registers the graph routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/partners/:sourceId", h.MatchedPartners)
	g.DELETE("/batch/:batchId", h.DeleteBatch)
}

func (h *Handler) requireRecordGraph(c echo.Context) (*graphpkg.RecordGraph, error) {
	// Prefer explicitly provided store (useful for tests), but fall back to
	// DI-from-context.
	if h != nil && h.recordGraph != nil {
		return h.recordGraph, nil
	}

	ctx := c.Request().Context()
	_, store, err := ectoinject.GetContext[*graphpkg.RecordGraph](ctx)
	if err != nil || store == nil {
		// 503 because this is an optional dependency (graph DB can be disabled).
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "graph store unavailable")
	}
	return store, nil
}

// MatchedPartners returns the source records matched with the given one
func (h *Handler) MatchedPartners(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "graph_handler.MatchedPartners")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	store, err := h.requireRecordGraph(c)
	if err != nil {
		return err
	}

	partners, err := store.MatchedPartners(ctx, tenantID, c.Param("sourceId"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to query matched partners")
	}

	if partners == nil {
		partners = []map[string]any{}
	}
	return c.JSON(http.StatusOK, partners)
}

// DeleteBatch removes a superseded run batch from the graph
func (h *Handler) DeleteBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "graph_handler.DeleteBatch")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	store, err := h.requireRecordGraph(c)
	if err != nil {
		return err
	}

	if err := store.DeleteBatch(ctx, tenantID, c.Param("batchId")); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete batch from graph")
	}

	return c.NoContent(http.StatusNoContent)
}
