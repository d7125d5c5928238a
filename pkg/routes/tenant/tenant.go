package tenant

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/platform/database"
)

// Handler handles tenant admin endpoints
type Handler struct {
	db     database.DB
	logger ectologger.Logger
}

// NewHandler creates a tenant handler
func NewHandler(db database.DB, logger ectologger.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
	}
}

// Register registers tenant routes
func (h *Handler) Register(g *echo.Group) {
	g.DELETE("/tenant/:tenant_id", h.deleteTenantData)
}

func (h *Handler) database(ctx context.Context) (context.Context, database.DB, error) {
	// Prefer the explicitly wired handle, fall back to DI-from-context.
	if h != nil && h.db != nil {
		return ctx, h.db, nil
	}
	return ectoinject.GetContext[database.DB](ctx)
}

// deleteTenantData deletes all data for a specific tenant
// This is intended for testing purposes to clean up test data
func (h *Handler) deleteTenantData(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "tenant_id is required",
		})
	}

	ctx, db, err := h.database(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to get database",
		})
	}

	logger := h.logger
	if logger == nil {
		ctx, logger, _ = ectoinject.GetContext[ectologger.Logger](ctx)
	}
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID}).Info("Deleting all data for tenant")
	}

	// both tables are cleared in one transaction
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to begin transaction",
		})
	}
	defer tx.Rollback(ctx)

	counts := make(map[string]int64)
	for _, table := range []string{"reconciliation_records", "matching_rules"} {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE tenant_id = $1", tenantID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to delete tenant data",
			})
		}
		counts[table], _ = result.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to delete tenant data",
		})
	}

	if logger != nil {
		fields := map[string]any{"tenant_id": tenantID}
		for k, v := range counts {
			fields[k] = v
		}
		logger.WithContext(ctx).WithFields(fields).Info("Tenant data deleted")
	}

	response := map[string]interface{}{
		"message":   "tenant data deleted",
		"tenant_id": tenantID,
	}
	for k, v := range counts {
		response[k] = v
	}

	return c.JSON(http.StatusOK, response)
}
