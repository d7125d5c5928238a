package reconciliation

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/matchingrule"
	"github.com/Ramsey-B/fern/internal/repositories/reconrecord"
	"github.com/Ramsey-B/fern/pkg/models"
	reconpkg "github.com/Ramsey-B/fern/pkg/reconciliation"
)

var validate = validator.New()

// Handler handles reconciliation run endpoints
type Handler struct {
	service    *reconpkg.Service
	ruleRepo   *matchingrule.Repository
	recordRepo *reconrecord.Repository
}

// NewHandler creates a reconciliation handler
func NewHandler(service *reconpkg.Service, ruleRepo *matchingrule.Repository, recordRepo *reconrecord.Repository) *Handler {
	return &Handler{
		service:    service,
		ruleRepo:   ruleRepo,
		recordRepo: recordRepo,
	}
}

// Register registers reconciliation run routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/run", h.Run)
	g.GET("/status", h.Status)
	g.GET("/metrics", h.Metrics)
}

func (h *Handler) reconService(ctx context.Context) (context.Context, *reconpkg.Service, error) {
	// Prefer the explicitly wired service, fall back to DI-from-context.
	if h != nil && h.service != nil {
		return ctx, h.service, nil
	}
	return ectoinject.GetContext[*reconpkg.Service](ctx)
}

func (h *Handler) ruleRepository(ctx context.Context) (context.Context, *matchingrule.Repository, error) {
	if h != nil && h.ruleRepo != nil {
		return ctx, h.ruleRepo, nil
	}
	return ectoinject.GetContext[*matchingrule.Repository](ctx)
}

func (h *Handler) recordRepository(ctx context.Context) (context.Context, *reconrecord.Repository, error) {
	if h != nil && h.recordRepo != nil {
		return ctx, h.recordRepo, nil
	}
	return ectoinject.GetContext[*reconrecord.Repository](ctx)
}

// RunRequest is the request body for starting a reconciliation run
type RunRequest struct {
	Source    []map[string]any      `json:"source" validate:"required"`
	Target    []map[string]any      `json:"target" validate:"required"`
	Rules     []models.MatchingRule `json:"rules,omitempty"`
	Threshold float64               `json:"threshold,omitempty"`
}

// Run executes a reconciliation over the supplied datasets. Rules default to
// the tenant's stored applied rule set.
func (h *Handler) Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Run")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rules := req.Rules
	if len(rules) == 0 {
		ctx2, ruleRepo, err := h.ruleRepository(ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule repository")
		}
		ctx = ctx2
		stored, err := ruleRepo.ListApplied(ctx, tenantID)
		if err != nil {
			return err
		}
		rules = stored
	}
	if len(rules) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "no applied matching rules")
	}

	ctx, service, err := h.reconService(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	state, err := service.StartReconciliation(ctx, req.Source, req.Target, rules, req.Threshold)
	if err != nil {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}

	for i := range state.Records {
		state.Records[i].TenantID = tenantID
	}

	ctx, recordRepo, err := h.recordRepository(ctx)
	if err == nil && recordRepo != nil {
		if err := recordRepo.CreateBatch(ctx, state.Records); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, state)
}

// Status returns the current run state
func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Status")
	defer span.End()

	ctx, service, err := h.reconService(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	return c.JSON(http.StatusOK, service.State())
}

// Metrics returns the metrics of the latest run
func (h *Handler) Metrics(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconciliation_handler.Metrics")
	defer span.End()

	ctx, service, err := h.reconService(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation service")
	}

	return c.JSON(http.StatusOK, service.State().Metrics)
}
