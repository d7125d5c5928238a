package rule

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/matchingrule"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

var validate = validator.New()

// Handler handles matching rule endpoints
type Handler struct {
	repo    *matchingrule.Repository
	emitter *events.Emitter
	logger  ectologger.Logger
}

// NewHandler creates a rule handler. Emitter may be nil when no Kafka
// pipeline is running.
func NewHandler(repo *matchingrule.Repository, emitter *events.Emitter, logger ectologger.Logger) *Handler {
	return &Handler{
		repo:    repo,
		emitter: emitter,
		logger:  logger,
	}
}

// Register registers matching rule routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/export", h.Export)
	g.POST("/import", h.Import)
	g.POST("/validate", h.Validate)
	g.PUT("/reorder", h.Reorder)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/toggle", h.Toggle)
	g.POST("/:id/duplicate", h.Duplicate)
}

func (h *Handler) repository(ctx context.Context) (context.Context, *matchingrule.Repository, error) {
	// Prefer the explicitly wired repository, fall back to DI-from-context.
	if h != nil && h.repo != nil {
		return ctx, h.repo, nil
	}
	return ectoinject.GetContext[*matchingrule.Repository](ctx)
}

// List returns a page of matching rules
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.List")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RuleListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns a matching rule by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	rule, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// Create creates a new matching rule
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Create")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created, err := repo.Create(ctx, tenantID, req)
	if err != nil {
		return err
	}

	h.emitRuleEvent(c, tenantID, created.ID, "created")

	return c.JSON(http.StatusCreated, created)
}

// Update updates a matching rule
func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Update")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.UpdateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	updated, err := repo.Update(ctx, tenantID, c.Param("id"), req)
	if err != nil {
		return err
	}

	h.emitRuleEvent(c, tenantID, updated.ID, "updated")

	return c.JSON(http.StatusOK, updated)
}

// Delete soft deletes a matching rule
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Delete")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	id := c.Param("id")
	if err := repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	h.emitRuleEvent(c, tenantID, id, "deleted")

	return c.NoContent(http.StatusNoContent)
}

// Toggle flips a rule's applied flag
func (h *Handler) Toggle(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Toggle")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	id := c.Param("id")
	existing, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	applied := !existing.Applied
	updated, err := repo.Update(ctx, tenantID, id, models.UpdateRuleRequest{Applied: &applied})
	if err != nil {
		return err
	}

	h.emitRuleEvent(c, tenantID, id, "toggled")

	return c.JSON(http.StatusOK, updated)
}

// Duplicate clones a rule under a new id with a " (Copy)" name suffix
func (h *Handler) Duplicate(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Duplicate")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	created, err := repo.Create(ctx, tenantID, models.CreateRuleRequest{
		Name:     existing.Name + " (Copy)",
		Type:     existing.Type,
		Criteria: existing.Criteria,
		Weight:   existing.Weight,
		Applied:  existing.Applied,
		Priority: existing.Priority,
	})
	if err != nil {
		return err
	}

	h.emitRuleEvent(c, tenantID, created.ID, "created")

	return c.JSON(http.StatusCreated, created)
}

// ReorderRequest is the request body for reordering rules
type ReorderRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// Reorder rewrites rule priorities to match the given id order, first id
// highest
func (h *Handler) Reorder(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Reorder")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req ReorderRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	for i, id := range req.IDs {
		priority := len(req.IDs) - i
		if _, err := repo.Update(ctx, tenantID, id, models.UpdateRuleRequest{Priority: &priority}); err != nil {
			return err
		}
	}

	return c.NoContent(http.StatusNoContent)
}

// Import creates rules from an exported rule set, assigning fresh ids
func (h *Handler) Import(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Import")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var imported []models.MatchingRule
	if err := c.Bind(&imported); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if result := rules.ValidateRules(imported); !result.IsValid {
		return c.JSON(http.StatusBadRequest, result)
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	created := make([]models.MatchingRule, 0, len(imported))
	for _, rule := range imported {
		r, err := repo.Create(ctx, tenantID, models.CreateRuleRequest{
			Name:     rule.Name,
			Type:     rule.Type,
			Criteria: rule.Criteria,
			Weight:   rule.Weight,
			Applied:  rule.Applied,
			Priority: rule.Priority,
		})
		if err != nil {
			return err
		}
		created = append(created, *r)
	}

	return c.JSON(http.StatusCreated, created)
}

// Export returns the tenant's full rule set
func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rule_handler.Export")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, _, err := repo.List(ctx, tenantID, 1, 100)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// Validate runs rule validation without persisting anything
func (h *Handler) Validate(c echo.Context) error {
	_, span := tracing.StartSpan(c.Request().Context(), "rule_handler.Validate")
	defer span.End()

	var toCheck []models.MatchingRule
	if err := c.Bind(&toCheck); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	return c.JSON(http.StatusOK, rules.ValidateRules(toCheck))
}

func (h *Handler) emitRuleEvent(c echo.Context, tenantID, ruleID, action string) {
	ctx := c.Request().Context()

	emitter := h.emitter
	if emitter == nil {
		_, diEmitter, err := ectoinject.GetContext[*events.Emitter](ctx)
		if err != nil || diEmitter == nil {
			return
		}
		emitter = diEmitter
	}

	if err := emitter.RuleUpdated(ctx, tenantID, ruleID, action); err != nil {
		logger := h.logger
		if logger == nil {
			if _, diLogger, logErr := ectoinject.GetContext[ectologger.Logger](ctx); logErr == nil {
				logger = diLogger
			}
		}
		if logger != nil {
			logger.WithContext(ctx).WithError(err).Warn("Failed to emit rule event")
		}
	}
}
