package record

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxmiddleware "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/reconrecord"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/filter"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolution"
)

var validate = validator.New()

// Handler handles reconciliation record endpoints
type Handler struct {
	repo    *reconrecord.Repository
	emitter *events.Emitter
}

// NewHandler creates a record handler. Emitter may be nil when no Kafka
// pipeline is running.
func NewHandler(repo *reconrecord.Repository, emitter *events.Emitter) *Handler {
	return &Handler{
		repo:    repo,
		emitter: emitter,
	}
}

// Register registers reconciliation record routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("/search", h.Search)
	g.POST("/bulk-resolve", h.BulkResolve)
	g.GET("/export", h.Export)
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/:id/comment", h.Comment)
	g.POST("/:id/assign", h.Assign)
}

func (h *Handler) repository(ctx context.Context) (context.Context, *reconrecord.Repository, error) {
	// Prefer the explicitly wired repository, fall back to DI-from-context.
	if h != nil && h.repo != nil {
		return ctx, h.repo, nil
	}
	return ectoinject.GetContext[*reconrecord.Repository](ctx)
}

// recordEmitter resolves the event emitter for the resolution workflow.
// The return type is the interface, and a missing emitter comes back as an
// untyped nil: returning a nil *events.Emitter here would produce a non-nil
// interface value and defeat the workflow's nil check.
func (h *Handler) recordEmitter(ctx context.Context) resolution.RecordEventEmitter {
	if h != nil && h.emitter != nil {
		return h.emitter
	}
	_, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err != nil || emitter == nil {
		return nil
	}
	return emitter
}

// List returns a filtered page of records
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.List")
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
		pageSize = 50
	}

	listFilter := reconrecord.ListFilter{
		BatchID:          c.QueryParam("batch_id"),
		Status:           models.RecordStatus(c.QueryParam("status")),
		RiskLevel:        models.RiskLevel(c.QueryParam("risk_level")),
		ResolutionStatus: models.ResolutionStatus(c.QueryParam("resolution_status")),
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, tenantID, listFilter, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RecordListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// SearchRequest is the request body for in-memory record filtering
type SearchRequest struct {
	BatchID string          `json:"batch_id,omitempty"`
	Filters []filter.Config `json:"filters,omitempty"`
	Groups  []filter.Group  `json:"groups,omitempty"`
}

// Search applies field filters over a batch's records. Filters are ANDed;
// groups supplement them with OR logic.
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Search")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID, err = repo.LatestBatchID(ctx, tenantID)
		if err != nil {
			return err
		}
		if batchID == "" {
			return c.JSON(http.StatusOK, []models.ReconciliationRecord{})
		}
	}

	records, err := repo.ListByBatch(ctx, tenantID, batchID)
	if err != nil {
		return err
	}

	records = filter.Apply(records, req.Filters)
	if len(req.Groups) > 0 {
		records = filter.ApplyGroups(records, req.Groups)
	}

	return c.JSON(http.StatusOK, records)
}

// Get returns a record by ID
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	rec, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rec)
}

// Resolve applies a resolution action to a single record
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Resolve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ResolveRequest
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

	rec, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	wf := resolution.NewWorkflow([]models.ReconciliationRecord{*rec}, h.recordEmitter(ctx))
	wf.Resolve(ctx, rec.ID, req.Action, req.Comment)

	resolved := wf.GetByID(rec.ID)
	if err := repo.UpdateResolution(ctx, tenantID, resolved); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resolved)
}

// BulkResolve applies a resolution action to many records at once
func (h *Handler) BulkResolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.BulkResolve")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.BulkResolveRequest
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

	records := make([]models.ReconciliationRecord, 0, len(req.IDs))
	for _, id := range req.IDs {
		rec, err := repo.Get(ctx, tenantID, id)
		if err != nil {
			// Unknown ids are skipped, matching single-record semantics
			continue
		}
		records = append(records, *rec)
	}

	wf := resolution.NewWorkflow(records, h.recordEmitter(ctx))
	done, err := wf.BulkResolve(ctx, req.IDs, req.Action, req.Comment)
	if err != nil {
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	}
	<-done

	resolved := wf.Records()
	for i := range resolved {
		if err := repo.UpdateResolution(ctx, tenantID, &resolved[i]); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, resolved)
}

// CommentRequest is the request body for adding a record comment
type CommentRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// Comment adds a comment without changing record status
func (h *Handler) Comment(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Comment")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req CommentRequest
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

	rec, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	wf := resolution.NewWorkflow([]models.ReconciliationRecord{*rec}, nil)
	wf.AddComment(rec.ID, req.Comment)

	updated := wf.GetByID(rec.ID)
	if err := repo.UpdateResolution(ctx, tenantID, updated); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// AssignRequest is the request body for assigning a record
type AssignRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// Assign assigns a record to a reviewer
func (h *Handler) Assign(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Assign")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req AssignRequest
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

	rec, err := repo.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return err
	}

	wf := resolution.NewWorkflow([]models.ReconciliationRecord{*rec}, nil)
	wf.Assign(rec.ID, req.UserID)

	updated := wf.GetByID(rec.ID)
	if err := repo.UpdateResolution(ctx, tenantID, updated); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// Export returns the non-pending records of a batch as a JSON document
func (h *Handler) Export(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "record_handler.Export")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, repo, err := h.repository(ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	batchID := c.QueryParam("batch_id")
	if batchID == "" {
		batchID, err = repo.LatestBatchID(ctx, tenantID)
		if err != nil {
			return err
		}
	}

	records, err := repo.ListByBatch(ctx, tenantID, batchID)
	if err != nil {
		return err
	}

	wf := resolution.NewWorkflow(records, nil)
	data, err := wf.ExportResolved()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to export records")
	}

	return c.Blob(http.StatusOK, "application/json", data)
}
