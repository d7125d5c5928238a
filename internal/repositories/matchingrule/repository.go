// Package matchingrule persists matching rule definitions
package matchingrule

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Repository handles matching rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new matching rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ruleRow is the database shape of a matching rule; criteria live in a
// JSONB column.
type ruleRow struct {
	ID         string                                    `db:"id"`
	TenantID   string                                    `db:"tenant_id"`
	Name       string                                    `db:"name"`
	RuleType   string                                    `db:"rule_type"`
	Criteria   database.JSONB[[]models.MatchingCriterion] `db:"criteria"`
	Weight     float64                                   `db:"weight"`
	Applied    bool                                      `db:"applied"`
	Priority   int                                       `db:"priority"`
	Confidence float64                                   `db:"confidence"`
	CreatedAt  time.Time                                 `db:"created_at"`
	UpdatedAt  time.Time                                 `db:"updated_at"`
	DeletedAt  *time.Time                                `db:"deleted_at"`
}

func (row *ruleRow) toModel() models.MatchingRule {
	return models.MatchingRule{
		ID:         row.ID,
		TenantID:   row.TenantID,
		Name:       row.Name,
		Type:       models.RuleType(row.RuleType),
		Criteria:   row.Criteria.GetValue(),
		Weight:     row.Weight,
		Applied:    row.Applied,
		Priority:   row.Priority,
		Confidence: row.Confidence,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		DeletedAt:  row.DeletedAt,
	}
}

var ruleColumns = []string{"id", "tenant_id", "name", "rule_type", "criteria", "weight", "applied", "priority", "confidence", "created_at", "updated_at", "deleted_at"}

// Create creates a new matching rule
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateRuleRequest) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":    "Create",
		"tenant_id": tenantID,
		"name":      req.Name,
	})

	now := time.Now().UTC()
	rule := &models.MatchingRule{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      req.Name,
		Type:      req.Type,
		Criteria:  req.Criteria,
		Weight:    req.Weight,
		Applied:   req.Applied,
		Priority:  req.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if rule.Weight == 0 {
		rule.Weight = 1.0 // Default weight
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("matching_rules")
	sb.Cols("id", "tenant_id", "name", "rule_type", "criteria", "weight", "applied", "priority", "confidence", "created_at", "updated_at")
	sb.Values(rule.ID, rule.TenantID, rule.Name, string(rule.Type), database.NewJSONB(rule.Criteria), rule.Weight, rule.Applied, rule.Priority, rule.Confidence, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create matching rule")
	}

	log.WithFields(map[string]any{"id": rule.ID}).Info("Created matching rule")
	return rule, nil
}

// Get retrieves a matching rule by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("matching_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("matching rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get matching rule")
	}

	rule := row.toModel()
	return &rule, nil
}

// ListApplied retrieves the rules currently enabled for matching, ordered by
// priority
func (r *Repository) ListApplied(ctx context.Context, tenantID string) ([]models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.ListApplied")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("matching_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("applied", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC") // Higher priority first

	query, args := sb.Build()
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list applied matching rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list applied matching rules")
	}

	rules := make([]models.MatchingRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toModel())
	}
	return rules, nil
}

// List retrieves a page of matching rules for a tenant
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.MatchingRule, int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("matching_rules")
	countSb.Where(
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count matching rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count matching rules")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ruleColumns...)
	sb.From("matching_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("priority DESC", "created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list matching rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list matching rules")
	}

	rules := make([]models.MatchingRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toModel())
	}
	return rules, totalCount, nil
}

// Update updates a matching rule
func (r *Repository) Update(ctx context.Context, tenantID string, id string, req models.UpdateRuleRequest) (*models.MatchingRule, error) {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Type != nil {
		existing.Type = *req.Type
	}
	if req.Criteria != nil {
		existing.Criteria = req.Criteria
	}
	if req.Weight != nil {
		existing.Weight = *req.Weight
	}
	if req.Applied != nil {
		existing.Applied = *req.Applied
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}
	existing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_rules")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("rule_type", string(existing.Type)),
		sb.Assign("criteria", database.NewJSONB(existing.Criteria)),
		sb.Assign("weight", existing.Weight),
		sb.Assign("applied", existing.Applied),
		sb.Assign("priority", existing.Priority),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update matching rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update matching rule")
	}

	return existing, nil
}

// UpdateConfidence stores the last computed score for a rule
func (r *Repository) UpdateConfidence(ctx context.Context, tenantID string, id string, confidence float64) error {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.UpdateConfidence")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_rules")
	sb.Set(
		sb.Assign("confidence", confidence),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update rule confidence")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update rule confidence")
	}

	return nil
}

// Delete soft deletes a matching rule
func (r *Repository) Delete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "matchingrule.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("matching_rules")
	sb.Set(sb.Assign("deleted_at", now))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete matching rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete matching rule")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("matching rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted matching rule")
	return nil
}
