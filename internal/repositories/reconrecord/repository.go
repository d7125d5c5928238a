// Package reconrecord persists reconciliation records
package reconrecord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Repository handles reconciliation record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new reconciliation record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// recordRow is the database shape of a reconciliation record. Sources, audit
// trail, metadata, relationships, and resolution live in JSONB columns.
type recordRow struct {
	ID               string                                      `db:"id"`
	TenantID         string                                      `db:"tenant_id"`
	ReconciliationID string                                      `db:"reconciliation_id"`
	BatchID          string                                      `db:"batch_id"`
	Sources          database.JSONB[[]models.RecordSource]       `db:"sources"`
	Status           string                                      `db:"status"`
	Confidence       float64                                     `db:"confidence"`
	MatchingRules    database.JSONB[[]string]                    `db:"matching_rules"`
	MatchScore       float64                                     `db:"match_score"`
	RiskLevel        string                                      `db:"risk_level"`
	AuditTrail       database.JSONB[[]models.AuditEntry]         `db:"audit_trail"`
	Metadata         database.JSONB[models.RecordMetadata]       `db:"metadata"`
	Relationships    database.JSONB[[]models.RecordRelationship] `db:"relationships"`
	Resolution       database.JSONB[*models.Resolution]          `db:"resolution"`
}

func (row *recordRow) toModel() models.ReconciliationRecord {
	return models.ReconciliationRecord{
		ID:               row.ID,
		TenantID:         row.TenantID,
		ReconciliationID: row.ReconciliationID,
		BatchID:          row.BatchID,
		Sources:          row.Sources.GetValue(),
		Status:           models.RecordStatus(row.Status),
		Confidence:       row.Confidence,
		MatchingRules:    row.MatchingRules.GetValue(),
		MatchScore:       row.MatchScore,
		RiskLevel:        models.RiskLevel(row.RiskLevel),
		AuditTrail:       row.AuditTrail.GetValue(),
		Metadata:         row.Metadata.GetValue(),
		Relationships:    row.Relationships.GetValue(),
		Resolution:       row.Resolution.GetValue(),
	}
}

var recordColumns = []string{"id", "tenant_id", "reconciliation_id", "batch_id", "sources", "status", "confidence", "matching_rules", "match_score", "risk_level", "audit_trail", "metadata", "relationships", "resolution"}

// ListFilter narrows record queries. Zero values are ignored.
type ListFilter struct {
	BatchID          string
	Status           models.RecordStatus
	RiskLevel        models.RiskLevel
	ResolutionStatus models.ResolutionStatus
}

// CreateBatch persists the records of a reconciliation run efficiently
func (r *Repository) CreateBatch(ctx context.Context, records []models.ReconciliationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.CreateBatch")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("reconciliation_records")
	ib.Cols(recordColumns...)

	for i := range records {
		rec := &records[i]
		ib.Values(
			rec.ID,
			rec.TenantID,
			rec.ReconciliationID,
			rec.BatchID,
			database.NewJSONB(rec.Sources),
			string(rec.Status),
			rec.Confidence,
			database.NewJSONB(rec.MatchingRules),
			rec.MatchScore,
			string(rec.RiskLevel),
			database.NewJSONB(rec.AuditTrail),
			database.NewJSONB(rec.Metadata),
			database.NewJSONB(rec.Relationships),
			database.NewJSONB(rec.Resolution),
		)
	}

	// Re-running a batch replaces the record state
	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("status", database.Excluded("status")),
		ub.Assign("confidence", database.Excluded("confidence")),
		ub.Assign("match_score", database.Excluded("match_score")),
		ub.Assign("risk_level", database.Excluded("risk_level")),
		ub.Assign("resolution", database.Excluded("resolution")),
		ub.Assign("audit_trail", database.Excluded("audit_trail")),
		ub.Assign("metadata", database.Excluded("metadata")),
	)

	query, args := ib.Build()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create reconciliation records batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create reconciliation records")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create reconciliation records")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(records), "batch_id": records[0].BatchID}).Debug("Created reconciliation records batch")
	return nil
}

// Get retrieves a reconciliation record by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.ReconciliationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("reconciliation_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("reconciliation record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get reconciliation record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get reconciliation record")
	}

	record := row.toModel()
	return &record, nil
}

// List retrieves a filtered page of reconciliation records
func (r *Repository) List(ctx context.Context, tenantID string, filter ListFilter, page, pageSize int) ([]models.ReconciliationRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("reconciliation_records")
	countSb.Where(filterConditions(countSb, tenantID, filter)...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count reconciliation records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count reconciliation records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("reconciliation_records")
	sb.Where(filterConditions(sb, tenantID, filter)...)
	sb.OrderBy("match_score DESC", "id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list reconciliation records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reconciliation records")
	}

	records := make([]models.ReconciliationRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, totalCount, nil
}

// ListByBatch retrieves all records for a run batch
func (r *Repository) ListByBatch(ctx context.Context, tenantID string, batchID string) ([]models.ReconciliationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.ListByBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("reconciliation_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("batch_id", batchID),
	)
	sb.OrderBy("match_score DESC", "id ASC")

	query, args := sb.Build()
	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list reconciliation records by batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list reconciliation records")
	}

	records := make([]models.ReconciliationRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toModel())
	}
	return records, nil
}

// LatestBatchID returns the batch id of the most recent run, or empty if no
// run has been persisted.
func (r *Repository) LatestBatchID(ctx context.Context, tenantID string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.LatestBatchID")
	defer span.End()

	query := `
		SELECT batch_id
		FROM reconciliation_records
		WHERE tenant_id = $1
		ORDER BY (metadata->>'created_at') DESC
		LIMIT 1
	`

	var batchID string
	if err := r.db.GetContext(ctx, &batchID, query, tenantID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest batch id")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest batch id")
	}

	return batchID, nil
}

// UpdateResolution stores the resolution outcome of a record
func (r *Repository) UpdateResolution(ctx context.Context, tenantID string, record *models.ReconciliationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.UpdateResolution")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("reconciliation_records")
	sb.Set(
		sb.Assign("status", string(record.Status)),
		sb.Assign("resolution", database.NewJSONB(record.Resolution)),
		sb.Assign("audit_trail", database.NewJSONB(record.AuditTrail)),
		sb.Assign("metadata", database.NewJSONB(record.Metadata)),
	)
	sb.Where(
		sb.Equal("id", record.ID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update record resolution")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update record resolution")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("reconciliation record %s not found", record.ID))
	}

	return nil
}

// DeleteByBatch removes the records of a superseded run batch
func (r *Repository) DeleteByBatch(ctx context.Context, tenantID string, batchID string) error {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.DeleteByBatch")
	defer span.End()

	query := `
		DELETE FROM reconciliation_records
		WHERE tenant_id = $1
		AND batch_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, tenantID, batchID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete reconciliation records by batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete reconciliation records")
	}

	return nil
}

// CountSince reports how many records were created after a point in time,
// used by the review queue to cap backlog growth.
func (r *Repository) CountSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reconrecord.Repository.CountSince")
	defer span.End()

	query := `
		SELECT COUNT(*)
		FROM reconciliation_records
		WHERE tenant_id = $1
		AND (metadata->>'created_at')::timestamptz >= $2
	`

	var count int
	if err := r.db.GetContext(ctx, &count, query, tenantID, since); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count reconciliation records")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count reconciliation records")
	}

	return count, nil
}

func filterConditions(sb *sqlbuilder.SelectBuilder, tenantID string, filter ListFilter) []string {
	conditions := []string{sb.Equal("tenant_id", tenantID)}
	if filter.BatchID != "" {
		conditions = append(conditions, sb.Equal("batch_id", filter.BatchID))
	}
	if filter.Status != "" {
		conditions = append(conditions, sb.Equal("status", string(filter.Status)))
	}
	if filter.RiskLevel != "" {
		conditions = append(conditions, sb.Equal("risk_level", string(filter.RiskLevel)))
	}
	if filter.ResolutionStatus != "" {
		conditions = append(conditions, sb.Equal("resolution->>'status'", string(filter.ResolutionStatus)))
	}
	return conditions
}
