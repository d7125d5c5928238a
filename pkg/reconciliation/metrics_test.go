package reconciliation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func record(status models.RecordStatus, confidence float64, resolution models.ResolutionStatus) models.ReconciliationRecord {
	return models.ReconciliationRecord{
		Status:     status,
		Confidence: confidence,
		Resolution: &models.Resolution{Status: resolution},
	}
}

func TestCalculateMetrics(t *testing.T) {
	records := []models.ReconciliationRecord{
		record(models.RecordStatusMatched, 95, models.ResolutionStatusApproved),
		record(models.RecordStatusMatched, 85, models.ResolutionStatusPending),
		record(models.RecordStatusUnmatched, 0, models.ResolutionStatusPending),
		record(models.RecordStatusDiscrepancy, 60, models.ResolutionStatusEscalated),
	}

	metrics := CalculateMetrics(records, 250*time.Millisecond)

	assert.Equal(t, 4, metrics.TotalRecords)
	assert.Equal(t, 2, metrics.MatchedRecords)
	assert.Equal(t, 1, metrics.UnmatchedRecords)
	assert.Equal(t, 1, metrics.DiscrepancyRecords)
	assert.Equal(t, 2, metrics.PendingResolution)
	assert.Equal(t, 1, metrics.ResolvedRecords)
	assert.Equal(t, 1, metrics.EscalatedRecords)

	// Average over records with confidence > 0 only
	assert.InDelta(t, 80.0, metrics.AverageConfidence, 0.0001)
	assert.InDelta(t, 50.0, metrics.MatchRate, 0.0001)
	assert.Equal(t, 250*time.Millisecond, metrics.ProcessingTime)
	assert.False(t, metrics.LastUpdated.IsZero())
}

func TestCalculateMetricsEmptySet(t *testing.T) {
	metrics := CalculateMetrics(nil, 0)

	assert.Equal(t, 0, metrics.TotalRecords)
	assert.Equal(t, 0.0, metrics.MatchRate)
	assert.Equal(t, 0.0, metrics.AverageConfidence)
}

func TestCalculateMetricsConsistency(t *testing.T) {
	records := []models.ReconciliationRecord{
		record(models.RecordStatusMatched, 92, models.ResolutionStatusPending),
		record(models.RecordStatusUnmatched, 0, models.ResolutionStatusPending),
		record(models.RecordStatusUnmatched, 0, models.ResolutionStatusPending),
	}

	metrics := CalculateMetrics(records, time.Second)

	assert.LessOrEqual(t, metrics.MatchedRecords+metrics.UnmatchedRecords, metrics.TotalRecords)
	assert.GreaterOrEqual(t, metrics.MatchRate, 0.0)
	assert.LessOrEqual(t, metrics.MatchRate, 100.0)
	assert.GreaterOrEqual(t, metrics.AverageConfidence, 0.0)
	assert.LessOrEqual(t, metrics.AverageConfidence, 100.0)

	// Idempotent: recomputing over the same set yields the same counts
	again := CalculateMetrics(records, time.Second)
	metrics.LastUpdated = again.LastUpdated
	assert.Equal(t, metrics, again)
}
