package reconciliation

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// CalculateMetrics summarizes a record set. Pure and idempotent: the same
// records and processing time always produce the same counts.
func CalculateMetrics(records []models.ReconciliationRecord, processingTime time.Duration) models.ReconciliationMetrics {
	metrics := models.ReconciliationMetrics{
		TotalRecords:   len(records),
		ProcessingTime: processingTime,
		LastUpdated:    time.Now().UTC(),
	}

	var confidenceSum float64
	var confidenceCount int

	for _, record := range records {
		switch record.Status {
		case models.RecordStatusMatched:
			metrics.MatchedRecords++
		case models.RecordStatusUnmatched:
			metrics.UnmatchedRecords++
		case models.RecordStatusDiscrepancy:
			metrics.DiscrepancyRecords++
		}

		if record.Resolution != nil {
			switch record.Resolution.Status {
			case models.ResolutionStatusPending:
				metrics.PendingResolution++
			case models.ResolutionStatusApproved, models.ResolutionStatusRejected:
				metrics.ResolvedRecords++
			case models.ResolutionStatusEscalated:
				metrics.EscalatedRecords++
			}
		}

		if record.Confidence > 0 {
			confidenceSum += record.Confidence
			confidenceCount++
		}
	}

	if confidenceCount > 0 {
		metrics.AverageConfidence = confidenceSum / float64(confidenceCount)
	}
	if metrics.TotalRecords > 0 {
		metrics.MatchRate = float64(metrics.MatchedRecords) / float64(metrics.TotalRecords) * 100
	}

	return metrics
}
