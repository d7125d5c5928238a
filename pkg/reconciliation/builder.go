// Package reconciliation materializes and orchestrates reconciliation runs
package reconciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Builder materializes reconciliation records from resolved matches. It is
// pure aside from id generation; the run timestamp is supplied by the caller.
type Builder struct {
	sourceSystem string
	targetSystem string
}

// NewBuilder creates a Builder labeling record sources with the given
// system names. Empty names default to "source" and "target".
func NewBuilder(sourceSystem, targetSystem string) *Builder {
	if sourceSystem == "" {
		sourceSystem = "source"
	}
	if targetSystem == "" {
		targetSystem = "target"
	}
	return &Builder{
		sourceSystem: sourceSystem,
		targetSystem: targetSystem,
	}
}

// BuildRecords emits one matched record per resolved match, plus unmatched
// records for every leftover source AND target record. All records in a run
// share a batch id; audit trails start empty and metadata versions at 1.
func (b *Builder) BuildRecords(sourceRecords, targetRecords []map[string]any, matches []models.CandidateMatch, runTime time.Time) []models.ReconciliationRecord {
	batchID := uuid.New().String()
	reconciliationID := uuid.New().String()

	matchedSources := make(map[int]bool, len(matches))
	matchedTargets := make(map[int]bool, len(matches))

	records := make([]models.ReconciliationRecord, 0, len(sourceRecords)+len(targetRecords))

	for _, match := range matches {
		if match.SourceIndex < 0 || match.SourceIndex >= len(sourceRecords) {
			continue
		}
		if match.TargetIndex < 0 || match.TargetIndex >= len(targetRecords) {
			continue
		}
		matchedSources[match.SourceIndex] = true
		matchedTargets[match.TargetIndex] = true

		record := b.newRecord(reconciliationID, batchID, runTime)
		record.Status = models.RecordStatusMatched
		record.Confidence = match.Confidence
		record.MatchScore = match.Confidence
		record.MatchingRules = match.AppliedRules
		record.RiskLevel = riskLevel(match.Confidence)
		record.Sources = []models.RecordSource{
			b.newSource(b.sourceSystem, match.SourceIndex, sourceRecords[match.SourceIndex], runTime),
			b.newSource(b.targetSystem, match.TargetIndex, targetRecords[match.TargetIndex], runTime),
		}
		records = append(records, record)
	}

	for i, data := range sourceRecords {
		if matchedSources[i] {
			continue
		}
		records = append(records, b.unmatchedRecord(reconciliationID, batchID, b.sourceSystem, i, data, runTime))
	}

	for i, data := range targetRecords {
		if matchedTargets[i] {
			continue
		}
		records = append(records, b.unmatchedRecord(reconciliationID, batchID, b.targetSystem, i, data, runTime))
	}

	return records
}

func (b *Builder) newRecord(reconciliationID, batchID string, runTime time.Time) models.ReconciliationRecord {
	return models.ReconciliationRecord{
		ID:               uuid.New().String(),
		ReconciliationID: reconciliationID,
		BatchID:          batchID,
		AuditTrail:       []models.AuditEntry{},
		Metadata: models.RecordMetadata{
			CreatedAt: runTime,
			UpdatedAt: runTime,
			Version:   1,
		},
		Resolution: &models.Resolution{
			Status: models.ResolutionStatusPending,
		},
	}
}

func (b *Builder) unmatchedRecord(reconciliationID, batchID, system string, index int, data map[string]any, runTime time.Time) models.ReconciliationRecord {
	record := b.newRecord(reconciliationID, batchID, runTime)
	record.Status = models.RecordStatusUnmatched
	record.RiskLevel = models.RiskLevelHigh
	record.Sources = []models.RecordSource{
		b.newSource(system, index, data, runTime),
	}
	return record
}

func (b *Builder) newSource(system string, index int, data map[string]any, runTime time.Time) models.RecordSource {
	recordID := ""
	if id, ok := data["id"].(string); ok {
		recordID = id
	}
	return models.RecordSource{
		ID:          uuid.New().String(),
		SystemID:    system,
		SystemName:  system,
		RecordID:    recordID,
		Data:        data,
		Timestamp:   runTime,
		Confidence:  100,
		Fingerprint: fingerprint.Generate(data),
	}
}

// riskLevel buckets match confidence for review prioritization
func riskLevel(confidence float64) models.RiskLevel {
	switch {
	case confidence > 90:
		return models.RiskLevelLow
	case confidence > 70:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelHigh
	}
}
