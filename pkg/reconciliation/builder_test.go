package reconciliation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestBuildRecords(t *testing.T) {
	builder := NewBuilder("ledger", "bank")
	runTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	source := []map[string]any{
		{"id": "s1", "name": "John Doe"},
		{"id": "s2", "name": "Jane Smith"},
	}
	target := []map[string]any{
		{"id": "t1", "name": "John Doe"},
		{"id": "t2", "name": "Unrelated"},
	}
	matches := []models.CandidateMatch{
		{SourceIndex: 0, TargetIndex: 0, Confidence: 100, AppliedRules: []string{"name match"}},
	}

	records := builder.BuildRecords(source, target, matches, runTime)

	// 1 matched + 1 unmatched source + 1 unmatched target
	require.Len(t, records, 3)

	t.Run("matched record", func(t *testing.T) {
		matched := records[0]
		assert.Equal(t, models.RecordStatusMatched, matched.Status)
		assert.Equal(t, 100.0, matched.Confidence)
		assert.Equal(t, 100.0, matched.MatchScore)
		assert.Equal(t, models.RiskLevelLow, matched.RiskLevel)
		assert.Equal(t, []string{"name match"}, matched.MatchingRules)
		require.Len(t, matched.Sources, 2)
		assert.Equal(t, "ledger", matched.Sources[0].SystemName)
		assert.Equal(t, "bank", matched.Sources[1].SystemName)
		assert.Equal(t, "s1", matched.Sources[0].RecordID)
		assert.Equal(t, "t1", matched.Sources[1].RecordID)
		assert.NotEmpty(t, matched.Sources[0].Fingerprint)
	})

	t.Run("unmatched source and target both materialized", func(t *testing.T) {
		unmatchedSource := records[1]
		assert.Equal(t, models.RecordStatusUnmatched, unmatchedSource.Status)
		require.Len(t, unmatchedSource.Sources, 1)
		assert.Equal(t, "ledger", unmatchedSource.Sources[0].SystemName)
		assert.Equal(t, "s2", unmatchedSource.Sources[0].RecordID)

		unmatchedTarget := records[2]
		assert.Equal(t, models.RecordStatusUnmatched, unmatchedTarget.Status)
		require.Len(t, unmatchedTarget.Sources, 1)
		assert.Equal(t, "bank", unmatchedTarget.Sources[0].SystemName)
		assert.Equal(t, "t2", unmatchedTarget.Sources[0].RecordID)
	})

	t.Run("shared batch and empty audit trail", func(t *testing.T) {
		for _, record := range records {
			assert.Equal(t, records[0].BatchID, record.BatchID)
			assert.Equal(t, records[0].ReconciliationID, record.ReconciliationID)
			assert.Empty(t, record.AuditTrail)
			assert.Equal(t, 1, record.Metadata.Version)
			assert.Equal(t, runTime, record.Metadata.CreatedAt)
			assert.Equal(t, runTime, record.Metadata.UpdatedAt)
			require.NotNil(t, record.Resolution)
			assert.Equal(t, models.ResolutionStatusPending, record.Resolution.Status)
			assert.Nil(t, record.Resolution.ResolvedAt)
		}
	})
}

func TestRiskLevel(t *testing.T) {
	builder := NewBuilder("", "")
	runTime := time.Now().UTC()

	tests := []struct {
		name       string
		confidence float64
		expected   models.RiskLevel
	}{
		{name: "above 90 is low", confidence: 95, expected: models.RiskLevelLow},
		{name: "exactly 90 is medium", confidence: 90, expected: models.RiskLevelMedium},
		{name: "above 70 is medium", confidence: 80, expected: models.RiskLevelMedium},
		{name: "exactly 70 is high", confidence: 70, expected: models.RiskLevelHigh},
		{name: "low confidence is high risk", confidence: 50, expected: models.RiskLevelHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := builder.BuildRecords(
				[]map[string]any{{"id": "s"}},
				[]map[string]any{{"id": "t"}},
				[]models.CandidateMatch{{SourceIndex: 0, TargetIndex: 0, Confidence: tt.confidence}},
				runTime,
			)
			require.Len(t, records, 1)
			assert.Equal(t, tt.expected, records[0].RiskLevel)
		})
	}
}

func TestBuildRecordsSkipsOutOfRangeMatches(t *testing.T) {
	builder := NewBuilder("", "")

	records := builder.BuildRecords(
		[]map[string]any{{"id": "s1"}},
		[]map[string]any{{"id": "t1"}},
		[]models.CandidateMatch{{SourceIndex: 5, TargetIndex: 0, Confidence: 100}},
		time.Now().UTC(),
	)

	// Bad match ignored; both records fall through as unmatched
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, models.RecordStatusUnmatched, record.Status)
	}
}

func TestBuildRecordsDefaultSystemNames(t *testing.T) {
	builder := NewBuilder("", "")

	records := builder.BuildRecords(
		[]map[string]any{{"id": "s1"}},
		nil,
		nil,
		time.Now().UTC(),
	)

	require.Len(t, records, 1)
	assert.Equal(t, "source", records[0].Sources[0].SystemName)
}
