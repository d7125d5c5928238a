package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func sampleRecords() []models.ReconciliationRecord {
	return []models.ReconciliationRecord{
		{
			ID:         "r1",
			Status:     models.RecordStatusMatched,
			Confidence: 95,
			RiskLevel:  models.RiskLevelLow,
			Sources: []models.RecordSource{
				{Data: map[string]any{"name": "John Doe", "amount": float64(1000), "reference": "TXN-001"}},
			},
			Metadata: models.RecordMetadata{Priority: 1, CreatedAt: time.Now().UTC()},
			Resolution: &models.Resolution{Status: models.ResolutionStatusPending},
		},
		{
			ID:         "r2",
			Status:     models.RecordStatusUnmatched,
			Confidence: 0,
			RiskLevel:  models.RiskLevelHigh,
			Sources: []models.RecordSource{
				{Data: map[string]any{"name": "Jane Smith", "amount": float64(250), "reference": "TXN-002"}},
			},
			Metadata: models.RecordMetadata{Priority: 3},
			Resolution: &models.Resolution{Status: models.ResolutionStatusPending},
		},
		{
			ID:         "r3",
			Status:     models.RecordStatusDiscrepancy,
			Confidence: 75,
			RiskLevel:  models.RiskLevelMedium,
			Sources: []models.RecordSource{
				{Data: map[string]any{"name": "Bob Jones", "amount": float64(500), "reference": "INV-003"}},
			},
			Metadata: models.RecordMetadata{Priority: 2},
			Resolution: &models.Resolution{Status: models.ResolutionStatusEscalated},
		},
	}
}

func TestApply(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name    string
		configs []Config
		wantIDs []string
	}{
		{
			name:    "no filters passes everything",
			configs: nil,
			wantIDs: []string{"r1", "r2", "r3"},
		},
		{
			name:    "equals on status",
			configs: []Config{{Field: "status", Operator: OpEquals, Value: "matched", Active: true}},
			wantIDs: []string{"r1"},
		},
		{
			name:    "inactive filters are ignored",
			configs: []Config{{Field: "status", Operator: OpEquals, Value: "matched", Active: false}},
			wantIDs: []string{"r1", "r2", "r3"},
		},
		{
			name:    "contains on source field",
			configs: []Config{{Field: "source.reference", Operator: OpContains, Value: "txn", Active: true}},
			wantIDs: []string{"r1", "r2"},
		},
		{
			name:    "startsWith on source field",
			configs: []Config{{Field: "source.reference", Operator: OpStartsWith, Value: "inv", Active: true}},
			wantIDs: []string{"r3"},
		},
		{
			name:    "endsWith on source field",
			configs: []Config{{Field: "source.reference", Operator: OpEndsWith, Value: "001", Active: true}},
			wantIDs: []string{"r1"},
		},
		{
			name:    "greaterThan on confidence",
			configs: []Config{{Field: "confidence", Operator: OpGreaterThan, Value: 70, Active: true}},
			wantIDs: []string{"r1", "r3"},
		},
		{
			name:    "lessThan on source amount",
			configs: []Config{{Field: "source.amount", Operator: OpLessThan, Value: 400, Active: true}},
			wantIDs: []string{"r2"},
		},
		{
			name:    "between on source amount",
			configs: []Config{{Field: "source.amount", Operator: OpBetween, Value: 300, Value2: 800, Active: true}},
			wantIDs: []string{"r3"},
		},
		{
			name:    "in on risk level",
			configs: []Config{{Field: "riskLevel", Operator: OpIn, Value: []string{"low", "medium"}, Active: true}},
			wantIDs: []string{"r1", "r3"},
		},
		{
			name:    "notIn on status",
			configs: []Config{{Field: "status", Operator: OpNotIn, Value: []string{"unmatched"}, Active: true}},
			wantIDs: []string{"r1", "r3"},
		},
		{
			name: "multiple filters are ANDed",
			configs: []Config{
				{Field: "confidence", Operator: OpGreaterThan, Value: 50, Active: true},
				{Field: "riskLevel", Operator: OpEquals, Value: "medium", Active: true},
			},
			wantIDs: []string{"r3"},
		},
		{
			name:    "metadata priority filter",
			configs: []Config{{Field: "metadata.priority", Operator: OpLessThan, Value: 2, Active: true}},
			wantIDs: []string{"r1"},
		},
		{
			name:    "unknown field matches nothing",
			configs: []Config{{Field: "nope", Operator: OpEquals, Value: "x", Active: true}},
			wantIDs: []string{},
		},
		{
			name:    "unknown operator matches nothing",
			configs: []Config{{Field: "status", Operator: "near", Value: "x", Active: true}},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := Apply(records, tt.configs)
			ids := make([]string, 0, len(filtered))
			for _, record := range filtered {
				ids = append(ids, record.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestApplyGroups(t *testing.T) {
	records := sampleRecords()

	t.Run("or logic within a group", func(t *testing.T) {
		groups := []Group{
			{
				Active: true,
				Logic:  "or",
				Filters: []Config{
					{Field: "status", Operator: OpEquals, Value: "matched", Active: true},
					{Field: "status", Operator: OpEquals, Value: "discrepancy", Active: true},
				},
			},
		}

		filtered := ApplyGroups(records, groups)
		require.Len(t, filtered, 2)
	})

	t.Run("groups are ANDed together", func(t *testing.T) {
		groups := []Group{
			{
				Active: true,
				Logic:  "or",
				Filters: []Config{
					{Field: "status", Operator: OpEquals, Value: "matched", Active: true},
					{Field: "status", Operator: OpEquals, Value: "discrepancy", Active: true},
				},
			},
			{
				Active:  true,
				Filters: []Config{{Field: "confidence", Operator: OpGreaterThan, Value: 80, Active: true}},
			},
		}

		filtered := ApplyGroups(records, groups)
		require.Len(t, filtered, 1)
		assert.Equal(t, "r1", filtered[0].ID)
	})

	t.Run("inactive group is skipped", func(t *testing.T) {
		groups := []Group{
			{
				Active:  false,
				Filters: []Config{{Field: "status", Operator: OpEquals, Value: "matched", Active: true}},
			},
		}

		filtered := ApplyGroups(records, groups)
		assert.Len(t, filtered, 3)
	})
}
