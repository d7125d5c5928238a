package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestService() *Service {
	return NewService(nil, matching.NewMatcher(), NewBuilder("ledger", "bank"), nil)
}

func nameRule() models.MatchingRule {
	return models.MatchingRule{
		ID:      "r1",
		Name:    "name match",
		Type:    models.RuleTypeExact,
		Applied: true,
		Weight:  1,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorEquals, Weight: 1},
		},
	}
}

func TestStartReconciliation(t *testing.T) {
	service := newTestService()

	state, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s1", "name": "John Doe"}},
		[]map[string]any{{"id": "t1", "name": "John Doe"}},
		[]models.MatchingRule{nameRule()},
		0,
	)

	require.NoError(t, err)
	assert.False(t, state.IsProcessing)
	assert.Equal(t, models.RunStepComplete, state.CurrentStep)
	assert.Equal(t, 100.0, state.Progress)
	assert.Empty(t, state.Error)

	require.Len(t, state.Records, 1)
	assert.Equal(t, models.RecordStatusMatched, state.Records[0].Status)
	assert.Equal(t, 1, state.Metrics.MatchedRecords)
	assert.Equal(t, 100.0, state.Metrics.MatchRate)
}

func TestStartReconciliationBelowThreshold(t *testing.T) {
	service := newTestService()

	rule := models.MatchingRule{
		ID:      "r2",
		Name:    "name and amount",
		Applied: true,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorEquals, Weight: 0.5},
			{Field: "amount", Operator: models.OperatorEquals, Weight: 0.5},
		},
	}

	state, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s1", "name": "John Doe", "amount": float64(1000)}},
		[]map[string]any{{"id": "t1", "name": "John Doe", "amount": float64(999)}},
		[]models.MatchingRule{rule},
		80,
	)

	require.NoError(t, err)

	// Confidence 50 misses the 80 threshold, so both sides are unmatched
	require.Len(t, state.Records, 2)
	for _, record := range state.Records {
		assert.Equal(t, models.RecordStatusUnmatched, record.Status)
	}
	assert.Equal(t, 0, state.Metrics.MatchedRecords)
	assert.Equal(t, 2, state.Metrics.UnmatchedRecords)
}

func TestStartReconciliationKeepsBestTarget(t *testing.T) {
	service := newTestService()

	rule := models.MatchingRule{
		ID:      "r3",
		Name:    "fuzzy name",
		Applied: true,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorFuzzy, Weight: 1},
		},
	}

	state, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s1", "name": "Jane Smith"}},
		[]map[string]any{
			{"id": "t1", "name": "Jane Smithe"}, // 10/11 similarity
			{"id": "t2", "name": "Jane Smith"},  // exact
		},
		[]models.MatchingRule{rule},
		80,
	)

	require.NoError(t, err)

	var matched []models.ReconciliationRecord
	for _, record := range state.Records {
		if record.Status == models.RecordStatusMatched {
			matched = append(matched, record)
		}
	}

	require.Len(t, matched, 1)
	assert.Equal(t, 100.0, matched[0].Confidence)
	assert.Equal(t, "t2", matched[0].Sources[1].RecordID)
}

func TestStartReconciliationPreservesPreviousRunOnEmptyInput(t *testing.T) {
	service := newTestService()

	first, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s1", "name": "John Doe"}},
		[]map[string]any{{"id": "t1", "name": "John Doe"}},
		[]models.MatchingRule{nameRule()},
		0,
	)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)

	// A new run replaces records under a new batch id
	second, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s9", "name": "Someone Else"}},
		[]map[string]any{},
		[]models.MatchingRule{nameRule()},
		0,
	)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.NotEqual(t, first.Records[0].BatchID, second.Records[0].BatchID)
}

func TestStateReturnsSnapshot(t *testing.T) {
	service := newTestService()

	state, err := service.StartReconciliation(context.Background(),
		[]map[string]any{{"id": "s1", "name": "John Doe"}},
		[]map[string]any{{"id": "t1", "name": "John Doe"}},
		[]models.MatchingRule{nameRule()},
		0,
	)
	require.NoError(t, err)
	require.Len(t, state.Records, 1)

	// Mutating the snapshot must not leak into the service state
	state.Records[0].Status = models.RecordStatusEscalated
	assert.Equal(t, models.RecordStatusMatched, service.State().Records[0].Status)
}
