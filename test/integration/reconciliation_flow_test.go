package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/rules"
)

func exactNameRule() models.MatchingRule {
	return models.MatchingRule{
		ID:      "rule-exact-name",
		Name:    "Exact name",
		Type:    models.RuleTypeExact,
		Weight:  1.0,
		Applied: true,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorEquals, Weight: 1.0},
		},
	}
}

func fuzzyNameRule() models.MatchingRule {
	return models.MatchingRule{
		ID:      "rule-fuzzy-name",
		Name:    "Fuzzy name",
		Type:    models.RuleTypeFuzzy,
		Weight:  1.0,
		Applied: true,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorFuzzy, Weight: 1.0},
		},
	}
}

func TestReconciliationFlow(t *testing.T) {
	t.Run("RunResolveExport", func(t *testing.T) {
		service := reconciliation.NewService(nil, matching.NewMatcher(), reconciliation.NewBuilder("bank", "ledger"), nil)

		source := []map[string]any{
			{"id": "s1", "name": "Jane Smith", "amount": 100.0},
			{"id": "s2", "name": "John Doe", "amount": 250.0},
			{"id": "s3", "name": "Nobody Here", "amount": 75.0},
		}
		target := []map[string]any{
			{"id": "t1", "name": "Jane Smith", "amount": 100.0},
			{"id": "t2", "name": "John Doe", "amount": 250.0},
		}

		state, err := service.StartReconciliation(context.Background(), source, target, []models.MatchingRule{exactNameRule()}, 0)
		require.NoError(t, err)
		require.False(t, state.IsProcessing)
		assert.Equal(t, models.RunStepComplete, state.CurrentStep)

		var matched, unmatched int
		for _, rec := range state.Records {
			switch rec.Status {
			case models.RecordStatusMatched:
				matched++
				assert.Len(t, rec.Sources, 2)
				assert.Equal(t, 100.0, rec.Confidence)
			case models.RecordStatusUnmatched:
				unmatched++
				assert.Len(t, rec.Sources, 1)
			}
		}
		assert.Equal(t, 2, matched)
		assert.Equal(t, 1, unmatched)
		assert.Equal(t, 2, state.Metrics.MatchedRecords)
		assert.InDelta(t, 100.0*2.0/3.0, state.Metrics.MatchRate, 0.01)

		// Resolve the matched records through the workflow
		wf := resolution.NewWorkflow(state.Records, nil)
		pending := wf.PendingIDs()
		require.Len(t, pending, 3)

		done, err := wf.BulkResolve(context.Background(), pending[:2], models.ResolutionActionApprove, "verified")
		require.NoError(t, err)
		<-done

		for _, id := range pending[:2] {
			rec := wf.GetByID(id)
			require.NotNil(t, rec)
			assert.Equal(t, models.ResolutionStatusApproved, rec.Resolution.Status)
			assert.NotNil(t, rec.Resolution.ResolvedAt)
		}

		data, err := wf.ExportResolved()
		require.NoError(t, err)
		assert.Contains(t, string(data), "approved")
	})

	t.Run("FuzzyMatchBelowThresholdIsUnmatched", func(t *testing.T) {
		service := reconciliation.NewService(nil, matching.NewMatcher(), reconciliation.NewBuilder("", ""), nil)

		source := []map[string]any{{"id": "s1", "name": "Jane Smith"}}
		target := []map[string]any{{"id": "t1", "name": "Completely Different"}}

		state, err := service.StartReconciliation(context.Background(), source, target, []models.MatchingRule{fuzzyNameRule()}, 80)
		require.NoError(t, err)

		require.Len(t, state.Records, 2)
		for _, rec := range state.Records {
			assert.Equal(t, models.RecordStatusUnmatched, rec.Status)
		}
		assert.Zero(t, state.Metrics.MatchedRecords)
	})

	t.Run("RuleSetRoundTrip", func(t *testing.T) {
		registry := rules.NewRegistry()
		created := registry.AddRule(models.CreateRuleRequest{
			Name:     "Exact name",
			Type:     models.RuleTypeExact,
			Weight:   1.0,
			Applied:  true,
			Criteria: []models.MatchingCriterion{{Field: "name", Operator: models.OperatorEquals, Weight: 1.0}},
		})

		exported, err := registry.ExportRules()
		require.NoError(t, err)

		var parsed []models.MatchingRule
		require.NoError(t, json.Unmarshal(exported, &parsed))

		other := rules.NewRegistry()
		imported := other.ImportRules(parsed)
		require.Len(t, imported, 1)
		assert.NotEqual(t, created.ID, imported[0].ID)
		assert.Equal(t, created.Name, imported[0].Name)

		result := rules.ValidateRules(other.Rules())
		assert.True(t, result.IsValid)
	})
}
