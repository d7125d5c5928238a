package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func equalsRule(name string, fields ...string) models.MatchingRule {
	criteria := make([]models.MatchingCriterion, 0, len(fields))
	weight := 1.0 / float64(len(fields))
	for _, field := range fields {
		criteria = append(criteria, models.MatchingCriterion{
			Field:    field,
			Operator: models.OperatorEquals,
			Weight:   weight,
		})
	}
	return models.MatchingRule{
		ID:       name,
		Name:     name,
		Type:     models.RuleTypeExact,
		Criteria: criteria,
		Weight:   1,
		Applied:  true,
	}
}

func TestScoreRule(t *testing.T) {
	matcher := NewMatcher()

	t.Run("single equals criterion full confidence", func(t *testing.T) {
		rule := equalsRule("name match", "name")
		confidence := matcher.ScoreRule(rule,
			map[string]any{"name": "John Doe"},
			map[string]any{"name": "John Doe"},
		)
		assert.Equal(t, 100.0, confidence)
	})

	t.Run("half weight mismatch halves the score", func(t *testing.T) {
		rule := equalsRule("name and amount", "name", "amount")
		confidence := matcher.ScoreRule(rule,
			map[string]any{"name": "John Doe", "amount": float64(1000)},
			map[string]any{"name": "John Doe", "amount": float64(999)},
		)
		assert.Equal(t, 50.0, confidence)
	})

	t.Run("zero total weight scores zero", func(t *testing.T) {
		rule := models.MatchingRule{
			Name:    "weightless",
			Applied: true,
			Criteria: []models.MatchingCriterion{
				{Field: "name", Operator: models.OperatorEquals, Weight: 0},
			},
		}
		confidence := matcher.ScoreRule(rule,
			map[string]any{"name": "same"},
			map[string]any{"name": "same"},
		)
		assert.Equal(t, 0.0, confidence)
	})

	t.Run("confidence stays within bounds", func(t *testing.T) {
		rule := equalsRule("bounds", "a", "b", "c")
		confidence := matcher.ScoreRule(rule,
			map[string]any{"a": "1", "b": "2", "c": "3"},
			map[string]any{"a": "1", "b": "x", "c": "3"},
		)
		assert.GreaterOrEqual(t, confidence, 0.0)
		assert.LessOrEqual(t, confidence, 100.0)
	})
}

func TestFindMatches(t *testing.T) {
	matcher := NewMatcher()

	t.Run("identical name produces full confidence match", func(t *testing.T) {
		candidates := matcher.FindMatches(
			[]map[string]any{{"name": "John Doe"}},
			[]map[string]any{{"name": "John Doe"}},
			[]models.MatchingRule{equalsRule("name match", "name")},
			DefaultThreshold,
		)

		require.Len(t, candidates, 1)
		assert.Equal(t, 0, candidates[0].SourceIndex)
		assert.Equal(t, 0, candidates[0].TargetIndex)
		assert.Equal(t, 100.0, candidates[0].Confidence)
		assert.Equal(t, []string{"name match"}, candidates[0].AppliedRules)
	})

	t.Run("below threshold pair is not a candidate", func(t *testing.T) {
		candidates := matcher.FindMatches(
			[]map[string]any{{"name": "John Doe", "amount": float64(1000)}},
			[]map[string]any{{"name": "John Doe", "amount": float64(999)}},
			[]models.MatchingRule{equalsRule("name and amount", "name", "amount")},
			DefaultThreshold,
		)
		assert.Empty(t, candidates)
	})

	t.Run("fuzzy rule matches near-identical names", func(t *testing.T) {
		rule := models.MatchingRule{
			Name:    "fuzzy name",
			Applied: true,
			Criteria: []models.MatchingCriterion{
				{Field: "name", Operator: models.OperatorFuzzy, Weight: 1},
			},
		}
		candidates := matcher.FindMatches(
			[]map[string]any{{"name": "Jane Smith"}},
			[]map[string]any{{"name": "Jane Smyth"}},
			[]models.MatchingRule{rule},
			DefaultThreshold,
		)

		require.Len(t, candidates, 1)
		assert.InDelta(t, 90.0, candidates[0].Confidence, 0.0001)
	})

	t.Run("unapplied rules are ignored", func(t *testing.T) {
		rule := equalsRule("disabled", "name")
		rule.Applied = false
		candidates := matcher.FindMatches(
			[]map[string]any{{"name": "John Doe"}},
			[]map[string]any{{"name": "John Doe"}},
			[]models.MatchingRule{rule},
			DefaultThreshold,
		)
		assert.Empty(t, candidates)
	})

	t.Run("deterministic regardless of rule order", func(t *testing.T) {
		source := []map[string]any{{"name": "John Doe", "ref": "A1"}}
		target := []map[string]any{{"name": "John Doe", "ref": "A1"}}
		ruleA := equalsRule("rule a", "name")
		ruleB := equalsRule("rule b", "ref")

		forward := matcher.FindMatches(source, target, []models.MatchingRule{ruleA, ruleB}, DefaultThreshold)
		reversed := matcher.FindMatches(source, target, []models.MatchingRule{ruleB, ruleA}, DefaultThreshold)

		assert.Equal(t, forward, reversed)
	})

	t.Run("repeat runs yield identical results", func(t *testing.T) {
		source := []map[string]any{
			{"name": "John Doe"},
			{"name": "Jane Smith"},
			{"name": "Bob Jones"},
		}
		target := []map[string]any{
			{"name": "Jane Smyth"},
			{"name": "John Doe"},
		}
		rules := []models.MatchingRule{
			equalsRule("exact name", "name"),
			{
				Name:    "fuzzy name",
				Applied: true,
				Criteria: []models.MatchingCriterion{
					{Field: "name", Operator: models.OperatorFuzzy, Weight: 1},
				},
			},
		}

		first := matcher.FindMatches(source, target, rules, DefaultThreshold)
		second := matcher.FindMatches(source, target, rules, DefaultThreshold)
		assert.Equal(t, first, second)
	})

	t.Run("parallel matcher matches sequential output", func(t *testing.T) {
		source := make([]map[string]any, 0, 25)
		target := make([]map[string]any, 0, 25)
		names := []string{"John Doe", "Jane Smith", "Bob Jones", "Alice Brown", "Carol White"}
		for i := 0; i < 25; i++ {
			source = append(source, map[string]any{"name": names[i%len(names)], "row": i})
			target = append(target, map[string]any{"name": names[(i+1)%len(names)], "row": i})
		}
		rules := []models.MatchingRule{equalsRule("exact name", "name")}

		sequential := NewMatcher().FindMatches(source, target, rules, DefaultThreshold)
		parallel := NewMatcher(WithWorkers(4)).FindMatches(source, target, rules, DefaultThreshold)
		assert.Equal(t, sequential, parallel)
	})
}

func TestResolveConflicts(t *testing.T) {
	matcher := NewMatcher()

	t.Run("keeps highest confidence per source", func(t *testing.T) {
		candidates := []models.CandidateMatch{
			{SourceIndex: 0, TargetIndex: 0, Confidence: 85},
			{SourceIndex: 0, TargetIndex: 1, Confidence: 92},
		}

		resolved := matcher.ResolveConflicts(candidates)
		require.Len(t, resolved, 1)
		assert.Equal(t, 1, resolved[0].TargetIndex)
		assert.Equal(t, 92.0, resolved[0].Confidence)
	})

	t.Run("ties break to first encountered", func(t *testing.T) {
		candidates := []models.CandidateMatch{
			{SourceIndex: 0, TargetIndex: 3, Confidence: 88},
			{SourceIndex: 0, TargetIndex: 1, Confidence: 88},
		}

		resolved := matcher.ResolveConflicts(candidates)
		require.Len(t, resolved, 1)
		assert.Equal(t, 3, resolved[0].TargetIndex)
	})

	t.Run("single candidates pass through", func(t *testing.T) {
		candidates := []models.CandidateMatch{
			{SourceIndex: 0, TargetIndex: 0, Confidence: 95},
			{SourceIndex: 1, TargetIndex: 1, Confidence: 81},
		}

		resolved := matcher.ResolveConflicts(candidates)
		assert.Equal(t, candidates, resolved)
	})

	t.Run("targets are not deduplicated", func(t *testing.T) {
		candidates := []models.CandidateMatch{
			{SourceIndex: 0, TargetIndex: 0, Confidence: 90},
			{SourceIndex: 1, TargetIndex: 0, Confidence: 85},
		}

		resolved := matcher.ResolveConflicts(candidates)
		assert.Len(t, resolved, 2)
	})

	t.Run("re-running resolution is stable", func(t *testing.T) {
		candidates := []models.CandidateMatch{
			{SourceIndex: 2, TargetIndex: 0, Confidence: 90},
			{SourceIndex: 0, TargetIndex: 1, Confidence: 85},
			{SourceIndex: 2, TargetIndex: 2, Confidence: 84},
			{SourceIndex: 1, TargetIndex: 2, Confidence: 99},
		}

		first := matcher.ResolveConflicts(candidates)
		second := matcher.ResolveConflicts(candidates)
		assert.Equal(t, first, second)
	})
}
