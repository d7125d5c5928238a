package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func TestCompare(t *testing.T) {
	comparator := NewComparator()

	tests := []struct {
		name      string
		criterion models.MatchingCriterion
		source    string
		target    string
		expected  float64
	}{
		{
			name:      "equals match",
			criterion: models.MatchingCriterion{Field: "name", Operator: models.OperatorEquals, Weight: 1},
			source:    "John Doe",
			target:    "John Doe",
			expected:  1.0,
		},
		{
			name:      "equals is case sensitive",
			criterion: models.MatchingCriterion{Field: "name", Operator: models.OperatorEquals, Weight: 1},
			source:    "John Doe",
			target:    "john doe",
			expected:  0.0,
		},
		{
			name:      "contains is case insensitive",
			criterion: models.MatchingCriterion{Field: "desc", Operator: models.OperatorContains, Weight: 1},
			source:    "Payment for INVOICE-123",
			target:    "invoice-123",
			expected:  1.0,
		},
		{
			name:      "starts with",
			criterion: models.MatchingCriterion{Field: "ref", Operator: models.OperatorStartsWith, Weight: 1},
			source:    "TXN-00123",
			target:    "txn-",
			expected:  1.0,
		},
		{
			name:      "ends with",
			criterion: models.MatchingCriterion{Field: "ref", Operator: models.OperatorEndsWith, Weight: 1},
			source:    "TXN-00123",
			target:    "00123",
			expected:  1.0,
		},
		{
			name:      "fuzzy close strings",
			criterion: models.MatchingCriterion{Field: "name", Operator: models.OperatorFuzzy, Weight: 1},
			source:    "Jane Smith",
			target:    "Jane Smyth",
			expected:  0.9,
		},
		{
			name:      "regex match",
			criterion: models.MatchingCriterion{Field: "ref", Operator: models.OperatorRegex, Value: `^txn-\d+$`, Weight: 1},
			source:    "TXN-00123",
			target:    "",
			expected:  1.0,
		},
		{
			name:      "invalid regex degrades to zero",
			criterion: models.MatchingCriterion{Field: "ref", Operator: models.OperatorRegex, Value: "([", Weight: 1},
			source:    "anything",
			target:    "",
			expected:  0.0,
		},
		{
			name:      "unknown operator scores zero",
			criterion: models.MatchingCriterion{Field: "ref", Operator: "soundex", Weight: 1},
			source:    "a",
			target:    "a",
			expected:  0.0,
		},
		{
			name:      "tolerance cuts low fuzzy score to zero",
			criterion: models.MatchingCriterion{Field: "name", Operator: models.OperatorFuzzy, Tolerance: 0.95, Weight: 1},
			source:    "Jane Smith",
			target:    "Jane Smyth",
			expected:  0.0,
		},
		{
			name:      "tolerance passes high score through unscaled",
			criterion: models.MatchingCriterion{Field: "name", Operator: models.OperatorFuzzy, Tolerance: 0.8, Weight: 1},
			source:    "Jane Smith",
			target:    "Jane Smyth",
			expected:  0.9,
		},
		{
			name:      "normalizer applied to both sides",
			criterion: models.MatchingCriterion{Field: "ref", Operator: models.OperatorEquals, Weight: 1, Normalizer: strPtr("nreference")},
			source:    "txn-00123/a",
			target:    "TXN 00123 A",
			expected:  1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := comparator.Compare(tt.criterion, tt.source, tt.target)
			assert.InDelta(t, tt.expected, score, 0.0001)
		})
	}
}

func TestCompareFields(t *testing.T) {
	comparator := NewComparator()

	criterion := models.MatchingCriterion{Field: "name", Operator: models.OperatorEquals, Weight: 1}

	t.Run("matching values", func(t *testing.T) {
		score := comparator.CompareFields(criterion,
			map[string]any{"name": "John Doe"},
			map[string]any{"name": "John Doe"},
		)
		assert.Equal(t, 1.0, score)
	})

	t.Run("missing source field scores zero", func(t *testing.T) {
		score := comparator.CompareFields(criterion,
			map[string]any{"other": "John Doe"},
			map[string]any{"name": "John Doe"},
		)
		assert.Equal(t, 0.0, score)
	})

	t.Run("missing target field scores zero", func(t *testing.T) {
		score := comparator.CompareFields(criterion,
			map[string]any{"name": "John Doe"},
			map[string]any{},
		)
		assert.Equal(t, 0.0, score)
	})

	t.Run("numeric values compare by string form", func(t *testing.T) {
		amount := models.MatchingCriterion{Field: "amount", Operator: models.OperatorEquals, Weight: 1}
		score := comparator.CompareFields(amount,
			map[string]any{"amount": float64(1000)},
			map[string]any{"amount": float64(1000)},
		)
		assert.Equal(t, 1.0, score)
	})

	t.Run("nested dot path", func(t *testing.T) {
		nested := models.MatchingCriterion{Field: "details.reference", Operator: models.OperatorEquals, Weight: 1}
		score := comparator.CompareFields(nested,
			map[string]any{"details": map[string]any{"reference": "abc"}},
			map[string]any{"details": map[string]any{"reference": "abc"}},
		)
		assert.Equal(t, 1.0, score)
	})
}
