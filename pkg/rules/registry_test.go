package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func createRequest(name string) models.CreateRuleRequest {
	return models.CreateRuleRequest{
		Name: name,
		Type: models.RuleTypeExact,
		Criteria: []models.MatchingCriterion{
			{Field: "name", Operator: models.OperatorEquals, Weight: 1},
		},
		Weight:  1,
		Applied: true,
	}
}

func TestAddAndGetRule(t *testing.T) {
	registry := NewRegistry()

	rule := registry.AddRule(createRequest("name match"))

	assert.NotEmpty(t, rule.ID)
	assert.False(t, rule.CreatedAt.IsZero())

	found := registry.GetByID(rule.ID)
	require.NotNil(t, found)
	assert.Equal(t, "name match", found.Name)

	assert.Nil(t, registry.GetByID("missing"))
}

func TestUpdateRule(t *testing.T) {
	registry := NewRegistry()
	rule := registry.AddRule(createRequest("original"))

	newName := "renamed"
	newWeight := 0.5
	updated := registry.UpdateRule(rule.ID, models.UpdateRuleRequest{
		Name:   &newName,
		Weight: &newWeight,
	})

	require.NotNil(t, updated)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 0.5, updated.Weight)
	assert.Equal(t, rule.Type, updated.Type)

	assert.Nil(t, registry.UpdateRule("missing", models.UpdateRuleRequest{Name: &newName}))
}

func TestDeleteRule(t *testing.T) {
	registry := NewRegistry()
	rule := registry.AddRule(createRequest("doomed"))

	registry.DeleteRule(rule.ID)
	assert.Nil(t, registry.GetByID(rule.ID))
	assert.Empty(t, registry.Rules())

	// Unknown id is a no-op
	registry.DeleteRule("missing")
}

func TestToggleRule(t *testing.T) {
	registry := NewRegistry()
	rule := registry.AddRule(createRequest("toggled"))

	registry.ToggleRule(rule.ID)
	assert.False(t, registry.GetByID(rule.ID).Applied)
	assert.Empty(t, registry.AppliedRules())

	registry.ToggleRule(rule.ID)
	assert.True(t, registry.GetByID(rule.ID).Applied)
}

func TestDuplicateRule(t *testing.T) {
	registry := NewRegistry()
	rule := registry.AddRule(createRequest("original"))

	clone := registry.DuplicateRule(rule.ID)

	require.NotNil(t, clone)
	assert.NotEqual(t, rule.ID, clone.ID)
	assert.Equal(t, "original (Copy)", clone.Name)
	assert.Equal(t, rule.Criteria, clone.Criteria)
	assert.Len(t, registry.Rules(), 2)

	// Clone's criteria are independent of the original's
	clone.Criteria[0].Field = "other"
	assert.Equal(t, "name", registry.GetByID(rule.ID).Criteria[0].Field)

	assert.Nil(t, registry.DuplicateRule("missing"))
}

func TestReorderRules(t *testing.T) {
	registry := NewRegistry()
	a := registry.AddRule(createRequest("a"))
	b := registry.AddRule(createRequest("b"))
	c := registry.AddRule(createRequest("c"))

	registry.ReorderRules([]string{c.ID, a.ID})

	rules := registry.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "c", rules[0].Name)
	assert.Equal(t, "a", rules[1].Name)
	assert.Equal(t, "b", rules[2].Name)

	// Unknown ids are ignored
	registry.ReorderRules([]string{"missing", b.ID})
	assert.Equal(t, "b", registry.Rules()[0].Name)
}

func TestImportAndExportRules(t *testing.T) {
	registry := NewRegistry()
	existing := registry.AddRule(createRequest("existing"))

	incoming := []models.MatchingRule{
		{ID: existing.ID, Name: "imported", Criteria: existing.Criteria, Weight: 1},
	}
	imported := registry.ImportRules(incoming)

	require.Len(t, imported, 1)
	assert.NotEqual(t, existing.ID, imported[0].ID)
	assert.Len(t, registry.Rules(), 2)

	exported, err := registry.ExportRules()
	require.NoError(t, err)

	var decoded []models.MatchingRule
	require.NoError(t, json.Unmarshal(exported, &decoded))
	assert.Len(t, decoded, 2)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name       string
		rule       models.MatchingRule
		wantValid  bool
		wantErrors int
	}{
		{
			name: "valid rule",
			rule: models.MatchingRule{
				ID:   "r1",
				Name: "valid",
				Criteria: []models.MatchingCriterion{
					{Field: "name", Operator: models.OperatorEquals, Weight: 1},
				},
				Weight: 1,
			},
			wantValid: true,
		},
		{
			name: "missing name",
			rule: models.MatchingRule{
				ID: "r2",
				Criteria: []models.MatchingCriterion{
					{Field: "name", Operator: models.OperatorEquals, Weight: 1},
				},
				Weight: 1,
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name:       "no criteria",
			rule:       models.MatchingRule{ID: "r3", Name: "empty", Weight: 1},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "weight out of range",
			rule: models.MatchingRule{
				ID:   "r4",
				Name: "heavy",
				Criteria: []models.MatchingCriterion{
					{Field: "name", Operator: models.OperatorEquals, Weight: 1},
				},
				Weight: 1.5,
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "criterion missing field and operator",
			rule: models.MatchingRule{
				ID:   "r5",
				Name: "bad criterion",
				Criteria: []models.MatchingCriterion{
					{Weight: 1},
				},
				Weight: 1,
			},
			wantValid:  false,
			wantErrors: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateRules([]models.MatchingRule{tt.rule})
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Len(t, result.Errors, tt.wantErrors)
		})
	}
}

func TestValidateRulesDoesNotMutate(t *testing.T) {
	registry := NewRegistry()
	registry.AddRule(createRequest("untouched"))

	before := registry.Rules()
	ValidateRules(before)
	assert.Equal(t, before, registry.Rules())
}
