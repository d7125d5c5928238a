// Package rules manages matching-rule definitions independent of any run
package rules

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Registry owns an ordered collection of matching rules. All state lives on
// the instance; concurrent access is safe.
type Registry struct {
	mu    sync.RWMutex
	rules []models.MatchingRule
}

// NewRegistry creates an empty rule registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Rules returns a copy of the rules in their current order
func (r *Registry) Rules() []models.MatchingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]models.MatchingRule, len(r.rules))
	copy(rules, r.rules)
	return rules
}

// AppliedRules returns a copy of the rules currently enabled for matching
func (r *Registry) AppliedRules() []models.MatchingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	applied := make([]models.MatchingRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Applied {
			applied = append(applied, rule)
		}
	}
	return applied
}

// GetByID returns the rule with the given id, or nil
func (r *Registry) GetByID(id string) *models.MatchingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.rules {
		if rule.ID == id {
			copied := rule
			return &copied
		}
	}
	return nil
}

// AddRule appends a new rule, assigning its identity and timestamps
func (r *Registry) AddRule(req models.CreateRuleRequest) models.MatchingRule {
	now := time.Now().UTC()
	rule := models.MatchingRule{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Type:      req.Type,
		Criteria:  req.Criteria,
		Weight:    req.Weight,
		Applied:   req.Applied,
		Priority:  req.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.rules = append(r.rules, rule)
	r.mu.Unlock()

	return rule
}

// UpdateRule applies a partial update to the rule with the given id.
// Returns the updated rule, or nil when the id is unknown.
func (r *Registry) UpdateRule(id string, req models.UpdateRuleRequest) *models.MatchingRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].ID != id {
			continue
		}

		if req.Name != nil {
			r.rules[i].Name = *req.Name
		}
		if req.Type != nil {
			r.rules[i].Type = *req.Type
		}
		if req.Criteria != nil {
			r.rules[i].Criteria = req.Criteria
		}
		if req.Weight != nil {
			r.rules[i].Weight = *req.Weight
		}
		if req.Applied != nil {
			r.rules[i].Applied = *req.Applied
		}
		if req.Priority != nil {
			r.rules[i].Priority = *req.Priority
		}
		r.rules[i].UpdatedAt = time.Now().UTC()

		copied := r.rules[i]
		return &copied
	}
	return nil
}

// DeleteRule removes the rule with the given id. Unknown ids are a no-op.
func (r *Registry) DeleteRule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return
		}
	}
}

// ToggleRule flips the applied flag on the rule with the given id
func (r *Registry) ToggleRule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Applied = !r.rules[i].Applied
			r.rules[i].UpdatedAt = time.Now().UTC()
			return
		}
	}
}

// DuplicateRule clones a rule under a new identity with a suffixed name.
// Returns the clone, or nil when the id is unknown.
func (r *Registry) DuplicateRule(id string) *models.MatchingRule {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rule := range r.rules {
		if rule.ID != id {
			continue
		}

		now := time.Now().UTC()
		clone := rule
		clone.ID = uuid.New().String()
		clone.Name = rule.Name + " (Copy)"
		clone.Criteria = make([]models.MatchingCriterion, len(rule.Criteria))
		copy(clone.Criteria, rule.Criteria)
		clone.CreatedAt = now
		clone.UpdatedAt = now

		r.rules = append(r.rules, clone)
		return &clone
	}
	return nil
}

// ReorderRules reorders rules to follow the given id sequence. Ids not in
// the sequence keep their relative order after the reordered ones; unknown
// ids are ignored.
func (r *Registry) ReorderRules(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[string]models.MatchingRule, len(r.rules))
	for _, rule := range r.rules {
		byID[rule.ID] = rule
	}

	reordered := make([]models.MatchingRule, 0, len(r.rules))
	placed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if rule, ok := byID[id]; ok && !placed[id] {
			reordered = append(reordered, rule)
			placed[id] = true
		}
	}
	for _, rule := range r.rules {
		if !placed[rule.ID] {
			reordered = append(reordered, rule)
		}
	}

	r.rules = reordered
}

// ImportRules appends external rules, re-identifying each to avoid
// collisions with existing rules.
func (r *Registry) ImportRules(rules []models.MatchingRule) []models.MatchingRule {
	now := time.Now().UTC()
	imported := make([]models.MatchingRule, 0, len(rules))
	for _, rule := range rules {
		rule.ID = uuid.New().String()
		rule.CreatedAt = now
		rule.UpdatedAt = now
		imported = append(imported, rule)
	}

	r.mu.Lock()
	r.rules = append(r.rules, imported...)
	r.mu.Unlock()

	return imported
}

// ExportRules serializes the current rule set as JSON
func (r *Registry) ExportRules() ([]byte, error) {
	return json.MarshalIndent(r.Rules(), "", "  ")
}

// ValidateRules checks a rule set without mutating any state. Advisory only.
func ValidateRules(rules []models.MatchingRule) models.RuleValidationResult {
	result := models.RuleValidationResult{IsValid: true, Errors: []string{}}

	for _, rule := range rules {
		if rule.Name == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %q has no name", rule.ID))
		}
		if len(rule.Criteria) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %q has no criteria", rule.Name))
		}
		if rule.Weight < 0 || rule.Weight > 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("rule %q weight must be between 0 and 1", rule.Name))
		}
		for i, criterion := range rule.Criteria {
			if criterion.Field == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("rule %q criterion %d has no field", rule.Name, i))
			}
			if criterion.Operator == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("rule %q criterion %d has no operator", rule.Name, i))
			}
			if criterion.Weight <= 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("rule %q criterion %d weight must be positive", rule.Name, i))
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
