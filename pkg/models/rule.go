package models

import (
	"time"
)

// CriterionOperator defines how a criterion compares a field pair
type CriterionOperator string

const (
	OperatorEquals     CriterionOperator = "equals"      // Strict equality after string coercion
	OperatorContains   CriterionOperator = "contains"    // Case-insensitive substring
	OperatorStartsWith CriterionOperator = "starts_with" // Case-insensitive prefix
	OperatorEndsWith   CriterionOperator = "ends_with"   // Case-insensitive suffix
	OperatorRegex      CriterionOperator = "regex"       // Case-insensitive pattern match
	OperatorFuzzy      CriterionOperator = "fuzzy"       // Levenshtein similarity
)

// RuleType classifies a matching rule
type RuleType string

const (
	RuleTypeExact       RuleType = "exact"
	RuleTypeFuzzy       RuleType = "fuzzy"
	RuleTypeAlgorithmic RuleType = "algorithmic"
	RuleTypeManual      RuleType = "manual"
)

// MatchingCriterion defines a single field comparison within a rule.
// Immutable once attached to a rule version.
type MatchingCriterion struct {
	Field      string            `json:"field"`                // Field name in record data (dot notation)
	Operator   CriterionOperator `json:"operator"`             // Comparison operator
	Value      any               `json:"value,omitempty"`      // Pattern for regex operators
	Tolerance  float64           `json:"tolerance,omitempty"`  // Hard cutoff: scores below this become 0
	Weight     float64           `json:"weight"`               // Weight in rule confidence (> 0)
	Normalizer *string           `json:"normalizer,omitempty"` // Normalizer applied to both values before comparison
}

// MatchingRule defines how to identify matching records
type MatchingRule struct {
	ID         string              `json:"id" db:"id"`
	TenantID   string              `json:"tenant_id" db:"tenant_id"`
	Name       string              `json:"name" db:"name"`
	Type       RuleType            `json:"type" db:"rule_type"`
	Criteria   []MatchingCriterion `json:"criteria" db:"-"`
	Weight     float64             `json:"weight" db:"weight"` // Overall rule weight (0.0-1.0)
	Applied    bool                `json:"applied" db:"applied"`
	Priority   int                 `json:"priority" db:"priority"`
	Confidence float64             `json:"confidence" db:"confidence"` // Last computed score
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time          `json:"deleted_at,omitempty" db:"deleted_at"`
}

// CreateRuleRequest is the request to create a matching rule
type CreateRuleRequest struct {
	Name     string              `json:"name" validate:"required"`
	Type     RuleType            `json:"type" validate:"required"`
	Criteria []MatchingCriterion `json:"criteria" validate:"required,min=1"`
	Weight   float64             `json:"weight" validate:"gte=0,lte=1"`
	Applied  bool                `json:"applied"`
	Priority int                 `json:"priority"`
}

// UpdateRuleRequest is the request to update a matching rule
type UpdateRuleRequest struct {
	Name     *string             `json:"name,omitempty"`
	Type     *RuleType           `json:"type,omitempty"`
	Criteria []MatchingCriterion `json:"criteria,omitempty"`
	Weight   *float64            `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Applied  *bool               `json:"applied,omitempty"`
	Priority *int                `json:"priority,omitempty"`
}

// RuleValidationResult reports rule validation outcomes without mutating anything
type RuleValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// RuleListResponse is a paginated list of matching rules
type RuleListResponse struct {
	Items      []MatchingRule `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

// CandidateMatch is a source/target pair whose confidence met the threshold,
// prior to conflict resolution.
type CandidateMatch struct {
	SourceIndex  int      `json:"source_index"`
	TargetIndex  int      `json:"target_index"`
	Confidence   float64  `json:"confidence"` // 0-100
	AppliedRules []string `json:"applied_rules"`
}
