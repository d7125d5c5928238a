// Package filter provides pure, criteria-based filtering over
// reconciliation records
package filter

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Supported operators
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
	OpBetween     = "between"
	OpIn          = "in"
	OpNotIn       = "notIn"
)

// Config is a single filter over a record field. Field paths address
// top-level record fields ("status", "confidence"), first-source data
// ("source.amount"), or metadata ("metadata.priority").
type Config struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Value2   any    `json:"value2,omitempty"` // upper bound for between
	Active   bool   `json:"active"`
}

// Group combines filters with explicit logic
type Group struct {
	Filters []Config `json:"filters"`
	Logic   string   `json:"logic"` // "and" (default) or "or"
	Active  bool     `json:"active"`
}

// Apply returns the records matching every active filter. Inactive filters
// are ignored; no filters means no filtering.
func Apply(records []models.ReconciliationRecord, configs []Config) []models.ReconciliationRecord {
	active := make([]Config, 0, len(configs))
	for _, config := range configs {
		if config.Active {
			active = append(active, config)
		}
	}
	if len(active) == 0 {
		return records
	}

	result := make([]models.ReconciliationRecord, 0, len(records))
	for _, record := range records {
		if matchesAll(record, active) {
			result = append(result, record)
		}
	}
	return result
}

// ApplyGroups returns records matching every active group, where a group
// matches by its own and/or logic over its active filters.
func ApplyGroups(records []models.ReconciliationRecord, groups []Group) []models.ReconciliationRecord {
	result := records
	for _, group := range groups {
		if !group.Active {
			continue
		}

		active := make([]Config, 0, len(group.Filters))
		for _, config := range group.Filters {
			if config.Active {
				active = append(active, config)
			}
		}
		if len(active) == 0 {
			continue
		}

		filtered := make([]models.ReconciliationRecord, 0, len(result))
		for _, record := range result {
			matched := matchesAll(record, active)
			if group.Logic == "or" {
				matched = matchesAny(record, active)
			}
			if matched {
				filtered = append(filtered, record)
			}
		}
		result = filtered
	}
	return result
}

func matchesAll(record models.ReconciliationRecord, configs []Config) bool {
	for _, config := range configs {
		if !Matches(record, config) {
			return false
		}
	}
	return true
}

func matchesAny(record models.ReconciliationRecord, configs []Config) bool {
	for _, config := range configs {
		if Matches(record, config) {
			return true
		}
	}
	return false
}

// Matches evaluates one filter against one record
func Matches(record models.ReconciliationRecord, config Config) bool {
	value, ok := fieldValue(record, config.Field)
	if !ok {
		return false
	}

	switch config.Operator {
	case OpEquals:
		return strings.EqualFold(extractor.Stringify(value), extractor.Stringify(config.Value))
	case OpContains:
		return strings.Contains(
			strings.ToLower(extractor.Stringify(value)),
			strings.ToLower(extractor.Stringify(config.Value)),
		)
	case OpStartsWith:
		return strings.HasPrefix(
			strings.ToLower(extractor.Stringify(value)),
			strings.ToLower(extractor.Stringify(config.Value)),
		)
	case OpEndsWith:
		return strings.HasSuffix(
			strings.ToLower(extractor.Stringify(value)),
			strings.ToLower(extractor.Stringify(config.Value)),
		)
	case OpGreaterThan:
		return compareNumeric(value, config.Value, func(a, b float64) bool { return a > b })
	case OpLessThan:
		return compareNumeric(value, config.Value, func(a, b float64) bool { return a < b })
	case OpBetween:
		lower := compareNumeric(value, config.Value, func(a, b float64) bool { return a >= b })
		upper := compareNumeric(value, config.Value2, func(a, b float64) bool { return a <= b })
		return lower && upper
	case OpIn:
		return inList(value, config.Value)
	case OpNotIn:
		return !inList(value, config.Value)
	default:
		return false
	}
}

// fieldValue resolves a filter path against a record
func fieldValue(record models.ReconciliationRecord, field string) (any, bool) {
	if path, ok := strings.CutPrefix(field, "source."); ok {
		if len(record.Sources) == 0 {
			return nil, false
		}
		value, err := extractor.New().Extract(record.Sources[0].Data, path)
		if err != nil || value == nil {
			return nil, false
		}
		return value, true
	}

	if path, ok := strings.CutPrefix(field, "metadata."); ok {
		switch path {
		case "priority":
			return record.Metadata.Priority, true
		case "version":
			return record.Metadata.Version, true
		case "tags":
			tags := make([]any, len(record.Metadata.Tags))
			for i, tag := range record.Metadata.Tags {
				tags[i] = tag
			}
			return tags, true
		case "createdAt":
			return record.Metadata.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), true
		case "updatedAt":
			return record.Metadata.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"), true
		default:
			return nil, false
		}
	}

	switch field {
	case "id":
		return record.ID, true
	case "reconciliationId":
		return record.ReconciliationID, true
	case "batchId":
		return record.BatchID, true
	case "status":
		return string(record.Status), true
	case "confidence":
		return record.Confidence, true
	case "matchScore":
		return record.MatchScore, true
	case "riskLevel":
		return string(record.RiskLevel), true
	case "resolutionStatus":
		if record.Resolution == nil {
			return nil, false
		}
		return string(record.Resolution.Status), true
	default:
		return nil, false
	}
}

func compareNumeric(actual, expected any, cmp func(a, b float64) bool) bool {
	a, ok := extractor.Numeric(actual)
	if !ok {
		return false
	}
	b, ok := extractor.Numeric(expected)
	if !ok {
		return false
	}
	return cmp(a, b)
}

func inList(value, options any) bool {
	list, ok := toSlice(options)
	if !ok {
		return false
	}
	needle := strings.ToLower(extractor.Stringify(value))
	for _, option := range list {
		if strings.ToLower(extractor.Stringify(option)) == needle {
			return true
		}
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	case []float64:
		result := make([]any, len(arr))
		for i, n := range arr {
			result[i] = n
		}
		return result, true
	case []int:
		result := make([]any, len(arr))
		for i, n := range arr {
			result[i] = n
		}
		return result, true
	default:
		return nil, false
	}
}
