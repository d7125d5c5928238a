package matching

import (
	"regexp"
	"strings"

	"github.com/Ramsey-B/fern/pkg/extractor"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Comparator evaluates a single matching criterion against a field pair.
// Malformed input (missing fields, bad patterns) degrades to a zero score
// so a single bad criterion never aborts a run.
type Comparator struct {
	scorer    *Scorer
	extractor *extractor.Extractor
}

// NewComparator creates a new Comparator
func NewComparator() *Comparator {
	return &Comparator{
		scorer:    NewScorer(),
		extractor: extractor.New(),
	}
}

// CompareFields evaluates the criterion against the named field in both
// records, returning a score in [0,1].
func (c *Comparator) CompareFields(criterion models.MatchingCriterion, sourceData, targetData map[string]any) float64 {
	sourceValue, err := c.extractor.ExtractString(sourceData, criterion.Field)
	if err != nil || sourceValue == nil {
		return 0.0
	}
	targetValue, err := c.extractor.ExtractString(targetData, criterion.Field)
	if err != nil || targetValue == nil {
		return 0.0
	}

	return c.Compare(criterion, *sourceValue, *targetValue)
}

// Compare evaluates the criterion against two already-extracted values.
func (c *Comparator) Compare(criterion models.MatchingCriterion, sourceValue, targetValue string) float64 {
	if criterion.Normalizer != nil {
		sourceValue = normalizers.Apply(sourceValue, *criterion.Normalizer)
		targetValue = normalizers.Apply(targetValue, *criterion.Normalizer)
	}

	var score float64
	switch criterion.Operator {
	case models.OperatorEquals:
		if sourceValue == targetValue {
			score = 1.0
		}
	case models.OperatorContains:
		if strings.Contains(strings.ToLower(sourceValue), strings.ToLower(targetValue)) {
			score = 1.0
		}
	case models.OperatorStartsWith:
		if strings.HasPrefix(strings.ToLower(sourceValue), strings.ToLower(targetValue)) {
			score = 1.0
		}
	case models.OperatorEndsWith:
		if strings.HasSuffix(strings.ToLower(sourceValue), strings.ToLower(targetValue)) {
			score = 1.0
		}
	case models.OperatorRegex:
		score = c.regexScore(criterion, sourceValue)
	case models.OperatorFuzzy:
		score = c.scorer.Levenshtein(sourceValue, targetValue)
	default:
		return 0.0
	}

	// Tolerance is a hard cutoff, not a scaling factor
	if criterion.Tolerance > 0 && score < criterion.Tolerance {
		return 0.0
	}

	return score
}

// regexScore compiles the criterion value as a case-insensitive pattern.
// A compilation failure scores 0 rather than surfacing an error.
func (c *Comparator) regexScore(criterion models.MatchingCriterion, value string) float64 {
	pattern := extractor.Stringify(criterion.Value)
	if pattern == "" {
		return 0.0
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return 0.0
	}

	if re.MatchString(value) {
		return 1.0
	}
	return 0.0
}
