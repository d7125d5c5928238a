// Package matching implements the rule-based record matching engine
package matching

import (
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// DefaultThreshold is the confidence a pair must reach to become a candidate
const DefaultThreshold = 80.0

// Matcher generates candidate matches from two record collections. It holds
// no mutable state between runs; results depend only on the explicit inputs.
type Matcher struct {
	comparator *Comparator
	workers    int
}

// Option configures a Matcher
type Option func(*Matcher)

// WithWorkers sets the number of goroutines scoring source rows. Values
// below 2 keep the matcher fully sequential.
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		m.workers = n
	}
}

// NewMatcher creates a new Matcher
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		comparator: NewComparator(),
		workers:    1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ScoreRule computes the weighted confidence (0-100) of a rule for one
// source/target pair: sum(score*weight) / sum(weight) * 100. A rule whose
// criteria carry no weight scores 0.
func (m *Matcher) ScoreRule(rule models.MatchingRule, sourceData, targetData map[string]any) float64 {
	var weightedScore float64
	var totalWeight float64

	for _, criterion := range rule.Criteria {
		score := m.comparator.CompareFields(criterion, sourceData, targetData)
		weightedScore += score * criterion.Weight
		totalWeight += criterion.Weight
	}

	if totalWeight == 0 {
		return 0.0
	}

	return (weightedScore / totalWeight) * 100
}

// FindMatches evaluates every applied rule against the full source x target
// cross product and returns the pairs whose best rule confidence meets the
// threshold. Output order and contents are deterministic regardless of rule
// ordering: the best confidence is a max over rules, and contributing rule
// names are sorted.
func (m *Matcher) FindMatches(sourceRecords, targetRecords []map[string]any, rules []models.MatchingRule, threshold float64) []models.CandidateMatch {
	applied := make([]models.MatchingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Applied {
			applied = append(applied, rule)
		}
	}

	if len(applied) == 0 || len(sourceRecords) == 0 || len(targetRecords) == 0 {
		return []models.CandidateMatch{}
	}

	if m.workers > 1 {
		return m.findMatchesParallel(sourceRecords, targetRecords, applied, threshold)
	}

	var candidates []models.CandidateMatch
	for sourceIndex, sourceData := range sourceRecords {
		candidates = append(candidates, m.matchRow(sourceIndex, sourceData, targetRecords, applied, threshold)...)
	}
	if candidates == nil {
		return []models.CandidateMatch{}
	}
	return candidates
}

// matchRow scores one source record against every target record
func (m *Matcher) matchRow(sourceIndex int, sourceData map[string]any, targetRecords []map[string]any, rules []models.MatchingRule, threshold float64) []models.CandidateMatch {
	var candidates []models.CandidateMatch

	for targetIndex, targetData := range targetRecords {
		var bestConfidence float64
		var appliedRules []string

		for _, rule := range rules {
			confidence := m.ScoreRule(rule, sourceData, targetData)
			if confidence > bestConfidence {
				bestConfidence = confidence
			}
			if confidence >= threshold {
				appliedRules = append(appliedRules, rule.Name)
			}
		}

		if bestConfidence >= threshold {
			sort.Strings(appliedRules)
			candidates = append(candidates, models.CandidateMatch{
				SourceIndex:  sourceIndex,
				TargetIndex:  targetIndex,
				Confidence:   bestConfidence,
				AppliedRules: appliedRules,
			})
		}
	}

	return candidates
}

// findMatchesParallel fans source rows out across a bounded worker pool.
// Each row's scoring is independent; results are re-sorted by index so the
// output is identical to the sequential path.
func (m *Matcher) findMatchesParallel(sourceRecords, targetRecords []map[string]any, rules []models.MatchingRule, threshold float64) []models.CandidateMatch {
	rows := make(chan int)
	results := make([][]models.CandidateMatch, len(sourceRecords))

	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sourceIndex := range rows {
				results[sourceIndex] = m.matchRow(sourceIndex, sourceRecords[sourceIndex], targetRecords, rules, threshold)
			}
		}()
	}

	for sourceIndex := range sourceRecords {
		rows <- sourceIndex
	}
	close(rows)
	wg.Wait()

	candidates := []models.CandidateMatch{}
	for _, rowCandidates := range results {
		candidates = append(candidates, rowCandidates...)
	}
	return candidates
}

// ResolveConflicts keeps at most one accepted match per source record. When
// a source matches several targets, the strictly highest confidence wins;
// ties break to the earliest candidate in input order. Targets are not
// deduplicated: a target matched by multiple sources survives into the
// result for downstream review.
func (m *Matcher) ResolveConflicts(candidates []models.CandidateMatch) []models.CandidateMatch {
	bySource := make(map[int]models.CandidateMatch)
	var sourceOrder []int

	for _, candidate := range candidates {
		existing, seen := bySource[candidate.SourceIndex]
		if !seen {
			bySource[candidate.SourceIndex] = candidate
			sourceOrder = append(sourceOrder, candidate.SourceIndex)
			continue
		}
		if candidate.Confidence > existing.Confidence {
			bySource[candidate.SourceIndex] = candidate
		}
	}

	// Explicit ordering by first-encountered source, never map iteration
	resolved := make([]models.CandidateMatch, 0, len(sourceOrder))
	for _, sourceIndex := range sourceOrder {
		resolved = append(resolved, bySource[sourceIndex])
	}
	return resolved
}
