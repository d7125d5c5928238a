package matching

import (
	"math"
	"strings"
	"time"
)

// Scorer provides the string and value comparison algorithms used by the
// field comparator. All methods are pure and return scores in [0,1].
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// Levenshtein returns the normalized edit-distance similarity between two
// strings: (maxLen - distance) / maxLen. Two empty strings score 1.0.
func (s *Scorer) Levenshtein(a, b string) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	distance := s.LevenshteinDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings using
// the standard dynamic-programming recurrence with unit costs.
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// DateProximity scores two dates by closeness: 1.0 for the same instant,
// decaying linearly to 0.0 at maxDaysDiff.
func (s *Scorer) DateProximity(a, b time.Time, maxDaysDiff int) float64 {
	if a.IsZero() || b.IsZero() {
		return 0.0
	}

	daysDiff := math.Abs(a.Sub(b).Hours() / 24)

	if daysDiff == 0 {
		return 1.0
	}
	if int(daysDiff) >= maxDaysDiff {
		return 0.0
	}

	return 1.0 - (daysDiff / float64(maxDaysDiff))
}

// NumericProximity scores two numbers by closeness: 1.0 for equality,
// decaying linearly to 0.0 at maxDiff.
func (s *Scorer) NumericProximity(a, b, maxDiff float64) float64 {
	if a == b {
		return 1.0
	}

	diff := math.Abs(a - b)
	if diff >= maxDiff {
		return 0.0
	}

	return 1.0 - (diff / maxDiff)
}
