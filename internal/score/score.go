// Package score turns analyzer pass and violation counts into a percentage.
package score

import (
	"math"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

// Calculate returns 100 * passes / (passes + violations) rounded to two
// decimals. An empty page scores 100.
func Calculate(passes, violations int) float64 {
	total := passes + violations
	if total <= 0 {
		return 100
	}
	return math.Round(float64(passes)/float64(total)*100*100) / 100
}

// Tally accumulates pass and violation counts across analyzed pages.
type Tally struct {
	Passes     int
	Violations int
}

// Add folds one page's buckets into the running totals.
func (t *Tally) Add(passes, violations []schemas.Finding) {
	t.Passes += len(passes)
	t.Violations += len(violations)
}

// Score is Calculate over the running totals.
func (t Tally) Score() float64 {
	return Calculate(t.Passes, t.Violations)
}

// Aggregate recomputes the weighted score from stored per-URL results.
func Aggregate(results []schemas.PerUrlResult) float64 {
	var t Tally
	for _, r := range results {
		t.Add(r.Passes, r.Violations)
	}
	return t.Score()
}
