// Package carrier holds the energy carriers of a location: electricity,
// graded heat and gases at graded pressures.
package carrier

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// NormalizeLevels returns a sorted, duplicate free copy of levels.
func NormalizeLevels(levels []float64) ([]float64, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("no levels declared")
	}
	out := slices.Clone(levels)
	for _, l := range out {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("invalid level %v", l)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// SurroundingLevels returns (x, x) when x is one of the sorted levels,
// otherwise the closest levels below and above x. A missing neighbour is
// reported as -Inf or +Inf.
func SurroundingLevels(levels []float64, x float64) (float64, float64) {
	i, found := slices.BinarySearch(levels, x)
	if found {
		return x, x
	}
	lower, upper := math.Inf(-1), math.Inf(1)
	if i > 0 {
		lower = levels[i-1]
	}
	if i < len(levels) {
		upper = levels[i]
	}
	return lower, upper
}

// LevelAtOrBelow returns the highest level not above x.
func LevelAtOrBelow(levels []float64, x float64) (float64, bool) {
	lower, _ := SurroundingLevels(levels, x)
	return lower, !math.IsInf(lower, -1)
}

// LevelAtOrAbove returns the lowest level not below x.
func LevelAtOrAbove(levels []float64, x float64) (float64, bool) {
	_, upper := SurroundingLevels(levels, x)
	return upper, !math.IsInf(upper, 1)
}
