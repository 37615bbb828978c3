package formulas

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median calculates the median of a slice of float64 values.
// Returns 0 for an empty slice.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
