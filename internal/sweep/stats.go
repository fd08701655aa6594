package sweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Round4 rounds x half away from zero to 4 decimal places. Infinities and
// NaN pass through unchanged.
func Round4(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	return math.Round(x*1e4) / 1e4
}

// Median returns the median of xs, averaging the two middle values for even
// lengths. +Inf entries take part like any other value. Returns NaN for an
// empty slice.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	n := len(sorted)
	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n%2 == 1 {
		return lower
	}
	upper := sorted[n/2]
	if math.IsInf(lower, 1) || math.IsInf(upper, 1) {
		// avoid Inf-Inf style NaNs when mixing; the mean of Inf and x is Inf
		return math.Inf(1)
	}
	return (lower + upper) / 2
}

// MeanStddev calculates the mean and sample standard deviation of a slice.
// Returns (0, 0) for empty slices.
func MeanStddev(xs []float64) (mean float64, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}
