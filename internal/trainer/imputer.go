package trainer

import (
	"fmt"
	"math"
	"sort"
)

// FitMedians returns the per-feature median of the non-missing (non-NaN)
// values of X. An even count averages the two middle values.
func FitMedians(X [][]float64, nFeatures int) ([]float64, error) {
	medians := make([]float64, nFeatures)
	col := make([]float64, 0, len(X))
	for f := 0; f < nFeatures; f++ {
		col = col[:0]
		for i, row := range X {
			if len(row) != nFeatures {
				return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
			}
			if !math.IsNaN(row[f]) {
				col = append(col, row[f])
			}
		}
		if len(col) == 0 {
			return nil, fmt.Errorf("feature %d has no observed values", f)
		}
		sort.Float64s(col)
		mid := len(col) / 2
		if len(col)%2 == 1 {
			medians[f] = col[mid]
		} else {
			medians[f] = (col[mid-1] + col[mid]) / 2
		}
	}
	return medians, nil
}

// Impute returns a copy of X with NaN values replaced by medians.
func Impute(X [][]float64, medians []float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for f, v := range row {
			if math.IsNaN(v) {
				v = medians[f]
			}
			r[f] = v
		}
		out[i] = r
	}
	return out
}
