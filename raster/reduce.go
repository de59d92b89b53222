package raster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

//go:generate go run github.com/dmarkham/enumer -type ReduceMethod -trimprefix Reduce -transform lower -text

// ReduceMethod selects the per-pixel statistic collapsing the time axis.
type ReduceMethod int

const (
	ReduceMedian ReduceMethod = iota
	ReduceMean
)

// ReduceTime collapses planes (one per timestep, all the same window)
// into a single plane. Null observations are skipped per pixel; a pixel
// null at every timestep stays null. A single timestep reduces to
// itself under every method.
func ReduceTime(planes [][]float64, method ReduceMethod) ([]float64, error) {
	if len(planes) == 0 {
		return nil, fmt.Errorf("ReduceTime: no planes")
	}
	n := len(planes[0])
	for i, p := range planes[1:] {
		if len(p) != n {
			return nil, fmt.Errorf("ReduceTime: plane %d has %d pixels, expecting %d", i+1, len(p), n)
		}
	}
	if len(planes) == 1 {
		out := make([]float64, n)
		copy(out, planes[0])
		return out, nil
	}

	out := make([]float64, n)
	column := make([]float64, 0, len(planes))
	for i := 0; i < n; i++ {
		column = column[:0]
		for _, p := range planes {
			if !math.IsNaN(p[i]) {
				column = append(column, p[i])
			}
		}
		if len(column) == 0 {
			out[i] = math.NaN()
			continue
		}
		switch method {
		case ReduceMean:
			out[i] = stat.Mean(column, nil)
		case ReduceMedian:
			out[i] = median(column)
		default:
			return nil, fmt.Errorf("ReduceTime: unknown method %d", method)
		}
	}
	return out, nil
}

// median of a non-empty slice, averaging the middle pair for even
// lengths. Reorders its argument.
func median(values []float64) float64 {
	sort.Float64s(values)
	m := len(values) / 2
	if len(values)%2 == 1 {
		return values[m]
	}
	return (values[m-1] + values[m]) / 2
}
