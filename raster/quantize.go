package raster

import (
	"fmt"
	"math"
)

// Per-product quantization defaults: physical = stored / 10000.
const (
	DefaultMultiplier = 10000
	DefaultNoData     = -32767
)

// Quantizer rescales floating-point planes to int16 with an explicit
// no-data sentinel. Physical values are recovered downstream as
// stored/multiplier, carried in the output raster header.
type Quantizer struct {
	Multiplier float64
	NoData     int16
}

// NewQuantizer validates that no value in [valueRange[0], valueRange[1]]
// can round onto the no-data sentinel, and that the range fits int16.
func NewQuantizer(multiplier float64, nodata int16, valueRange [2]float64) (*Quantizer, error) {
	if multiplier <= 0 {
		return nil, fmt.Errorf("NewQuantizer: multiplier %g is not positive", multiplier)
	}
	lo := math.Round(valueRange[0] * multiplier)
	hi := math.Round(valueRange[1] * multiplier)
	if lo > hi {
		return nil, fmt.Errorf("NewQuantizer: inverted value range [%g, %g]", valueRange[0], valueRange[1])
	}
	if lo < math.MinInt16 || hi > math.MaxInt16 {
		return nil, fmt.Errorf("NewQuantizer: range [%g, %g] × %g exceeds int16", valueRange[0], valueRange[1], multiplier)
	}
	if nd := float64(nodata); nd >= lo && nd <= hi {
		return nil, fmt.Errorf("NewQuantizer: nodata %d collides with stored range [%g, %g]", nodata, lo, hi)
	}
	return &Quantizer{Multiplier: multiplier, NoData: nodata}, nil
}

// Quantize converts one plane: stored = round(v*multiplier) where v is
// valid, nodata where v is null.
func (q *Quantizer) Quantize(values []float64) []int16 {
	out := make([]int16, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = q.NoData
			continue
		}
		out[i] = int16(math.Round(v * q.Multiplier))
	}
	return out
}

// Scale returns the factor recovering physical units from stored values.
func (q *Quantizer) Scale() float64 {
	return 1 / q.Multiplier
}
