package product

import (
	"fmt"
	"math"

	"github.com/pacificgeo/landsat-mosaic/common"
)

// EVI enhanced vegetation index coefficients, for reflectance in [0,1].
const (
	eviGain = 2.5
	eviC1   = 6.0
	eviC2   = 7.5
	eviSoil = 1.0
)

// EVI is the enhanced vegetation index over the annual median
// composite: G*(nir-red) / (nir + C1*red - C2*blue + L).
type EVI struct{}

func (EVI) Name() string { return "evi" }
func (EVI) Bands() []string {
	return []string{common.BandBlue, common.BandRed, common.BandNIR}
}
func (EVI) SecondaryScale() float64 { return 0 }
func (EVI) Outputs() []string       { return []string{"evi"} }
func (EVI) ValueRange() [2]float64  { return [2]float64{-3, 3} }

func (a EVI) Compute(frames []Frame) ([][]float64, error) {
	n, err := checkFrames(frames, a.Bands())
	if err != nil {
		return nil, fmt.Errorf("EVI.Compute: %w", err)
	}
	blue, err := medianBand(frames, common.BandBlue)
	if err != nil {
		return nil, fmt.Errorf("EVI.Compute.%w", err)
	}
	red, err := medianBand(frames, common.BandRed)
	if err != nil {
		return nil, fmt.Errorf("EVI.Compute.%w", err)
	}
	nir, err := medianBand(frames, common.BandNIR)
	if err != nil {
		return nil, fmt.Errorf("EVI.Compute.%w", err)
	}

	lo, hi := a.ValueRange()[0], a.ValueRange()[1]
	out := make([]float64, n)
	for i := range out {
		denom := nir[i] + eviC1*red[i] - eviC2*blue[i] + eviSoil
		v := eviGain * (nir[i] - red[i]) / denom
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		// Degenerate denominators blow up outside any physical range.
		if v < lo || v > hi {
			v = math.NaN()
		}
		out[i] = v
	}
	return [][]float64{out}, nil
}
