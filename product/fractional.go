package product

import (
	"fmt"
	"math"

	"github.com/pacificgeo/landsat-mosaic/common"
)

// Fixed endmembers of the linear cover model, in index space.
const (
	fcNDVIBare = 0.14
	fcNDVIVeg  = 0.90
	fcNDTIMin  = -0.05
	fcNDTIMax  = 0.35
)

// FractionalCover unmixes each pixel of the first usable timestep into
// bare soil, green and dead vegetation shares using a fixed linear
// endmember model: the green share from NDVI between bare and full
// canopy, the residual split between dead vegetation and bare soil by
// the tillage index. Shares are clamped to [0,1] and sum to 1. Pixels
// with any non-positive reflectance are excluded.
type FractionalCover struct{}

func (FractionalCover) Name() string            { return "fc" }
func (FractionalCover) Bands() []string         { return reflectanceBands }
func (FractionalCover) SecondaryScale() float64 { return 0.0001 }
func (FractionalCover) Outputs() []string       { return []string{"bs", "pv", "npv"} }
func (FractionalCover) ValueRange() [2]float64  { return [2]float64{0, 1} }

func (a FractionalCover) Compute(frames []Frame) ([][]float64, error) {
	n, err := checkFrames(frames, a.Bands())
	if err != nil {
		return nil, fmt.Errorf("FractionalCover.Compute: %w", err)
	}
	// Single-date product: only the first timestep is unmixed.
	f := frames[0]
	blue := f.Bands[common.BandBlue]
	green := f.Bands[common.BandGreen]
	red := f.Bands[common.BandRed]
	nir := f.Bands[common.BandNIR]
	swir1 := f.Bands[common.BandSWIR16]
	swir2 := f.Bands[common.BandSWIR22]

	bs := make([]float64, n)
	pv := make([]float64, n)
	npv := make([]float64, n)
	for i := 0; i < n; i++ {
		if !positive(blue[i], green[i], red[i], nir[i], swir1[i], swir2[i]) {
			bs[i], pv[i], npv[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		ndvi := normalizedRatio(nir[i], red[i])
		ndti := normalizedRatio(swir1[i], swir2[i])

		g := clamp01((ndvi - fcNDVIBare) / (fcNDVIVeg - fcNDVIBare))
		d := (1 - g) * clamp01((ndti-fcNDTIMin)/(fcNDTIMax-fcNDTIMin))
		pv[i] = g
		npv[i] = d
		bs[i] = clamp01(1 - g - d)
	}
	return [][]float64{bs, pv, npv}, nil
}

// positive reports whether every reflectance is strictly positive.
// NaN comparisons are false, so nulls are excluded too.
func positive(values ...float64) bool {
	for _, v := range values {
		if !(v > 0) {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
