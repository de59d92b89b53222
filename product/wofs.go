package product

import (
	"fmt"
	"math"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/raster"
)

// WOFS is the water observations classifier: each timestep is run
// through a frozen regression-tree threshold table, and the water/dry
// observations are mean-reduced into a yearly water frequency in [0,1].
// The thresholds expect reflectance rescaled by 1/0.0001, hence the
// secondary scale.
type WOFS struct{}

func (WOFS) Name() string            { return "wofs" }
func (WOFS) Bands() []string         { return reflectanceBands }
func (WOFS) SecondaryScale() float64 { return 0.0001 }
func (WOFS) Outputs() []string       { return []string{"wofs"} }
func (WOFS) ValueRange() [2]float64  { return [2]float64{0, 1} }

func (a WOFS) Compute(frames []Frame) ([][]float64, error) {
	n, err := checkFrames(frames, a.Bands())
	if err != nil {
		return nil, fmt.Errorf("WOFS.Compute: %w", err)
	}
	planes := make([][]float64, len(frames))
	for t, f := range frames {
		blue := f.Bands[common.BandBlue]
		green := f.Bands[common.BandGreen]
		red := f.Bands[common.BandRed]
		nir := f.Bands[common.BandNIR]
		swir1 := f.Bands[common.BandSWIR16]
		swir2 := f.Bands[common.BandSWIR22]

		plane := make([]float64, n)
		for i := range plane {
			if math.IsNaN(red[i]) {
				plane[i] = math.NaN()
				continue
			}
			if waterObserved(blue[i], green[i], red[i], nir[i], swir1[i], swir2[i]) {
				plane[i] = 1
			}
		}
		planes[t] = plane
	}

	freq, err := raster.ReduceTime(planes, raster.ReduceMean)
	if err != nil {
		return nil, fmt.Errorf("WOFS.Compute.%w", err)
	}
	return [][]float64{freq}, nil
}

// waterObserved walks the frozen decision tree. The comparators (all
// <=) and branch order are a fixed contract; the thresholds are in
// rescaled reflectance units. Comparisons against NaN are false, so a
// null band falls through each node the way a masked observation
// should: toward dry.
func waterObserved(blue, green, red, nir, swir1, swir2 float64) bool {
	ndi52 := normalizedRatio(swir1, green)
	ndi43 := normalizedRatio(nir, red)
	ndi72 := normalizedRatio(swir2, green)

	if ndi52 <= -0.01 {
		if blue <= 2083.5 {
			if swir2 <= 323.5 {
				return ndi43 <= 0.61 // w1
			}
			if blue <= 1400.5 {
				if ndi72 <= -0.23 {
					if ndi43 <= 0.22 {
						return true // w2
					}
					return blue <= 473.0 // w3
				}
				return blue <= 379.0 // w4
			}
			return ndi43 <= -0.01 // w7
		}
		return false
	}
	if ndi52 <= 0.23 {
		if blue <= 334.5 && ndi43 <= 0.54 {
			if ndi52 <= -0.12 {
				return true // w5
			}
			if red <= 364.5 {
				return blue <= 129.5 // w6
			}
			return blue <= 300.5 // w8
		}
		return false
	}
	// w10
	return ndi52 <= 0.32 && blue <= 249.5 && ndi43 <= 0.45 &&
		red <= 364.5 && blue <= 129.5
}
