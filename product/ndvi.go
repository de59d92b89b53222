package product

import (
	"fmt"
	"math"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/raster"
)

// NDVI is the normalized difference vegetation index over the annual
// median composite.
type NDVI struct{}

func (NDVI) Name() string            { return "ndvi" }
func (NDVI) Bands() []string         { return []string{common.BandRed, common.BandNIR} }
func (NDVI) SecondaryScale() float64 { return 0 }
func (NDVI) Outputs() []string       { return []string{"ndvi"} }
func (NDVI) ValueRange() [2]float64  { return [2]float64{-1, 1} }

func (a NDVI) Compute(frames []Frame) ([][]float64, error) {
	n, err := checkFrames(frames, a.Bands())
	if err != nil {
		return nil, fmt.Errorf("NDVI.Compute: %w", err)
	}
	red, err := medianBand(frames, common.BandRed)
	if err != nil {
		return nil, fmt.Errorf("NDVI.Compute.%w", err)
	}
	nir, err := medianBand(frames, common.BandNIR)
	if err != nil {
		return nil, fmt.Errorf("NDVI.Compute.%w", err)
	}

	lo, hi := a.ValueRange()[0], a.ValueRange()[1]
	out := make([]float64, n)
	for i := range out {
		v := normalizedRatio(nir[i], red[i])
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		// Negative reflectance (sensor noise below the offset) drives
		// the ratio outside the index range.
		if v < lo || v > hi {
			v = math.NaN()
		}
		out[i] = v
	}
	return [][]float64{out}, nil
}

// medianBand collapses the time axis of one band with the per-pixel
// median, skipping nulls.
func medianBand(frames []Frame, band string) ([]float64, error) {
	planes := make([][]float64, len(frames))
	for i, f := range frames {
		planes[i] = f.Bands[band]
	}
	plane, err := raster.ReduceTime(planes, raster.ReduceMedian)
	if err != nil {
		return nil, fmt.Errorf("medianBand[%s].%w", band, err)
	}
	return plane, nil
}
