// Package product hosts the derived-product algorithms. Algorithms are
// pure array transforms: they receive corrected, masked reflectance
// frames and return output planes, propagating null as NaN. All
// temporal logic (reduce first, classify per timestep, single-date)
// lives inside Compute so the pipeline stays algorithm-agnostic.
package product

import (
	"fmt"

	"github.com/pacificgeo/landsat-mosaic/common"
)

// Frame is one timestep of a stack chunk: the requested reflectance
// bands over a W×H window, corrected and masked, row-major.
type Frame struct {
	W, H  int
	Bands map[string][]float64
}

// Algorithm computes one derived product from a time series of frames.
type Algorithm interface {
	Name() string
	// Bands lists the reflectance bands the algorithm reads.
	Bands() []string
	// SecondaryScale is the divisor of the algorithm-specific rescale
	// (applied after the sensor scale/offset); 0 means none.
	SecondaryScale() float64
	// Outputs names the returned planes, in order.
	Outputs() []string
	// ValueRange bounds every output value, for quantizer validation.
	ValueRange() [2]float64
	// Compute returns one plane per output, each W×H of the input
	// frames. Null observations yield NaN.
	Compute(frames []Frame) ([][]float64, error)
}

// New returns the algorithm registered under name.
func New(name string) (Algorithm, error) {
	switch name {
	case "ndvi":
		return NDVI{}, nil
	case "evi":
		return EVI{}, nil
	case "wofs":
		return WOFS{}, nil
	case "fc":
		return FractionalCover{}, nil
	}
	return nil, fmt.Errorf("New: unknown product %q", name)
}

// Names lists the registered products.
func Names() []string {
	return []string{"ndvi", "evi", "wofs", "fc"}
}

func checkFrames(frames []Frame, bands []string) (int, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("no frames")
	}
	n := frames[0].W * frames[0].H
	for i, f := range frames {
		if f.W*f.H != n {
			return 0, fmt.Errorf("frame %d is %dx%d, expecting %d pixels", i, f.W, f.H, n)
		}
		for _, b := range bands {
			if len(f.Bands[b]) != n {
				return 0, fmt.Errorf("frame %d: band %s has %d pixels, expecting %d", i, b, len(f.Bands[b]), n)
			}
		}
	}
	return n, nil
}

// normalizedRatio is the (a-b)/(a+b) family of band indices. A zero
// denominator yields NaN or ±Inf per float semantics; callers treat
// non-finite results as null.
func normalizedRatio(a, b float64) float64 {
	return (a - b) / (a + b)
}

var reflectanceBands = []string{
	common.BandBlue, common.BandGreen, common.BandRed,
	common.BandNIR, common.BandSWIR16, common.BandSWIR22,
}
