package raster

import "math"

// QABits holds the bit positions of the quality flags to mask,
// configurable per sensor.
type QABits struct {
	DilatedCloud uint
	Cirrus       uint
	Cloud        uint
	CloudShadow  uint
}

// LandsatC2QA is the Landsat Collection-2 qa_pixel bit layout.
var LandsatC2QA = QABits{
	DilatedCloud: 1,
	Cirrus:       2,
	Cloud:        3,
	CloudShadow:  4,
}

// Bitmask returns the combined mask of all flagged bits.
func (b QABits) Bitmask() uint16 {
	return 1<<b.DilatedCloud | 1<<b.Cirrus | 1<<b.Cloud | 1<<b.CloudShadow
}

// ApplyQAMask nulls values at every pixel whose QA word has any of the
// masked bits set. A pixel is masked iff qa & bitmask != 0; already-null
// values stay null. values and qa must be the same window.
func ApplyQAMask(values, qa []float64, bits QABits) {
	mask := bits.Bitmask()
	for i, q := range qa {
		if uint16(q)&mask != 0 {
			values[i] = math.NaN()
		}
	}
}
