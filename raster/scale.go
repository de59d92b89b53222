package raster

// Landsat Collection-2 Level-2 surface reflectance linear correction.
const (
	LandsatSRScale  = 0.0000275
	LandsatSROffset = -0.2
)

// ApplyScaleOffset converts digital numbers to physical units in place:
// v' = v*scale + offset. NaN passes through, so masking must run first.
func ApplyScaleOffset(values []float64, scale, offset float64) {
	for i, v := range values {
		values[i] = v*scale + offset
	}
}

// ApplyRescale divides every value by an algorithm-specific secondary
// divisor, composed after (never conflated with) the sensor correction.
// A zero divisor is a no-op.
func ApplyRescale(values []float64, divisor float64) {
	if divisor == 0 || divisor == 1 {
		return
	}
	for i, v := range values {
		values[i] = v / divisor
	}
}
