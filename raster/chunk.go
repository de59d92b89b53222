// Package raster carries the out-of-core raster pipeline: warped stacks
// over catalog assets, quality masking, radiometric correction, temporal
// reduction, quantization and COG materialization.
package raster

// Window is a pixel-space read window into a raster grid.
type Window struct {
	X, Y int
	W, H int
}

// GridSpec describes the shared target grid of a stack: every band of
// every timestep is warped onto it, so windows are comparable across
// the whole stack.
type GridSpec struct {
	EPSG         int
	GeoTransform [6]float64
	Width        int
	Height       int
}

// Resolution returns the pixel size of the grid.
func (g GridSpec) Resolution() float64 {
	return g.GeoTransform[1]
}

// Windows tiles the grid into at most size×size windows, row-major.
// Edge windows are clipped to the grid, never padded.
func (g GridSpec) Windows(size int) []Window {
	if size <= 0 {
		size = g.Width
		if g.Height > size {
			size = g.Height
		}
	}
	var windows []Window
	for y := 0; y < g.Height; y += size {
		h := size
		if y+h > g.Height {
			h = g.Height - y
		}
		for x := 0; x < g.Width; x += size {
			w := size
			if x+w > g.Width {
				w = g.Width - x
			}
			windows = append(windows, Window{X: x, Y: y, W: w, H: h})
		}
	}
	return windows
}
