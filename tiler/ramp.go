// Package tiler renders a product mosaic into a web-mercator PNG tile
// pyramid, colorized through a GDAL color-relief ramp file.
package tiler

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

type rampStop struct {
	value float64
	color color.NRGBA
}

// ColorRamp maps raster values to colors, interpolating linearly
// between stops the way gdaldem color-relief does. The optional "nv"
// entry colors no-data pixels; it defaults to fully transparent.
type ColorRamp struct {
	stops []rampStop
	nv    color.NRGBA
}

// LoadColorRamp reads a GDAL color-relief text file: one
// "value R G B [A]" entry per line, values in stored raster units,
// "nv" for the no-data color, '#' comments.
func LoadColorRamp(path string) (*ColorRamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadColorRamp: %w", err)
	}
	defer f.Close()
	ramp, err := ParseColorRamp(f)
	if err != nil {
		return nil, fmt.Errorf("LoadColorRamp[%s].%w", path, err)
	}
	return ramp, nil
}

func ParseColorRamp(r io.Reader) (*ColorRamp, error) {
	ramp := &ColorRamp{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 4 || len(fields) > 5 {
			return nil, fmt.Errorf("ParseColorRamp: line %d: expecting 'value R G B [A]'", line)
		}
		c, err := parseColor(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("ParseColorRamp: line %d: %w", line, err)
		}
		if fields[0] == "nv" {
			ramp.nv = c
			continue
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("ParseColorRamp: line %d: bad value %q", line, fields[0])
		}
		ramp.stops = append(ramp.stops, rampStop{value: v, color: c})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ParseColorRamp: %w", err)
	}
	if len(ramp.stops) == 0 {
		return nil, fmt.Errorf("ParseColorRamp: no color entries")
	}
	sort.Slice(ramp.stops, func(i, j int) bool { return ramp.stops[i].value < ramp.stops[j].value })
	return ramp, nil
}

func parseColor(fields []string) (color.NRGBA, error) {
	channels := [4]uint8{0, 0, 0, 255}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, fmt.Errorf("bad channel %q", f)
		}
		channels[i] = uint8(v)
	}
	return color.NRGBA{R: channels[0], G: channels[1], B: channels[2], A: channels[3]}, nil
}

// Lookup colors one value. Values below the first stop and above the
// last clamp to the end colors; NaN maps to the no-data color.
func (r *ColorRamp) Lookup(v float64) color.NRGBA {
	if math.IsNaN(v) {
		return r.nv
	}
	i := sort.Search(len(r.stops), func(i int) bool { return r.stops[i].value >= v })
	if i == 0 {
		return r.stops[0].color
	}
	if i == len(r.stops) {
		return r.stops[len(r.stops)-1].color
	}
	lo, hi := r.stops[i-1], r.stops[i]
	if hi.value == lo.value {
		return hi.color
	}
	t := (v - lo.value) / (hi.value - lo.value)
	return color.NRGBA{
		R: lerp(lo.color.R, hi.color.R, t),
		G: lerp(lo.color.G, hi.color.G, t),
		B: lerp(lo.color.B, hi.color.B, t),
		A: lerp(lo.color.A, hi.color.A, t),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + t*(float64(b)-float64(a))))
}

// Image colorizes a w×h row-major plane.
func (r *ColorRamp) Image(values []float64, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, r.Lookup(values[y*w+x]))
		}
	}
	return img
}
