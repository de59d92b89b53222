package raster

import (
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"
)

// COGOptions describe the georeferencing and encoding of a materialized
// cell raster.
type COGOptions struct {
	Grid   GridSpec
	NoData int16
	// Scale is recorded in the header so consumers can recover
	// physical units (value = stored × scale).
	Scale float64
}

// WriteCOG materializes quantized planes (one band each, full grid,
// row-major) as a cloud-optimized GeoTIFF at path, LZW with a
// horizontal-differencing predictor.
func WriteCOG(path string, planes [][]int16, opts COGOptions) error {
	if len(planes) == 0 {
		return fmt.Errorf("WriteCOG[%s]: no planes", path)
	}
	w, h := opts.Grid.Width, opts.Grid.Height
	for i, p := range planes {
		if len(p) != w*h {
			return fmt.Errorf("WriteCOG[%s]: plane %d has %d pixels, expecting %d", path, i, len(p), w*h)
		}
	}

	mem, err := godal.Create(godal.Memory, "", len(planes), godal.Int16, w, h)
	if err != nil {
		return fmt.Errorf("WriteCOG[%s].Create: %w", path, err)
	}
	defer mem.Close()
	if err := mem.SetGeoTransform(opts.Grid.GeoTransform); err != nil {
		return fmt.Errorf("WriteCOG[%s].SetGeoTransform: %w", path, err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(opts.Grid.EPSG)
	if err != nil {
		return fmt.Errorf("WriteCOG[%s].NewSpatialRef: %w", path, err)
	}
	defer sr.Close()
	if err := mem.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("WriteCOG[%s].SetSpatialRef: %w", path, err)
	}
	for i, plane := range planes {
		band := mem.Bands()[i]
		if err := band.SetNoData(float64(opts.NoData)); err != nil {
			return fmt.Errorf("WriteCOG[%s].SetNoData: %w", path, err)
		}
		if err := band.Write(0, 0, plane, w, h); err != nil {
			return fmt.Errorf("WriteCOG[%s].Write[%d]: %w", path, i, err)
		}
	}

	switches := []string{
		"-of", "COG",
		"-co", "COMPRESS=LZW",
		"-co", "PREDICTOR=2",
	}
	if opts.Scale != 0 {
		switches = append(switches, "-a_scale", strconv.FormatFloat(opts.Scale, 'f', -1, 64))
	}
	cog, err := mem.Translate(path, switches)
	if err != nil {
		return fmt.Errorf("WriteCOG[%s].Translate: %w", path, err)
	}
	if err := cog.Close(); err != nil {
		return fmt.Errorf("WriteCOG[%s].Close: %w", path, err)
	}
	return nil
}
