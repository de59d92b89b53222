package raster

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service/geometry"
)

// Stack is a time×band cube of scenes warped onto one shared grid. It
// is read window by window: nothing is materialized whole.
type Stack interface {
	Grid() GridSpec
	Times() []time.Time
	Bands() []string
	// Chunks returns the fixed-size read windows tiling the grid.
	Chunks() []Window
	// ReadChunk reads one band of one timestep. Missing pixels (cutline
	// exterior, scene nodata) are NaN for reflectance bands and 0 for
	// the QA band.
	ReadChunk(band string, t int, w Window) ([]float64, error)
	Close() error
}

// StackOptions parameterize BuildStack. Zero values select the
// pipeline defaults (equal-earth grid at 30m, 4096px chunks).
type StackOptions struct {
	Cell       common.GridCell
	TargetEPSG int     // default 8859
	Resolution float64 // default 30
	ChunkSize  int     // default 4096
	// CutlineWKT clips every warp to the cell's AOI intersection,
	// expressed in geographic coordinates.
	CutlineWKT string
	Bands      []string
	// WorkDir holds the per-scene warped VRTs and the cutline file.
	WorkDir string
}

const (
	DefaultTargetEPSG = 8859
	DefaultResolution = 30
	DefaultChunkSize  = 4096
)

type gdalStack struct {
	grid      GridSpec
	times     []time.Time
	bands     []string
	chunkSize int
	// datasets[band][t]
	datasets map[string][]*godal.Dataset
}

// BuildStack warps every scene×band asset onto a shared grid derived
// from the cutline bounds, snapped to the resolution. Scenes must be
// time-sorted; the stack's timestep order follows them. The QA band is
// resampled nearest, reflectance bands bilinear.
func BuildStack(ctx context.Context, scenes []common.SceneReference, opts StackOptions) (Stack, error) {
	if len(scenes) == 0 {
		return nil, fmt.Errorf("BuildStack: %w", common.ErrNoImagery{Cell: opts.Cell})
	}
	if opts.TargetEPSG == 0 {
		opts.TargetEPSG = DefaultTargetEPSG
	}
	if opts.Resolution == 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if len(opts.Bands) == 0 {
		return nil, fmt.Errorf("BuildStack[%s]: no bands requested", opts.Cell)
	}

	cutline := filepath.Join(opts.WorkDir, "cutline.geojson")
	if err := geometry.WriteCutlineGeoJSON(opts.CutlineWKT, cutline); err != nil {
		return nil, fmt.Errorf("BuildStack[%s].%w", opts.Cell, err)
	}
	grid, err := targetGrid(opts.CutlineWKT, opts.TargetEPSG, opts.Resolution)
	if err != nil {
		return nil, fmt.Errorf("BuildStack[%s].%w", opts.Cell, err)
	}

	s := &gdalStack{
		grid:      grid,
		bands:     opts.Bands,
		chunkSize: opts.ChunkSize,
		datasets:  map[string][]*godal.Dataset{},
	}
	for _, scene := range scenes {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("BuildStack[%s]: %w", opts.Cell, err)
		}
		s.times = append(s.times, scene.AcquiredAt)
		for _, band := range opts.Bands {
			href, ok := scene.Assets[band]
			if !ok {
				s.Close()
				return nil, fmt.Errorf("BuildStack[%s]: scene %s has no %s asset", opts.Cell, scene.ID, band)
			}
			ds, err := warpAsset(href, band, scene, grid, cutline, opts.WorkDir)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("BuildStack[%s].%w", opts.Cell, err)
			}
			s.datasets[band] = append(s.datasets[band], ds)
		}
	}
	return s, nil
}

// TargetBounds reprojects a WKT geometry from geographic coordinates to
// the target system and returns its bounds [minx, miny, maxx, maxy].
func TargetBounds(wkt string, epsg int) ([4]float64, error) {
	sr4326, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return [4]float64{}, fmt.Errorf("TargetBounds.NewSpatialRef: %w", err)
	}
	defer sr4326.Close()
	srDst, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return [4]float64{}, fmt.Errorf("TargetBounds.NewSpatialRef[%d]: %w", epsg, err)
	}
	defer srDst.Close()

	g, err := godal.NewGeometryFromWKT(wkt, sr4326)
	if err != nil {
		return [4]float64{}, fmt.Errorf("TargetBounds.NewGeometry: %w", err)
	}
	defer g.Close()
	if err := g.Reproject(srDst); err != nil {
		return [4]float64{}, fmt.Errorf("TargetBounds.Reproject: %w", err)
	}
	bounds, err := g.Bounds()
	if err != nil {
		return [4]float64{}, fmt.Errorf("TargetBounds.Bounds: %w", err)
	}
	return bounds, nil
}

// targetGrid derives the shared grid from the cutline bounds reprojected
// to the target system and snapped outwards to the resolution.
func targetGrid(cutlineWKT string, epsg int, res float64) (GridSpec, error) {
	bounds, err := TargetBounds(cutlineWKT, epsg)
	if err != nil {
		return GridSpec{}, fmt.Errorf("targetGrid.%w", err)
	}

	minx := math.Floor(bounds[0]/res) * res
	miny := math.Floor(bounds[1]/res) * res
	maxx := math.Ceil(bounds[2]/res) * res
	maxy := math.Ceil(bounds[3]/res) * res
	return GridSpec{
		EPSG:         epsg,
		GeoTransform: [6]float64{minx, res, 0, maxy, 0, -res},
		Width:        int(math.Round((maxx - minx) / res)),
		Height:       int(math.Round((maxy - miny) / res)),
	}, nil
}

func warpAsset(href, band string, scene common.SceneReference, grid GridSpec, cutline, workDir string) (*godal.Dataset, error) {
	src, err := godal.Open(vsiPath(href), godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("warpAsset[%s/%s].Open: %w", scene.ID, band, err)
	}
	defer src.Close()

	res := grid.Resolution()
	minx := grid.GeoTransform[0]
	maxy := grid.GeoTransform[3]
	maxx := minx + float64(grid.Width)*res
	miny := maxy - float64(grid.Height)*res

	resampling := "bilinear"
	if band == common.BandQA {
		resampling = "near"
	}
	switches := []string{
		"-of", "VRT",
		"-t_srs", fmt.Sprintf("EPSG:%d", grid.EPSG),
		"-te", ftoa(minx), ftoa(miny), ftoa(maxx), ftoa(maxy),
		"-tr", ftoa(res), ftoa(res),
		"-r", resampling,
		"-cutline", cutline,
		"-wo", "CUTLINE_ALL_TOUCHED=TRUE",
	}
	// The corrected catalog metadata overrides the asset's embedded
	// coordinate system, which may carry the upstream defect.
	if scene.EPSG != 0 {
		switches = append(switches, "-s_srs", fmt.Sprintf("EPSG:%d", scene.EPSG))
	}

	name := filepath.Join(workDir, fmt.Sprintf("%s_%s.vrt", scene.ID, band))
	ds, err := src.Warp(name, switches)
	if err != nil {
		return nil, fmt.Errorf("warpAsset[%s/%s].Warp: %w", scene.ID, band, err)
	}
	return ds, nil
}

// vsiPath maps an asset href to a GDAL-openable path. HTTP(S) assets go
// through vsicurl; gs:// buckets are served by the registered osio
// handler; everything else is assumed local or already VSI-prefixed.
func vsiPath(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	return href
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (s *gdalStack) Grid() GridSpec     { return s.grid }
func (s *gdalStack) Times() []time.Time { return s.times }
func (s *gdalStack) Bands() []string    { return s.bands }

func (s *gdalStack) Chunks() []Window {
	return s.grid.Windows(s.chunkSize)
}

func (s *gdalStack) ReadChunk(band string, t int, w Window) ([]float64, error) {
	datasets, ok := s.datasets[band]
	if !ok {
		return nil, fmt.Errorf("ReadChunk: band %s not in stack", band)
	}
	if t < 0 || t >= len(datasets) {
		return nil, fmt.Errorf("ReadChunk[%s]: timestep %d out of range", band, t)
	}
	buf := make([]float64, w.W*w.H)
	if err := datasets[t].Bands()[0].Read(w.X, w.Y, buf, w.W, w.H); err != nil {
		return nil, fmt.Errorf("ReadChunk[%s/%d].Read: %w", band, t, err)
	}
	// DN 0 is the surface-reflectance fill value. QA keeps its raw
	// bit pattern so the masker sees fill as-is.
	if band != common.BandQA {
		for i, v := range buf {
			if v == 0 {
				buf[i] = math.NaN()
			}
		}
	}
	return buf, nil
}

func (s *gdalStack) Close() error {
	var first error
	for _, datasets := range s.datasets {
		for _, ds := range datasets {
			if err := ds.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	s.datasets = map[string][]*godal.Dataset{}
	return first
}
