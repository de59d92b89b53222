package tiler

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/log"
)

// Web-mercator half-extent: tile (z,0,0) starts at (-webMercMax, webMercMax).
const webMercMax = 20037508.342789244

const (
	DefaultMaxZoom  = 11
	DefaultTileSize = 512
)

// Options parameterize one pyramid build.
type Options struct {
	Product  string
	Year     int
	MinZoom  int
	MaxZoom  int // default 11
	TileSize int // default 512
	WorkDir  string
}

// Tiler cuts a mosaic into XYZ PNG tiles and uploads them under
// tiles/{product}_{year}/{z}/{x}/{y}.png. Local copies are removed as
// they are uploaded; only the tiles intersecting the mosaic are cut.
type Tiler struct {
	Store service.Storage
	Ramp  *ColorRamp
}

// BuildTiles warps the mosaic to web mercator at the max-zoom
// resolution once, then renders every zoom from that single dataset.
func (t *Tiler) BuildTiles(ctx context.Context, mosaicPath string, opts Options) error {
	if opts.MaxZoom == 0 {
		opts.MaxZoom = DefaultMaxZoom
	}
	if opts.TileSize == 0 {
		opts.TileSize = DefaultTileSize
	}

	src, err := godal.Open(mosaicPath, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("BuildTiles.Open: %w", err)
	}
	defer src.Close()

	res := tileResolution(opts.MaxZoom, opts.TileSize)
	warpedName := filepath.Join(opts.WorkDir, "mercator.vrt")
	warped, err := src.Warp(warpedName, []string{
		"-of", "VRT",
		"-t_srs", "EPSG:3857",
		"-tr", fmt.Sprintf("%g", res), fmt.Sprintf("%g", res),
		"-r", "bilinear",
	})
	if err != nil {
		return fmt.Errorf("BuildTiles.Warp: %w", err)
	}
	defer func() {
		warped.Close()
		os.Remove(warpedName)
	}()

	bounds, err := datasetBounds(warped)
	if err != nil {
		return fmt.Errorf("BuildTiles.%w", err)
	}
	nodata, hasNodata := warped.Bands()[0].NoData()

	count := 0
	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		x0, y0, x1, y1 := tileRange(bounds, z)
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("BuildTiles: %w", err)
				}
				if err := t.renderTile(ctx, warped, z, x, y, opts, nodata, hasNodata); err != nil {
					return fmt.Errorf("BuildTiles.%w", err)
				}
				count++
			}
		}
		log.Logger(ctx).Debug("tiled zoom level",
			zap.String("product", opts.Product), zap.Int("zoom", z), zap.Int("tiles", count))
	}
	log.Logger(ctx).Info("tile pyramid complete",
		zap.String("product", opts.Product), zap.Int("year", opts.Year), zap.Int("tiles", count))
	return nil
}

// renderTile resamples the tile's extent out of the warped mosaic,
// colorizes it and uploads the PNG.
func (t *Tiler) renderTile(ctx context.Context, warped *godal.Dataset, z, x, y int, opts Options, nodata float64, hasNodata bool) error {
	minx, miny, maxx, maxy := tileExtent(z, x, y)
	ts := opts.TileSize

	tile, err := warped.Translate("", []string{
		"-of", "MEM",
		"-projwin", fmt.Sprintf("%g", minx), fmt.Sprintf("%g", maxy), fmt.Sprintf("%g", maxx), fmt.Sprintf("%g", miny),
		"-outsize", fmt.Sprintf("%d", ts), fmt.Sprintf("%d", ts),
		"-r", "average",
	})
	if err != nil {
		return fmt.Errorf("renderTile[%d/%d/%d].Translate: %w", z, x, y, err)
	}
	defer tile.Close()

	values := make([]float64, ts*ts)
	if err := tile.Bands()[0].Read(0, 0, values, ts, ts); err != nil {
		return fmt.Errorf("renderTile[%d/%d/%d].Read: %w", z, x, y, err)
	}
	if hasNodata {
		for i, v := range values {
			if v == nodata {
				values[i] = math.NaN()
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, t.Ramp.Image(values, ts, ts)); err != nil {
		return fmt.Errorf("renderTile[%d/%d/%d].Encode: %w", z, x, y, err)
	}
	key := common.TileKey(opts.Product, opts.Year, z, x, y)
	if err := t.Store.Put(ctx, key, buf); err != nil {
		return fmt.Errorf("renderTile[%d/%d/%d].%w", z, x, y, err)
	}
	return nil
}

func datasetBounds(ds *godal.Dataset) ([4]float64, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return [4]float64{}, fmt.Errorf("datasetBounds: %w", err)
	}
	w, h := float64(ds.Structure().SizeX), float64(ds.Structure().SizeY)
	return [4]float64{gt[0], gt[3] + h*gt[5], gt[0] + w*gt[1], gt[3]}, nil
}

// tileResolution is the ground size of one pixel at zoom z.
func tileResolution(z, tileSize int) float64 {
	return 2 * webMercMax / (float64(tileSize) * math.Exp2(float64(z)))
}

// tileExtent returns the mercator bounds of XYZ tile (z, x, y); y runs
// north to south.
func tileExtent(z, x, y int) (minx, miny, maxx, maxy float64) {
	size := 2 * webMercMax / math.Exp2(float64(z))
	minx = -webMercMax + float64(x)*size
	maxy = webMercMax - float64(y)*size
	return minx, maxy - size, minx + size, maxy
}

// tileRange returns the inclusive XYZ tile indices covering bounds at
// zoom z, clamped to the valid range.
func tileRange(bounds [4]float64, z int) (x0, y0, x1, y1 int) {
	size := 2 * webMercMax / math.Exp2(float64(z))
	n := int(math.Exp2(float64(z)))
	x0 = clampTile(int(math.Floor((bounds[0]+webMercMax)/size)), n)
	x1 = clampTile(int(math.Ceil((bounds[2]+webMercMax)/size))-1, n)
	y0 = clampTile(int(math.Floor((webMercMax-bounds[3])/size)), n)
	y1 = clampTile(int(math.Ceil((webMercMax-bounds[1])/size))-1, n)
	return x0, y0, x1, y1
}

func clampTile(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
