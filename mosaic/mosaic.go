// Package mosaic composites the per-cell rasters of one product/year
// into a single seamless GeoTIFF covering the AOI.
package mosaic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/log"
)

// ErrMaterializationConflict is raised when another materialization of
// the same mosaic path is in flight. It is temporary: callers retry
// under service.Retriable and find either the lock released or the
// finished file.
type ErrMaterializationConflict struct {
	Path string
}

func (e ErrMaterializationConflict) Error() string {
	return fmt.Sprintf("mosaic %s is being materialized by another worker", e.Path)
}

func (e ErrMaterializationConflict) Temporary() bool { return true }

// Options parameterize one mosaic build.
type Options struct {
	// Bounds of the AOI in the product's coordinate system; the mosaic
	// extent is clamped to it so partial edge cells don't grow the
	// raster.
	Bounds [4]float64
	// ScaleFactor is re-applied to the output header; the VRT
	// composition drops the per-cell scale. 0 leaves the header bare.
	ScaleFactor float64
	// Overwrite forces a rebuild when the mosaic file already exists.
	Overwrite bool
}

// Builder lists the cell rasters of a product/year from the store and
// materializes their mosaic under DataDir.
type Builder struct {
	Store   service.Storage
	DataDir string

	mu       sync.Mutex
	inflight service.StringSet

	// GDAL entry points, replaceable in tests.
	buildVRT  func(dst string, sources, switches []string) error
	translate func(src, dst string, switches []string) error
}

func NewBuilder(store service.Storage, dataDir string) *Builder {
	return &Builder{
		Store:     store,
		DataDir:   dataDir,
		inflight:  service.StringSet{},
		buildVRT:  gdalBuildVRT,
		translate: gdalTranslate,
	}
}

// BuildMosaic materializes the mosaic of every cell raster under the
// product/year prefix and returns its local path. An existing file is
// reused unless opts.Overwrite. Only one materialization per path may
// run at a time; a concurrent one yields ErrMaterializationConflict.
func (b *Builder) BuildMosaic(ctx context.Context, product string, year int, opts Options) (string, error) {
	mosaicFile := filepath.Join(b.DataDir, common.MosaicFileName(product, year))
	if !opts.Overwrite {
		if _, err := os.Stat(mosaicFile); err == nil {
			log.Logger(ctx).Sugar().Debugf("mosaic %s exists, skipping", mosaicFile)
			return mosaicFile, nil
		}
	}

	if !b.acquire(mosaicFile) {
		return "", ErrMaterializationConflict{Path: mosaicFile}
	}
	defer b.release(mosaicFile)

	prefix := common.ProductPrefix(product, year)
	keys, err := b.Store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("BuildMosaic.%w", err)
	}
	var sources []string
	for _, key := range keys {
		if strings.HasSuffix(key, ".tif") {
			sources = append(sources, b.Store.DatasetURI(key))
		}
	}
	if len(sources) == 0 {
		return "", fmt.Errorf("BuildMosaic: no cell rasters under %s", prefix)
	}
	log.Logger(ctx).Sugar().Infof("mosaicking %d cell rasters into %s", len(sources), mosaicFile)

	vrtFile := strings.TrimSuffix(mosaicFile, ".tif") + ".vrt"
	defer os.Remove(vrtFile)
	vrtSwitches := []string{
		"-te", ftoa(opts.Bounds[0]), ftoa(opts.Bounds[1]), ftoa(opts.Bounds[2]), ftoa(opts.Bounds[3]),
	}
	if err := b.buildVRT(vrtFile, sources, vrtSwitches); err != nil {
		return "", fmt.Errorf("BuildMosaic.%w", err)
	}

	switches := []string{
		"-of", "GTiff",
		"-co", "COMPRESS=LZW",
		"-co", "PREDICTOR=2",
		"-co", "BIGTIFF=IF_SAFER",
	}
	if opts.ScaleFactor != 0 {
		switches = append(switches, "-a_scale", ftoa(opts.ScaleFactor))
	}
	if err := b.translate(vrtFile, mosaicFile, switches); err != nil {
		return "", fmt.Errorf("BuildMosaic.%w", err)
	}
	return mosaicFile, nil
}

func (b *Builder) acquire(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inflight.Exists(path) {
		return false
	}
	b.inflight.Push(path)
	return true
}

func (b *Builder) release(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight.Pop(path)
}

func gdalBuildVRT(dst string, sources, switches []string) error {
	ds, err := godal.BuildVRT(dst, sources, switches)
	if err != nil {
		return fmt.Errorf("gdalBuildVRT[%s]: %w", dst, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("gdalBuildVRT[%s].Close: %w", dst, err)
	}
	return nil
}

func gdalTranslate(src, dst string, switches []string) error {
	ds, err := godal.Open(src, godal.RasterOnly())
	if err != nil {
		return fmt.Errorf("gdalTranslate[%s].Open: %w", src, err)
	}
	defer ds.Close()
	out, err := ds.Translate(dst, switches)
	if err != nil {
		return fmt.Errorf("gdalTranslate[%s].Translate: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("gdalTranslate[%s].Close: %w", dst, err)
	}
	return nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
