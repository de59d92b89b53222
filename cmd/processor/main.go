package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	"go.uber.org/zap"

	"github.com/pacificgeo/landsat-mosaic/grid"
	"github.com/pacificgeo/landsat-mosaic/interface/catalog/mspc"
	"github.com/pacificgeo/landsat-mosaic/mosaic"
	"github.com/pacificgeo/landsat-mosaic/processor"
	"github.com/pacificgeo/landsat-mosaic/product"
	"github.com/pacificgeo/landsat-mosaic/raster"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/log"
	"github.com/pacificgeo/landsat-mosaic/tiler"
)

type config struct {
	Product string
	Year    int

	AOIFile   string
	CellsFile string

	StorageURI    string
	StorageRegion string
	WorkingDir    string
	DataDir       string

	CatalogURL string
	Collection string

	Concurrency int
	ChunkSize   int
	Resolution  float64
	EPSG        int
	Multiplier  float64

	RunScenes            bool
	Mosaic               bool
	Tile                 bool
	RemakeMosaicForTiles bool
	Reprocess            bool

	ColorRampFile string
	MaxZoom       int
	TileSize      int

	StorageAccount    string
	StorageCredential string
}

func newAppConfig() (*config, error) {
	config := config{}

	flag.StringVar(&config.Product, "product", "", fmt.Sprintf("product to compute %v", product.Names()))
	flag.IntVar(&config.Year, "year", 0, "acquisition year")

	flag.StringVar(&config.AOIFile, "aoi", "data/aoi.geojson", "area-of-interest layer (geojson)")
	flag.StringVar(&config.CellsFile, "cells", "data/cells.geojson", "grid partition layer with PATH/ROW properties (geojson)")

	flag.StringVar(&config.StorageURI, "storage-uri", "", "output storage uri (currently supported: local, gs, s3)")
	flag.StringVar(&config.StorageRegion, "storage-region", "", "s3 storage region")
	flag.StringVar(&config.WorkingDir, "workdir", "/local-ssd", "working directory to store intermediate results")
	flag.StringVar(&config.DataDir, "data-dir", "data", "directory for materialized mosaics")

	flag.StringVar(&config.CatalogURL, "catalog-url", mspc.SearchURL, "stac search endpoint")
	flag.StringVar(&config.Collection, "collection", mspc.CollectionLandsatC2L2, "stac collection")

	flag.IntVar(&config.Concurrency, "concurrency", 4, "number of cells processed in parallel")
	flag.IntVar(&config.ChunkSize, "chunk-size", raster.DefaultChunkSize, "read window size in pixels")
	flag.Float64Var(&config.Resolution, "resolution", raster.DefaultResolution, "target resolution in target crs units")
	flag.IntVar(&config.EPSG, "epsg", raster.DefaultTargetEPSG, "target coordinate system")
	flag.Float64Var(&config.Multiplier, "multiplier", raster.DefaultMultiplier, "output quantization multiplier")

	flag.BoolVar(&config.RunScenes, "run-scenes", false, "process the grid cells")
	flag.BoolVar(&config.Mosaic, "mosaic", false, "materialize the mosaic of the cell rasters")
	flag.BoolVar(&config.Tile, "tile", false, "cut the tile pyramid from the mosaic")
	flag.BoolVar(&config.RemakeMosaicForTiles, "remake-mosaic-for-tiles", false, "rebuild the mosaic before tiling")
	flag.BoolVar(&config.Reprocess, "reprocess", false, "ignore the completion manifest and reprocess every cell")

	flag.StringVar(&config.ColorRampFile, "color-ramp", "", "gdal color-relief ramp file for tiling")
	flag.IntVar(&config.MaxZoom, "max-zoom", tiler.DefaultMaxZoom, "deepest tile zoom level")
	flag.IntVar(&config.TileSize, "tile-size", tiler.DefaultTileSize, "tile size in pixels")
	flag.Parse()

	// Credentials are read from the environment once, here, and passed
	// down explicitly.
	config.StorageAccount = os.Getenv("STORAGE_ACCESS_KEY_ID")
	config.StorageCredential = os.Getenv("STORAGE_SECRET_ACCESS_KEY")

	if config.Product == "" {
		return nil, fmt.Errorf("missing product config flag")
	}
	if config.Year == 0 {
		return nil, fmt.Errorf("missing year config flag")
	}
	if config.StorageURI == "" {
		return nil, fmt.Errorf("wrong storage-uri config flag")
	}
	if !config.RunScenes && !config.Mosaic && !config.Tile {
		return nil, fmt.Errorf("nothing to do: set at least one of -run-scenes, -mosaic, -tile")
	}
	if config.Tile && config.ColorRampFile == "" {
		return nil, fmt.Errorf("missing color-ramp config flag (required by -tile)")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	if err := initGDAL(ctx, config); err != nil {
		return fmt.Errorf("init gdal: %w", err)
	}

	storage, err := service.NewStorage(ctx, service.StorageConfig{
		URI:        config.StorageURI,
		Account:    config.StorageAccount,
		Credential: config.StorageCredential,
		Region:     config.StorageRegion,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	algorithm, err := product.New(config.Product)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.DataDir, 0766); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	if config.RunScenes {
		cells, err := grid.Resolve(config.CellsFile, config.AOIFile)
		if err != nil {
			return fmt.Errorf("grid: %w", err)
		}
		log.Logger(ctx).Info("processing cells",
			zap.String("product", config.Product), zap.Int("year", config.Year), zap.Int("cells", len(cells)))

		proc, err := processor.New(processor.Config{
			Algorithm:   algorithm,
			Provider:    &mspc.Provider{URL: config.CatalogURL},
			Collection:  config.Collection,
			Store:       storage,
			Year:        config.Year,
			TargetEPSG:  config.EPSG,
			Resolution:  config.Resolution,
			ChunkSize:   config.ChunkSize,
			Multiplier:  config.Multiplier,
			WorkDir:     config.WorkingDir,
			Concurrency: config.Concurrency,
			Reprocess:   config.Reprocess,
		})
		if err != nil {
			return fmt.Errorf("processor: %w", err)
		}
		if _, err := proc.Run(ctx, cells); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	builder := mosaic.NewBuilder(storage, config.DataDir)
	mosaicFile := ""

	if config.Mosaic {
		if mosaicFile, err = buildMosaic(ctx, config, builder, mosaic.Options{
			ScaleFactor: 1 / config.Multiplier,
			Overwrite:   true,
		}); err != nil {
			return fmt.Errorf("mosaic: %w", err)
		}
	}

	if config.Tile {
		// Tiling color ramps are written against coarser stored units.
		if mosaicFile, err = buildMosaic(ctx, config, builder, mosaic.Options{
			ScaleFactor: 1.0 / 1000,
			Overwrite:   config.RemakeMosaicForTiles,
		}); err != nil {
			return fmt.Errorf("mosaic for tiles: %w", err)
		}
		ramp, err := tiler.LoadColorRamp(config.ColorRampFile)
		if err != nil {
			return fmt.Errorf("tile: %w", err)
		}
		t := tiler.Tiler{Store: storage, Ramp: ramp}
		if err := t.BuildTiles(ctx, mosaicFile, tiler.Options{
			Product:  config.Product,
			Year:     config.Year,
			MaxZoom:  config.MaxZoom,
			TileSize: config.TileSize,
			WorkDir:  config.DataDir,
		}); err != nil {
			return fmt.Errorf("tile: %w", err)
		}
	}
	return nil
}

// buildMosaic clamps the mosaic to the AOI bounds and retries through
// transient materialization conflicts.
func buildMosaic(ctx context.Context, config *config, builder *mosaic.Builder, opts mosaic.Options) (string, error) {
	aoiWKT, err := grid.AOIWKT(config.AOIFile)
	if err != nil {
		return "", err
	}
	if opts.Bounds, err = raster.TargetBounds(aoiWKT, config.EPSG); err != nil {
		return "", err
	}

	mosaicFile := ""
	err = service.Retriable(ctx, func() error {
		mosaicFile, err = builder.BuildMosaic(ctx, config.Product, config.Year, opts)
		return err
	}, 30*time.Second, 10)
	return mosaicFile, err
}

// initGDAL registers the raster drivers and the object-store VSI
// handler matching the storage uri. HTTP assets go through vsicurl.
func initGDAL(ctx context.Context, config *config) error {
	godal.RegisterAll()
	if strings.HasPrefix(config.StorageURI, "gs://") {
		handler, err := osioGcs.Handle(ctx)
		if err != nil {
			return fmt.Errorf("gcs handle: %w", err)
		}
		adapter, err := osio.NewAdapter(handler)
		if err != nil {
			return fmt.Errorf("osio adapter: %w", err)
		}
		if err := godal.RegisterVSIHandler("gs://", adapter); err != nil {
			return fmt.Errorf("register vsi handler: %w", err)
		}
	}
	return nil
}
