package common

import (
	"fmt"
	"path"
)

// Landsat Collection-2 Level-2 band names as published by the catalog.
const (
	BandBlue   = "blue"
	BandGreen  = "green"
	BandRed    = "red"
	BandNIR    = "nir08"
	BandSWIR16 = "swir16"
	BandSWIR22 = "swir22"
	BandQA     = "qa_pixel"
)

// ProductPrefix returns the storage prefix shared by all artifacts of a
// product/year run: {product}/{year}/{product}_{year}
func ProductPrefix(product string, year int) string {
	return fmt.Sprintf("%s/%d/%s_%d", product, year, product, year)
}

// CellRasterKey returns the storage key of one cell's quantized raster:
// {product}/{year}/{product}_{year}_{cellkey}.tif
func CellRasterKey(product string, year int, cell GridCell) string {
	return fmt.Sprintf("%s_%s.tif", ProductPrefix(product, year), cell.Key())
}

// ManifestKey returns the storage key of the run's completion manifest.
func ManifestKey(product string, year int) string {
	return fmt.Sprintf("%s/%d/manifest.json", product, year)
}

// TileKey returns the storage key of one map tile.
func TileKey(product string, year int, z, x, y int) string {
	return path.Join("tiles", fmt.Sprintf("%s_%d", product, year),
		fmt.Sprintf("%d/%d/%d.png", z, x, y))
}

// MosaicFileName returns the local file name of the materialized mosaic.
func MosaicFileName(product string, year int) string {
	return fmt.Sprintf("%s_%d.tif", product, year)
}
