package tiler

import (
	"context"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/airbusgeo/godal"

	"github.com/pacificgeo/landsat-mosaic/service"
)

const wofsRamp = `# water frequency, stored units
nv 0 0 0 0
0 255 255 255 0
5000 100 150 255
10000 0 0 255 255
`

func TestParseColorRamp(t *testing.T) {
	ramp, err := ParseColorRamp(strings.NewReader(wofsRamp))
	if err != nil {
		t.Fatal(err)
	}

	// Exact stops.
	if c := ramp.Lookup(0); c != (color.NRGBA{255, 255, 255, 0}) {
		t.Errorf("unexpected color at 0: %v", c)
	}
	// Missing alpha defaults to opaque.
	if c := ramp.Lookup(5000); c != (color.NRGBA{100, 150, 255, 255}) {
		t.Errorf("unexpected color at 5000: %v", c)
	}
	// Linear interpolation halfway between stops.
	if c := ramp.Lookup(7500); c != (color.NRGBA{50, 75, 255, 255}) {
		t.Errorf("unexpected color at 7500: %v", c)
	}
	// Clamped outside the stops.
	if c := ramp.Lookup(-100); c != (color.NRGBA{255, 255, 255, 0}) {
		t.Errorf("unexpected color below range: %v", c)
	}
	if c := ramp.Lookup(20000); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("unexpected color above range: %v", c)
	}
	// No-data is transparent.
	if c := ramp.Lookup(math.NaN()); c != (color.NRGBA{}) {
		t.Errorf("unexpected nodata color: %v", c)
	}
}

func TestParseColorRampErrors(t *testing.T) {
	for _, bad := range []string{
		"",
		"# only comments\n",
		"0 255 255\n",
		"0 255 255 255 255 255\n",
		"zero 255 255 255\n",
		"0 999 0 0\n",
	} {
		if _, err := ParseColorRamp(strings.NewReader(bad)); err == nil {
			t.Errorf("expecting an error for %q", bad)
		}
	}
}

func TestRampImage(t *testing.T) {
	ramp, err := ParseColorRamp(strings.NewReader(wofsRamp))
	if err != nil {
		t.Fatal(err)
	}
	img := ramp.Image([]float64{0, 10000, math.NaN(), 5000}, 2, 2)
	if c := img.NRGBAAt(1, 0); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("unexpected pixel (1,0): %v", c)
	}
	if c := img.NRGBAAt(0, 1); c != (color.NRGBA{}) {
		t.Errorf("nodata pixel must be transparent, got %v", c)
	}
}

// TestBuildTiles cuts a zoom-1 pyramid from a tiny world-spanning
// mosaic and checks that every tile is uploaded and that the scratch
// warp dataset does not outlive the build.
func TestBuildTiles(t *testing.T) {
	godal.RegisterAll()
	ctx := context.Background()
	dir := t.TempDir()

	mosaicFile := filepath.Join(dir, "wofs_2021.tif")
	ds, err := godal.Create(godal.GTiff, mosaicFile, 1, godal.Int16, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetGeoTransform([6]float64{-webMercMax, webMercMax, 0, webMercMax, 0, -webMercMax}); err != nil {
		t.Fatal(err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(3857)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatal(err)
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(-32767); err != nil {
		t.Fatal(err)
	}
	if err := band.Write(0, 0, []int16{5000, 5000, 5000, -32767}, 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	ramp, err := ParseColorRamp(strings.NewReader(wofsRamp))
	if err != nil {
		t.Fatal(err)
	}
	workDir := filepath.Join(dir, "work")
	if err := os.MkdirAll(workDir, 0766); err != nil {
		t.Fatal(err)
	}

	store := service.NewMemStorage()
	tl := Tiler{Store: store, Ramp: ramp}
	err = tl.BuildTiles(ctx, mosaicFile, Options{
		Product:  "wofs",
		Year:     2021,
		MinZoom:  1,
		MaxZoom:  1,
		TileSize: 8,
		WorkDir:  workDir,
	})
	if err != nil {
		t.Fatal(err)
	}

	keys, err := store.List(ctx, "tiles/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 4 {
		t.Fatalf("expecting 4 zoom-1 tiles, found %d: %v", len(keys), keys)
	}
	r, err := store.Get(ctx, "tiles/wofs_2021/1/0/0.png")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	cfg, err := png.DecodeConfig(r)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 8 || cfg.Height != 8 {
		t.Errorf("unexpected tile size %dx%d", cfg.Width, cfg.Height)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch files left in the working directory: %v", entries)
	}
}

func TestTileExtent(t *testing.T) {
	// Zoom 0 is the whole mercator square.
	minx, miny, maxx, maxy := tileExtent(0, 0, 0)
	if minx != -webMercMax || maxx != webMercMax || miny != -webMercMax || maxy != webMercMax {
		t.Errorf("unexpected zoom-0 extent %v %v %v %v", minx, miny, maxx, maxy)
	}
	// Tile (1,1,1) is the south-east quadrant.
	minx, miny, maxx, maxy = tileExtent(1, 1, 1)
	if minx != 0 || maxy != 0 || maxx != webMercMax || miny != -webMercMax {
		t.Errorf("unexpected (1,1,1) extent %v %v %v %v", minx, miny, maxx, maxy)
	}
}

func TestTileRange(t *testing.T) {
	// A small box just east and south of the origin.
	bounds := [4]float64{1000, -2000, 2000, -1000}
	x0, y0, x1, y1 := tileRange(bounds, 1)
	if x0 != 1 || x1 != 1 || y0 != 1 || y1 != 1 {
		t.Errorf("unexpected range %d %d %d %d", x0, y0, x1, y1)
	}

	// The whole world at zoom 2.
	world := [4]float64{-webMercMax, -webMercMax, webMercMax, webMercMax}
	x0, y0, x1, y1 = tileRange(world, 2)
	if x0 != 0 || y0 != 0 || x1 != 3 || y1 != 3 {
		t.Errorf("unexpected range %d %d %d %d", x0, y0, x1, y1)
	}

	// Out-of-square bounds clamp.
	x0, y0, x1, y1 = tileRange([4]float64{-3e7, -3e7, 3e7, 3e7}, 1)
	if x0 != 0 || y0 != 0 || x1 != 1 || y1 != 1 {
		t.Errorf("unexpected clamped range %d %d %d %d", x0, y0, x1, y1)
	}

	// Tile count at a zoom doubles the resolution of the one above.
	if r0, r1 := tileResolution(0, 512), tileResolution(1, 512); r0 != 2*r1 {
		t.Errorf("resolutions %v %v are not halving", r0, r1)
	}
}
