package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/product"
	"github.com/pacificgeo/landsat-mosaic/raster"
	"github.com/pacificgeo/landsat-mosaic/service"
)

// fakeProvider returns canned scenes per cell key.
type fakeProvider struct {
	scenes map[string][]common.SceneReference
}

func (p *fakeProvider) SearchScenes(ctx context.Context, collection string, cell common.GridCell, tr common.TimeRange, bbox [4]float64) ([]common.SceneReference, error) {
	return p.scenes[cell.Key()], nil
}

// fakeStack serves a tiny in-memory grid. values[band][t] are full-grid
// planes.
type fakeStack struct {
	grid   raster.GridSpec
	times  []time.Time
	bands  []string
	values map[string][][]float64
}

func (s *fakeStack) Grid() raster.GridSpec { return s.grid }
func (s *fakeStack) Times() []time.Time    { return s.times }
func (s *fakeStack) Bands() []string       { return s.bands }
func (s *fakeStack) Chunks() []raster.Window {
	return s.grid.Windows(2) // several windows, to exercise blitting
}
func (s *fakeStack) Close() error { return nil }

func (s *fakeStack) ReadChunk(band string, t int, w raster.Window) ([]float64, error) {
	plane, ok := s.values[band]
	if !ok {
		return nil, fmt.Errorf("no band %s", band)
	}
	out := make([]float64, w.W*w.H)
	for row := 0; row < w.H; row++ {
		for col := 0; col < w.W; col++ {
			out[row*w.W+col] = plane[t][(w.Y+row)*s.grid.Width+w.X+col]
		}
	}
	return out, nil
}

// ndviAlgorithm-friendly fixture: a 3x2 grid with two timesteps. The
// second timestep's QA band is fully cloudy, so only the first
// contributes. Pixel (2,1) is null in both timesteps.
func newFakeStack() *fakeStack {
	nan := math.NaN()
	w, h := 3, 2
	// Digital numbers chosen so reflectance is simple after the
	// 0.0000275/-0.2 correction.
	red := []float64{10000, 10000, 10000, 10000, 10000, nan}
	nir := []float64{20000, 20000, 20000, 20000, 20000, nan}
	qaClear := []float64{0, 0, 0, 0, 0, 0}
	qaCloud := []float64{8, 8, 8, 8, 8, 8} // bit 3: cloud
	return &fakeStack{
		grid: raster.GridSpec{
			EPSG:         8859,
			GeoTransform: [6]float64{0, 30, 0, 60, 0, -30},
			Width:        w,
			Height:       h,
		},
		times: []time.Time{
			time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		bands: []string{common.BandRed, common.BandNIR, common.BandQA},
		values: map[string][][]float64{
			common.BandRed: {red, red},
			common.BandNIR: {nir, nir},
			common.BandQA:  {qaClear, qaCloud},
		},
	}
}

func scene(id string, epsg int) common.SceneReference {
	return common.SceneReference{
		ID:         id,
		AcquiredAt: time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		EPSG:       epsg,
		Assets:     map[string]string{"red": id + "/red.tif", "nir08": id + "/nir.tif", "qa_pixel": id + "/qa.tif"},
	}
}

func newTestProcessor(t *testing.T, store service.Storage, provider *fakeProvider) *Processor {
	t.Helper()
	p, err := New(Config{
		Algorithm:  product.NDVI{},
		Provider:   provider,
		Collection: "landsat-c2-l2",
		Store:      store,
		Year:       2021,
		WorkDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}
	p.buildStack = func(ctx context.Context, scenes []common.SceneReference, opts raster.StackOptions) (raster.Stack, error) {
		return newFakeStack(), nil
	}
	p.writeCOG = func(path string, planes [][]int16, opts raster.COGOptions) error {
		b, err := json.Marshal(planes)
		if err != nil {
			return err
		}
		return os.WriteFile(path, b, 0666)
	}
	return p
}

// TestRunEndToEnd covers the two-cell scenario: one cell without
// imagery is skipped with a reason, the other produces a quantized
// raster whose no-data pixels are exactly those null in every
// timestep.
func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemStorage()
	provider := &fakeProvider{scenes: map[string][]common.SceneReference{
		"097_072": {scene("LC08_A", 326055), scene("LC09_B", 32655)},
	}}
	p := newTestProcessor(t, store, provider)

	cells := []common.GridCell{
		{Path: 97, Row: 71, GeometryWKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{Path: 97, Row: 72, GeometryWKT: "POLYGON((1 0,2 0,2 1,1 1,1 0))"},
	}
	results, err := p.Run(ctx, cells)
	if err != nil {
		t.Fatal(err)
	}

	if results[0].Status != common.StatusSKIPPED {
		t.Errorf("empty cell: %+v", results[0])
	}
	if results[0].Message == "" {
		t.Error("skipped cell carries no reason")
	}
	if results[1].Status != common.StatusDONE {
		t.Fatalf("imaged cell: %+v", results[1])
	}

	// The uploaded raster has ndvi = (0.35 - 0.075)/(0.35 + 0.075)
	// everywhere except the always-null pixel.
	r, err := store.Get(ctx, "ndvi/2021/ndvi_2021_097_072.tif")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(r)
	r.Close()
	var planes [][]int16
	if err := json.Unmarshal(b, &planes); err != nil {
		t.Fatal(err)
	}
	want := int16(math.Round((0.35 - 0.075) / (0.35 + 0.075) * raster.DefaultMultiplier))
	plane := planes[0]
	for i := 0; i < 5; i++ {
		if plane[i] != want {
			t.Errorf("pixel %d: %d, want %d", i, plane[i], want)
		}
	}
	if plane[5] != raster.DefaultNoData {
		t.Errorf("always-null pixel stored %d, want nodata", plane[5])
	}

	// The manifest records the completed cell only.
	mr, err := store.Get(ctx, "ndvi/2021/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	mb, _ := io.ReadAll(mr)
	mr.Close()
	var manifest struct {
		Completed []string `json:"completed"`
	}
	if err := json.Unmarshal(mb, &manifest); err != nil {
		t.Fatal(err)
	}
	if len(manifest.Completed) != 1 || manifest.Completed[0] != "097_072" {
		t.Errorf("unexpected manifest %v", manifest.Completed)
	}
}

func TestRunSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemStorage()
	provider := &fakeProvider{scenes: map[string][]common.SceneReference{
		"097_072": {scene("LC08_A", 326055)},
	}}
	cells := []common.GridCell{{Path: 97, Row: 72, GeometryWKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"}}

	p := newTestProcessor(t, store, provider)
	if _, err := p.Run(ctx, cells); err != nil {
		t.Fatal(err)
	}

	// Second run: the manifest short-circuits the cell.
	p2 := newTestProcessor(t, store, provider)
	stacks := 0
	p2.buildStack = func(ctx context.Context, scenes []common.SceneReference, opts raster.StackOptions) (raster.Stack, error) {
		stacks++
		return newFakeStack(), nil
	}
	results, err := p2.Run(ctx, cells)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != common.StatusSKIPPED || stacks != 0 {
		t.Errorf("completed cell was reprocessed: %+v stacks=%d", results[0], stacks)
	}

	// -reprocess ignores the manifest.
	p3 := newTestProcessor(t, store, provider)
	p3.cfg.Reprocess = true
	results, err = p3.Run(ctx, cells)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != common.StatusDONE {
		t.Errorf("reprocess did not rerun the cell: %+v", results[0])
	}
}

func TestRunCellFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemStorage()
	provider := &fakeProvider{scenes: map[string][]common.SceneReference{
		"097_071": {scene("LC08_A", 326055)},
		"097_072": {scene("LC08_B", 326055)},
	}}
	p := newTestProcessor(t, store, provider)
	p.buildStack = func(ctx context.Context, scenes []common.SceneReference, opts raster.StackOptions) (raster.Stack, error) {
		if scenes[0].ID == "LC08_A" {
			return nil, fmt.Errorf("warp failed")
		}
		return newFakeStack(), nil
	}

	cells := []common.GridCell{
		{Path: 97, Row: 71, GeometryWKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{Path: 97, Row: 72, GeometryWKT: "POLYGON((1 0,2 0,2 1,1 1,1 0))"},
	}
	results, err := p.Run(ctx, cells)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != common.StatusFAILED {
		t.Errorf("failing cell: %+v", results[0])
	}
	if results[1].Status != common.StatusDONE {
		t.Errorf("sibling cell must continue: %+v", results[1])
	}
}

// A fatal error aborts the run; cells never started are reported
// PENDING, not silently counted as done.
func TestRunFatalAbort(t *testing.T) {
	ctx := context.Background()
	store := service.NewMemStorage()
	provider := &fakeProvider{scenes: map[string][]common.SceneReference{
		"097_071": {scene("LC08_A", 326055)},
		"097_072": {scene("LC08_B", 326055)},
	}}
	p := newTestProcessor(t, store, provider)
	p.buildStack = func(ctx context.Context, scenes []common.SceneReference, opts raster.StackOptions) (raster.Stack, error) {
		return nil, service.MakeFatal(fmt.Errorf("scratch volume gone"))
	}

	cells := []common.GridCell{
		{Path: 97, Row: 71, GeometryWKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{Path: 97, Row: 72, GeometryWKT: "POLYGON((1 0,2 0,2 1,1 1,1 0))"},
	}
	results, err := p.Run(ctx, cells)
	if err == nil {
		t.Fatal("expecting the fatal error to surface")
	}
	if results[0].Status != common.StatusFAILED {
		t.Errorf("fatal cell: %+v", results[0])
	}
	if results[1].Status != common.StatusPENDING {
		t.Errorf("unstarted cell must stay pending: %+v", results[1])
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expecting an error for a missing algorithm")
	}
	// A quantizer collision is a configuration error, caught up front.
	_, err := New(Config{
		Algorithm:  product.NDVI{},
		Provider:   &fakeProvider{},
		Store:      service.NewMemStorage(),
		Multiplier: 10000,
		NoData:     5000,
	})
	if err == nil {
		t.Error("expecting an error for a colliding nodata")
	}
}
