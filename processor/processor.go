// Package processor drives the per-cell pipeline: scene lookup,
// metadata correction, stacking, masking, correction, algorithm
// computation, quantization and upload, then the run-level fan-out.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pacificgeo/landsat-mosaic/catalog"
	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/product"
	"github.com/pacificgeo/landsat-mosaic/raster"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/log"
)

// Config parameterizes one product/year run.
type Config struct {
	Algorithm  product.Algorithm
	Provider   catalog.Provider
	Collection string
	Store      service.Storage
	Year       int

	TargetEPSG int     // default raster.DefaultTargetEPSG
	Resolution float64 // default raster.DefaultResolution
	ChunkSize  int     // default raster.DefaultChunkSize

	// Multiplier and NoData of the quantized outputs; defaults
	// raster.DefaultMultiplier / raster.DefaultNoData.
	Multiplier float64
	NoData     int16

	// WorkDir is the scratch root; each cell gets a private subdir.
	WorkDir string
	// Concurrency bounds the number of cells processed in parallel.
	Concurrency int
	// Reprocess ignores the completion manifest.
	Reprocess bool
}

// Processor runs the pipeline over the cells of a grid.
type Processor struct {
	cfg       Config
	quantizer *raster.Quantizer

	// Raster entry points, replaceable in tests.
	buildStack func(ctx context.Context, scenes []common.SceneReference, opts raster.StackOptions) (raster.Stack, error)
	writeCOG   func(path string, planes [][]int16, opts raster.COGOptions) error
}

func New(cfg Config) (*Processor, error) {
	if cfg.Algorithm == nil || cfg.Provider == nil || cfg.Store == nil {
		return nil, fmt.Errorf("New: missing algorithm, provider or store")
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = raster.DefaultMultiplier
	}
	if cfg.NoData == 0 {
		cfg.NoData = raster.DefaultNoData
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	quantizer, err := raster.NewQuantizer(cfg.Multiplier, cfg.NoData, cfg.Algorithm.ValueRange())
	if err != nil {
		return nil, fmt.Errorf("New.%w", err)
	}
	return &Processor{
		cfg:        cfg,
		quantizer:  quantizer,
		buildStack: raster.BuildStack,
		writeCOG:   raster.WriteCOG,
	}, nil
}

// Run processes every cell, at most cfg.Concurrency at a time. A cell
// failure is recorded and its siblings continue; only a fatal error or
// a cancelled context aborts the run, and cells not started by then are
// reported PENDING. The completion manifest is updated as cells finish
// and persisted at the end.
func (p *Processor) Run(ctx context.Context, cells []common.GridCell) ([]common.CellResult, error) {
	manifest, err := LoadManifest(ctx, p.cfg.Store, p.cfg.Algorithm.Name(), p.cfg.Year)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}

	results := make([]common.CellResult, len(cells))
	for i, cell := range cells {
		results[i] = common.CellResult{Cell: cell, Status: common.StatusPENDING}
	}
	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			// A fatal abort cancels the group: cells not yet started
			// stay pending instead of burning through a doomed pipeline.
			if gctx.Err() != nil {
				return nil
			}
			start := time.Now()
			var cellErr error
			results[i], cellErr = p.runCell(gctx, cell, manifest)
			log.Logger(gctx).Sugar().Infof("%s | %03d/%03d | %s | %ds",
				cell, done.Add(1), len(cells), results[i].Status, int(time.Since(start).Seconds()))
			if cellErr != nil && service.Fatal(cellErr) {
				return cellErr
			}
			return nil
		})
	}
	runErr := g.Wait()

	if err := manifest.Save(ctx, p.cfg.Store); err != nil {
		log.Logger(ctx).Error("manifest not saved", zap.Error(err))
	}

	counts := map[common.Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	log.Logger(ctx).Info("run complete",
		zap.String("product", p.cfg.Algorithm.Name()),
		zap.Int("year", p.cfg.Year),
		zap.Int("done", counts[common.StatusDONE]),
		zap.Int("skipped", counts[common.StatusSKIPPED]),
		zap.Int("failed", counts[common.StatusFAILED]),
		zap.Int("pending", counts[common.StatusPENDING]))
	return results, runErr
}

func (p *Processor) runCell(ctx context.Context, cell common.GridCell, manifest *Manifest) (common.CellResult, error) {
	if !p.cfg.Reprocess && manifest.Done(cell) {
		return common.CellResult{Cell: cell, Status: common.StatusSKIPPED, Message: "already processed"}, nil
	}
	if err := p.processCell(ctx, cell); err != nil {
		var noImagery common.ErrNoImagery
		if errors.As(err, &noImagery) {
			log.Logger(ctx).Sugar().Infof("%s | ** NO ITEMS **", cell)
			return common.CellResult{Cell: cell, Status: common.StatusSKIPPED, Message: err.Error()}, nil
		}
		log.Logger(ctx).Error("cell failed", zap.String("cell", cell.Key()), zap.Error(err))
		return common.CellResult{Cell: cell, Status: common.StatusFAILED, Message: err.Error()}, err
	}
	manifest.MarkDone(cell)
	return common.CellResult{Cell: cell, Status: common.StatusDONE}, nil
}

// processCell runs the whole pipeline for one cell and uploads the
// quantized raster.
func (p *Processor) processCell(ctx context.Context, cell common.GridCell) error {
	alg := p.cfg.Algorithm
	scenes, err := catalog.FindScenes(ctx, p.cfg.Provider, p.cfg.Collection, cell, common.Year(p.cfg.Year))
	if err != nil {
		return fmt.Errorf("processCell.%w", err)
	}
	if len(scenes) == 0 {
		return common.ErrNoImagery{Cell: cell}
	}
	scenes = catalog.FixSceneEPSG(ctx, scenes)

	workDir := filepath.Join(p.cfg.WorkDir, uuid.New().String())
	if err := os.MkdirAll(workDir, 0766); err != nil {
		return fmt.Errorf("processCell.MkdirAll: %w", err)
	}
	defer os.RemoveAll(workDir)

	stack, err := p.buildStack(ctx, scenes, raster.StackOptions{
		Cell:       cell,
		TargetEPSG: p.cfg.TargetEPSG,
		Resolution: p.cfg.Resolution,
		ChunkSize:  p.cfg.ChunkSize,
		CutlineWKT: cell.GeometryWKT,
		Bands:      append(append([]string{}, alg.Bands()...), common.BandQA),
		WorkDir:    workDir,
	})
	if err != nil {
		return fmt.Errorf("processCell.%w", err)
	}
	defer stack.Close()

	grid := stack.Grid()
	planes := make([][]int16, len(alg.Outputs()))
	for i := range planes {
		planes[i] = make([]int16, grid.Width*grid.Height)
	}

	for _, window := range stack.Chunks() {
		outs, err := p.computeChunk(stack, window)
		if err != nil {
			return fmt.Errorf("processCell.%w", err)
		}
		for oi, out := range outs {
			blit(planes[oi], grid.Width, window, p.quantizer.Quantize(out))
		}
	}

	key := common.CellRasterKey(alg.Name(), p.cfg.Year, cell)
	cogPath := filepath.Join(workDir, path.Base(key))
	if err := p.writeCOG(cogPath, planes, raster.COGOptions{
		Grid:   grid,
		NoData: p.quantizer.NoData,
		Scale:  p.quantizer.Scale(),
	}); err != nil {
		return fmt.Errorf("processCell.%w", err)
	}

	f, err := os.Open(cogPath)
	if err != nil {
		return fmt.Errorf("processCell.Open: %w", err)
	}
	defer f.Close()
	if err := p.cfg.Store.Put(ctx, key, f); err != nil {
		return fmt.Errorf("processCell.%w", err)
	}
	return nil
}

// computeChunk reads, masks and corrects every band×timestep of one
// window, then runs the algorithm.
func (p *Processor) computeChunk(stack raster.Stack, window raster.Window) ([][]float64, error) {
	alg := p.cfg.Algorithm
	frames := make([]product.Frame, len(stack.Times()))
	for t := range frames {
		qa, err := stack.ReadChunk(common.BandQA, t, window)
		if err != nil {
			return nil, fmt.Errorf("computeChunk.%w", err)
		}
		bands := make(map[string][]float64, len(alg.Bands()))
		for _, band := range alg.Bands() {
			values, err := stack.ReadChunk(band, t, window)
			if err != nil {
				return nil, fmt.Errorf("computeChunk.%w", err)
			}
			// Masking precedes correction so invalid pixels stay null
			// through the linear transforms.
			raster.ApplyQAMask(values, qa, raster.LandsatC2QA)
			raster.ApplyScaleOffset(values, raster.LandsatSRScale, raster.LandsatSROffset)
			raster.ApplyRescale(values, alg.SecondaryScale())
			bands[band] = values
		}
		frames[t] = product.Frame{W: window.W, H: window.H, Bands: bands}
	}
	outs, err := alg.Compute(frames)
	if err != nil {
		return nil, fmt.Errorf("computeChunk.%w", err)
	}
	return outs, nil
}

// blit copies a quantized window into its position in the full plane.
func blit(plane []int16, gridWidth int, w raster.Window, chunk []int16) {
	for row := 0; row < w.H; row++ {
		offset := (w.Y+row)*gridWidth + w.X
		copy(plane[offset:offset+w.W], chunk[row*w.W:(row+1)*w.W])
	}
}
