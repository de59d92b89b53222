// Package catalog resolves which scenes exist for a grid cell and time
// window, and repairs known metadata defects before any spatial
// operation is attempted.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/geometry"
	"go.uber.org/zap"

	"github.com/pacificgeo/landsat-mosaic/service/log"
)

// Provider searches an imagery catalog. Implementations live under
// interface/catalog.
type Provider interface {
	// SearchScenes returns the scenes of the collection acquired over
	// bbox within the time range, filtered to the cell's native grid
	// identifier. An empty result is not an error.
	SearchScenes(ctx context.Context, collection string, cell common.GridCell, tr common.TimeRange, bbox [4]float64) ([]common.SceneReference, error)
}

// FindScenes queries the provider for the cell's sub-AOI. Bounding
// boxes spanning the antimeridian are split into their two hemisphere
// parts and the results merged, de-duplicated by scene id and sorted by
// acquisition time. An empty result means "skip cell", never an error.
func FindScenes(ctx context.Context, p Provider, collection string, cell common.GridCell, tr common.TimeRange) ([]common.SceneReference, error) {
	ext, err := geometry.WKTBounds(cell.GeometryWKT)
	if err != nil {
		return nil, fmt.Errorf("FindScenes[%s].%w", cell, err)
	}

	var scenes []common.SceneReference
	seen := service.StringSet{}
	for _, bbox := range geometry.SplitBBox([4]float64{ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY()}) {
		found, err := p.SearchScenes(ctx, collection, cell, tr, bbox)
		if err != nil {
			return nil, fmt.Errorf("FindScenes[%s].%w", cell, err)
		}
		for _, sc := range found {
			if !seen.Exists(sc.ID) {
				seen.Push(sc.ID)
				scenes = append(scenes, sc)
			}
		}
	}

	sort.Slice(scenes, func(i, j int) bool { return scenes[i].AcquiredAt.Before(scenes[j].AcquiredAt) })
	log.Logger(ctx).Debug("scenes found", zap.String("cell", cell.Key()), zap.Int("count", len(scenes)))
	return scenes, nil
}
