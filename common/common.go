package common

import (
	"fmt"
	"time"
)

// GridCell is one tile of the acquisition grid (WRS-2 path/row for
// Landsat), clipped to the area of interest. Cells are derived once at
// the start of a run by the grid resolver and are read-only afterwards.
type GridCell struct {
	Path int `json:"path"`
	Row  int `json:"row"`
	// GeometryWKT is the intersection of the AOI with the cell
	// footprint, in the AOI's coordinate reference.
	GeometryWKT string `json:"geometry_wkt"`
}

// Key returns the stable identifier of the cell, used in output keys.
func (c GridCell) Key() string {
	return fmt.Sprintf("%03d_%03d", c.Path, c.Row)
}

func (c GridCell) String() string {
	return fmt.Sprintf("%03d-%03d", c.Path, c.Row)
}

// SceneReference is the metadata of one satellite overpass, as returned
// by the imagery catalog. It is never persisted by this system.
type SceneReference struct {
	ID         string `json:"id"`
	AcquiredAt time.Time
	// EPSG is the scene's native coordinate system. It may carry a
	// known upstream defect, see catalog.FixSceneEPSG.
	EPSG int `json:"epsg"`
	// Assets maps band names (e.g. "red", "qa_pixel") to raster hrefs.
	Assets map[string]string `json:"assets"`
}

// TimeRange is a closed acquisition interval.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Year returns the range covering the given calendar year, UTC.
func Year(y int) TimeRange {
	return TimeRange{
		Start: time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, 12, 31, 23, 59, 59, 999999999, time.UTC),
	}
}
