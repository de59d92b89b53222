// Package grid intersects the area of interest with the acquisition
// grid to produce the ordered list of cells to process.
package grid

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
	"github.com/pacificgeo/landsat-mosaic/service/geometry"
)

// Resolve reads a grid partition layer (GeoJSON features carrying PATH
// and ROW properties) and the AOI layer, and returns the cells whose
// footprint intersects the AOI, in partition order, each clipped to the
// AOI. Cells with an empty intersection are not emitted. Duplicate
// path/row keys in the partition are an error.
func Resolve(cellsPath, aoiPath string) ([]common.GridCell, error) {
	aoi, err := loadAOI(aoiPath)
	if err != nil {
		return nil, fmt.Errorf("Resolve.%w", err)
	}

	fc, err := loadFeatureCollection(cellsPath)
	if err != nil {
		return nil, fmt.Errorf("Resolve.%w", err)
	}

	var cells []common.GridCell
	seen := service.StringSet{}
	for _, f := range fc.Features {
		path, err := intProperty(f.Properties, "PATH")
		if err != nil {
			return nil, fmt.Errorf("Resolve[%s].%w", cellsPath, err)
		}
		row, err := intProperty(f.Properties, "ROW")
		if err != nil {
			return nil, fmt.Errorf("Resolve[%s].%w", cellsPath, err)
		}
		cell := common.GridCell{Path: path, Row: row}
		if seen.Exists(cell.Key()) {
			return nil, fmt.Errorf("Resolve[%s]: duplicate cell %s in grid partition", cellsPath, cell)
		}
		seen.Push(cell.Key())

		footprint, err := geos.FromWKT(wkt.MustEncode(f.Geometry.Geometry))
		if err != nil {
			return nil, fmt.Errorf("Resolve[%s].FromWKT: %w", cell, err)
		}
		clipped, ok, err := geometry.Intersection(footprint, aoi)
		if err != nil {
			return nil, fmt.Errorf("Resolve[%s].%w", cell, err)
		}
		if !ok {
			continue
		}
		cell.GeometryWKT = clipped
		cells = append(cells, cell)
	}
	runtime.KeepAlive(aoi)
	return cells, nil
}

// AOIWKT merges the AOI layer into a single geometry and returns its
// WKT, for callers needing the overall footprint (mosaic bounds).
func AOIWKT(path string) (string, error) {
	aoi, err := loadAOI(path)
	if err != nil {
		return "", fmt.Errorf("AOIWKT.%w", err)
	}
	wkt, err := aoi.ToWKT()
	if err != nil {
		return "", fmt.Errorf("AOIWKT.ToWKT: %w", err)
	}
	return wkt, nil
}

// loadAOI reads the AOI layer and merges its features into one geometry.
func loadAOI(path string) (*geos.Geometry, error) {
	fc, err := loadFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("loadAOI[%s]: no features", path)
	}
	geoms := make([]*geos.Geometry, len(fc.Features))
	for i, f := range fc.Features {
		if geoms[i], err = geos.FromWKT(wkt.MustEncode(f.Geometry.Geometry)); err != nil {
			return nil, fmt.Errorf("loadAOI[%s].FromWKT: %w", path, err)
		}
	}
	if len(geoms) == 1 {
		return geoms[0], nil
	}
	union, err := geometry.UnaryUnion(geoms)
	if err != nil {
		return nil, fmt.Errorf("loadAOI[%s].%w", path, err)
	}
	return union, nil
}

func loadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadFeatureCollection: %w", err)
	}
	fc := geojson.FeatureCollection{}
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("loadFeatureCollection[%s].Unmarshal: %w", path, err)
	}
	return &fc, nil
}

func intProperty(props map[string]interface{}, name string) (int, error) {
	switch v := props[name].(type) {
	case float64:
		return int(v), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
			return 0, fmt.Errorf("intProperty: property %s=%q is not an integer", name, v)
		}
		return i, nil
	}
	return 0, fmt.Errorf("intProperty: missing property %s", name)
}
