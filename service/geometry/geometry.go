// Package geometry bridges geos geometries with go-spatial encodings and
// carries the bounding-box logic shared by the grid resolver and the
// scene fetcher.
package geometry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// WKTBounds returns the bounding box [minx, miny, maxx, maxy] of a WKT
// geometry.
func WKTBounds(wkt string) (*geom.Extent, error) {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("WKTBounds.DecodeString: %w", err)
	}
	ext, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return nil, fmt.Errorf("WKTBounds.NewExtent: %w", err)
	}
	return ext, nil
}

// SplitBBox corrects a geographic bounding box for cells genuinely
// spanning the antimeridian. A box whose longitudes run from a negative
// min to a positive max over more than a hemisphere does not cover the
// whole globe: it crosses ±180°. Such a box is split into its two
// hemisphere parts so a catalog search is never given an inverted box.
func SplitBBox(bbox [4]float64) [][4]float64 {
	minx, miny, maxx, maxy := bbox[0], bbox[1], bbox[2], bbox[3]
	if minx < 0 && maxx > 0 && maxx-minx > 180 {
		return [][4]float64{
			{maxx, miny, 180, maxy},
			{-180, miny, minx, maxy},
		}
	}
	return [][4]float64{bbox}
}

type cutlineFeature struct {
	Type       string          `json:"type"`
	Properties struct{}        `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type cutlineCollection struct {
	Type     string           `json:"type"`
	Features []cutlineFeature `json:"features"`
}

// WriteCutlineGeoJSON writes the WKT geometry as a single-feature
// GeoJSON file, usable as a warp cutline.
func WriteCutlineGeoJSON(wkt, path string) error {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return fmt.Errorf("WriteCutlineGeoJSON.DecodeString: %w", err)
	}
	gj, err := json.Marshal(geojson.Geometry{Geometry: g})
	if err != nil {
		return fmt.Errorf("WriteCutlineGeoJSON.Marshal: %w", err)
	}
	b, err := json.Marshal(cutlineCollection{
		Type:     "FeatureCollection",
		Features: []cutlineFeature{{Type: "Feature", Geometry: gj}},
	})
	if err != nil {
		return fmt.Errorf("WriteCutlineGeoJSON.Marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0666); err != nil {
		return fmt.Errorf("WriteCutlineGeoJSON.WriteFile: %w", err)
	}
	return nil
}

// UnaryUnion merges the geometries into one.
func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	union, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if union, err = union.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return union, nil
}

// Intersection clips g with the aoi and returns the result as WKT.
// ok is false when the intersection is empty.
func Intersection(g, aoi *geos.Geometry) (wkt string, ok bool, err error) {
	inter, err := g.Intersection(aoi)
	if err != nil {
		return "", false, fmt.Errorf("Intersection: %w", err)
	}
	empty, err := inter.IsEmpty()
	if err != nil {
		return "", false, fmt.Errorf("Intersection.IsEmpty: %w", err)
	}
	if empty {
		return "", false, nil
	}
	wkt, err = inter.ToWKT()
	if err != nil {
		return "", false, fmt.Errorf("Intersection.ToWKT: %w", err)
	}
	return wkt, true, nil
}
