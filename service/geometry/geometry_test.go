package geometry

import (
	"testing"

	"github.com/paulsmith/gogeos/geos"
)

func TestWKTBounds(t *testing.T) {
	ext, err := WKTBounds("POLYGON ((10 -5, 20 -5, 20 5, 10 5, 10 -5))")
	if err != nil {
		t.Fatal(err)
	}
	if ext.MinX() != 10 || ext.MinY() != -5 || ext.MaxX() != 20 || ext.MaxY() != 5 {
		t.Errorf("unexpected extent %v", ext)
	}
}

func TestSplitBBoxNoCrossing(t *testing.T) {
	boxes := SplitBBox([4]float64{10, -5, 20, 5})
	if len(boxes) != 1 || boxes[0] != [4]float64{10, -5, 20, 5} {
		t.Errorf("unexpected boxes %v", boxes)
	}

	// A box spanning Greenwich is not an antimeridian crossing.
	boxes = SplitBBox([4]float64{-10, -5, 20, 5})
	if len(boxes) != 1 {
		t.Errorf("unexpected boxes %v", boxes)
	}
}

func TestSplitBBoxAntimeridian(t *testing.T) {
	// A cell genuinely spanning ±180° arrives as an inverted box
	// covering nearly the whole globe.
	boxes := SplitBBox([4]float64{-170, -20, 170, -10})
	if len(boxes) != 2 {
		t.Fatalf("expecting 2 boxes, found %v", boxes)
	}
	east, west := boxes[0], boxes[1]
	if east != [4]float64{170, -20, 180, -10} {
		t.Errorf("unexpected east box %v", east)
	}
	if west != [4]float64{-180, -20, -170, -10} {
		t.Errorf("unexpected west box %v", west)
	}
	// The corrected boxes exclude the bulk of the non-crossing
	// hemisphere: together they span 20° of longitude, not 340°.
	span := (east[2] - east[0]) + (west[2] - west[0])
	if span != 20 {
		t.Errorf("expecting a 20° span, found %g", span)
	}
}

func TestIntersection(t *testing.T) {
	cell, err := geos.FromWKT("POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	if err != nil {
		t.Fatal(err)
	}
	aoi, err := geos.FromWKT("POLYGON ((5 5, 15 5, 15 15, 5 15, 5 5))")
	if err != nil {
		t.Fatal(err)
	}
	wkt, ok, err := Intersection(cell, aoi)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || wkt == "" {
		t.Fatal("expecting a non-empty intersection")
	}

	far, err := geos.FromWKT("POLYGON ((100 100, 110 100, 110 110, 100 110, 100 100))")
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err = Intersection(cell, far)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expecting an empty intersection")
	}
}
