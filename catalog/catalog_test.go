package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/pacificgeo/landsat-mosaic/common"
)

type fakeProvider struct {
	calls  [][4]float64
	scenes map[[4]float64][]common.SceneReference
}

func (p *fakeProvider) SearchScenes(ctx context.Context, collection string, cell common.GridCell, tr common.TimeRange, bbox [4]float64) ([]common.SceneReference, error) {
	p.calls = append(p.calls, bbox)
	return p.scenes[bbox], nil
}

func TestFindScenesEmpty(t *testing.T) {
	cell := common.GridCell{Path: 97, Row: 71, GeometryWKT: "POLYGON ((10 -5, 20 -5, 20 5, 10 5, 10 -5))"}
	scenes, err := FindScenes(context.Background(), &fakeProvider{}, "landsat-c2-l2", cell, common.Year(2021))
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 0 {
		t.Errorf("expecting no scenes, found %d", len(scenes))
	}
}

func TestFindScenesAntimeridian(t *testing.T) {
	// A cell straddling ±180° produces an inverted bbox that must be
	// split; scenes returned by both halves are de-duplicated.
	cell := common.GridCell{Path: 73, Row: 71, GeometryWKT: "POLYGON ((-170 -20, 170 -20, 170 -10, -170 -10, -170 -20))"}
	east := [4]float64{170, -20, 180, -10}
	west := [4]float64{-180, -20, -170, -10}
	t1 := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &fakeProvider{scenes: map[[4]float64][]common.SceneReference{
		east: {{ID: "LC08_A", AcquiredAt: t1}, {ID: "LC08_B", AcquiredAt: t2}},
		west: {{ID: "LC08_A", AcquiredAt: t1}},
	}}

	scenes, err := FindScenes(context.Background(), p, "landsat-c2-l2", cell, common.Year(2021))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.calls) != 2 {
		t.Fatalf("expecting 2 searches, found %d", len(p.calls))
	}
	if len(scenes) != 2 {
		t.Fatalf("expecting 2 deduplicated scenes, found %d", len(scenes))
	}
	if scenes[0].ID != "LC08_B" {
		t.Errorf("expecting scenes sorted by acquisition time, found %s first", scenes[0].ID)
	}
}

func TestFixEPSG(t *testing.T) {
	tests := []struct {
		in     int
		out    int
		defect bool
	}{
		{326029, 32629, false}, // zone padding defect
		{327060, 32760, false},
		{32629, 32629, false}, // already correct: idempotent
		{32760, 32760, false},
		{8859, 8859, true},     // not a UTM code
		{326, 326, true},       // too short
		{326099, 326099, true}, // zone out of range
	}
	for _, tt := range tests {
		out, err := fixEPSG(tt.in)
		if tt.defect {
			if err == nil {
				t.Errorf("fixEPSG(%d): expecting a defect error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("fixEPSG(%d): %v", tt.in, err)
		}
		if out != tt.out {
			t.Errorf("fixEPSG(%d): expecting %d, found %d", tt.in, tt.out, out)
		}
	}
}

func TestFixEPSGIdempotent(t *testing.T) {
	once, err := fixEPSG(326029)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := fixEPSG(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Errorf("correction is not idempotent: %d != %d", once, twice)
	}
}

func TestFixSceneEPSGCopies(t *testing.T) {
	scenes := []common.SceneReference{{ID: "LC08_A", EPSG: 326029}, {ID: "LC08_B", EPSG: 99}}
	fixed := FixSceneEPSG(context.Background(), scenes)
	if scenes[0].EPSG != 326029 {
		t.Error("input scene was mutated")
	}
	if fixed[0].EPSG != 32629 {
		t.Errorf("expecting 32629, found %d", fixed[0].EPSG)
	}
	if fixed[1].EPSG != 99 {
		t.Errorf("defective scene must keep its value, found %d", fixed[1].EPSG)
	}
}
