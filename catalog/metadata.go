package catalog

import (
	"context"
	"strconv"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service/log"
	"go.uber.org/zap"
)

// The catalog truncates the UTM zone of some scenes' EPSG identifiers
// incorrectly: the digits after the datum prefix lose their leading
// zero padding (e.g. 326029 for zone 29 north, instead of 32629).
// FixSceneEPSG re-encodes the zone as two digits. Remove this call once
// the upstream catalog is fixed.
//
// Corrected copies are returned; the input scenes are never mutated.
// A scene whose identifier does not match the defect pattern keeps its
// original value and is logged (see common.ErrMetadataDefect); the
// cell is not aborted.
func FixSceneEPSG(ctx context.Context, scenes []common.SceneReference) []common.SceneReference {
	fixed := make([]common.SceneReference, len(scenes))
	for i, sc := range scenes {
		fixed[i] = sc
		epsg, err := fixEPSG(sc.EPSG)
		if err != nil {
			log.Logger(ctx).Warn("skipping epsg correction", zap.String("scene", sc.ID), zap.Int("epsg", sc.EPSG))
			continue
		}
		fixed[i].EPSG = epsg
	}
	return fixed
}

// fixEPSG re-encodes a UTM EPSG identifier as datum prefix plus a
// two-digit zone. Idempotent: a correct identifier maps to itself.
func fixEPSG(epsg int) (int, error) {
	s := strconv.Itoa(epsg)
	if len(s) < 5 || len(s) > 6 {
		return epsg, common.ErrMetadataDefect{EPSG: epsg}
	}
	prefix := s[:3]
	if prefix != "326" && prefix != "327" {
		return epsg, common.ErrMetadataDefect{EPSG: epsg}
	}
	zone, err := strconv.Atoi(s[3:])
	if err != nil || zone < 1 || zone > 60 {
		return epsg, common.ErrMetadataDefect{EPSG: epsg}
	}
	p, _ := strconv.Atoi(prefix)
	return p*100 + zone, nil
}
