package common

import "fmt"

// ErrNoImagery is raised when no scene exists for a cell and time
// window. It is recoverable: the cell is skipped, siblings continue.
type ErrNoImagery struct {
	Cell GridCell
}

func (e ErrNoImagery) Error() string {
	return fmt.Sprintf("no imagery for cell %s", e.Cell)
}

// ErrMetadataDefect is raised when a scene's coordinate-system
// identifier does not match the known upstream defect pattern. It is
// localized: the correction is skipped for that scene only.
type ErrMetadataDefect struct {
	SceneID string
	EPSG    int
}

func (e ErrMetadataDefect) Error() string {
	return fmt.Sprintf("scene %s: unexpected epsg identifier %d", e.SceneID, e.EPSG)
}
