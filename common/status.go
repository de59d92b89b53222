package common

//go:generate go run github.com/dmarkham/enumer -json -type Status -trimprefix Status

// Status is the state of one cell's processing. PENDING is the zero
// value, so cells never reached by an aborted run report as such.
type Status int

const (
	StatusPENDING Status = iota
	StatusDONE
	StatusSKIPPED
	StatusFAILED
)

// CellResult is the outcome of processing one grid cell, reported in
// the run-level summary.
type CellResult struct {
	Cell    GridCell `json:"cell"`
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
}
