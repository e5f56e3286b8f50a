package models

import "time"

// NoBlurredImagesMessage is the summary reported when a run finds nothing to delete
const NoBlurredImagesMessage = "no blurred images found"

// ScanMode selects how a scan run is chunked and what it hands back
type ScanMode string

const (
	// ScanModeDisplay scores everything for presentation
	ScanModeDisplay ScanMode = "display"
	// ScanModePurge scores everything and hands off blurred identifiers for deletion
	ScanModePurge ScanMode = "purge"
)

// ScanRequest represents a request to scan the configured image source
type ScanRequest struct {
	Mode      ScanMode `json:"mode,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	ChunkSize *int     `json:"chunk_size,omitempty"`
}

// ScoreStats summarises the score distribution of successfully scored images
type ScoreStats struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Median float64 `json:"median" yaml:"median"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// ScanReport represents a completed scan run
type ScanReport struct {
	RunID             string        `json:"run_id" yaml:"run_id"`
	Source            string        `json:"source" yaml:"source"`
	Mode              ScanMode      `json:"mode" yaml:"mode"`
	Threshold         float64       `json:"threshold" yaml:"threshold"`
	ChunkSize         int           `json:"chunk_size" yaml:"chunk_size"`
	StartedAt         time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time     `json:"finished_at" yaml:"finished_at"`
	ProcessingTimeSec float64       `json:"processing_time_sec" yaml:"processing_time_sec"`
	Total             int           `json:"total" yaml:"total"`
	Blurred           int           `json:"blurred" yaml:"blurred"`
	Failed            int           `json:"failed" yaml:"failed"`
	Degenerate        int           `json:"degenerate" yaml:"degenerate"`
	Stats             ScoreStats    `json:"stats" yaml:"stats"`
	BlurredIDs        []ImageHandle `json:"blurred_ids" yaml:"blurred_ids"`
	Message           string        `json:"message,omitempty" yaml:"message,omitempty"`
	Results           []ImageResult `json:"results,omitempty" yaml:"results,omitempty"`
}

// DeletionStatus is the per-item outcome of a bulk deletion
type DeletionStatus string

const (
	DeletionDeleted    DeletionStatus = "deleted"
	DeletionFailed     DeletionStatus = "failed"
	DeletionChallenged DeletionStatus = "challenged"
	DeletionDenied     DeletionStatus = "denied"
)

// DeletionOutcome records what happened to one image during deletion
type DeletionOutcome struct {
	ID     ImageHandle    `json:"id" yaml:"id"`
	Status DeletionStatus `json:"status" yaml:"status"`
	// Token is the opaque re-authorization token of an unresolved challenge
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// DeletionReport represents per-item results of a bulk deletion
type DeletionReport struct {
	RunID      string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Requested  int               `json:"requested" yaml:"requested"`
	Deleted    int               `json:"deleted" yaml:"deleted"`
	Failed     int               `json:"failed" yaml:"failed"`
	Challenged int               `json:"challenged" yaml:"challenged"`
	Denied     int               `json:"denied" yaml:"denied"`
	Outcomes   []DeletionOutcome `json:"outcomes" yaml:"outcomes"`
	Message    string            `json:"message,omitempty" yaml:"message,omitempty"`
}

// Add records an outcome and updates the counters
func (r *DeletionReport) Add(o DeletionOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case DeletionDeleted:
		r.Deleted++
	case DeletionFailed:
		r.Failed++
	case DeletionChallenged:
		r.Challenged++
	case DeletionDenied:
		r.Denied++
	}
}

// DeletedHandles returns the identifiers that were actually removed
func (r *DeletionReport) DeletedHandles() []ImageHandle {
	deleted := make([]ImageHandle, 0, r.Deleted)
	for _, o := range r.Outcomes {
		if o.Status == DeletionDeleted {
			deleted = append(deleted, o.ID)
		}
	}
	return deleted
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`

	// Deletion carries the per-item outcomes of an interrupted deletion
	Deletion *DeletionReport `json:"deletion,omitempty"`
}
