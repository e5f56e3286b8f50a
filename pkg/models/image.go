package models

// UnknownFileName is reported when a source cannot resolve a display name
const UnknownFileName = "Unknown"

// ImageHandle is an opaque reference to a storage-resident image
// (a path, blob name or URL depending on the source)
type ImageHandle string

// String returns the raw handle value
func (h ImageHandle) String() string {
	return string(h)
}

// ImageResult is the outcome of scoring one image in a batch run
type ImageResult struct {
	ID        ImageHandle `json:"id" yaml:"id"`
	FileName  string      `json:"file_name" yaml:"file_name"`
	IsBlurred bool        `json:"is_blurred" yaml:"is_blurred"`
	Threshold float64     `json:"threshold" yaml:"threshold"`
	Score     float64     `json:"score" yaml:"score"`

	// Degenerate marks a zero-dimension buffer, scored 0 and treated as blurred
	Degenerate bool `json:"degenerate,omitempty" yaml:"degenerate,omitempty"`

	// Error is set when the image could not be decoded or scored.
	// Failed results are never classified as blurred.
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty" yaml:"error_type,omitempty"`

	// Deleted is set once a later deletion removed the image
	Deleted bool `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Failed reports whether the image could not be scored
func (r ImageResult) Failed() bool {
	return r.Error != ""
}

// BlurredHandles returns the identifiers of blurred results in result order.
// Failed and already deleted results are skipped.
func BlurredHandles(results []ImageResult) []ImageHandle {
	blurred := make([]ImageHandle, 0)
	for _, r := range results {
		if r.IsBlurred && !r.Failed() && !r.Deleted {
			blurred = append(blurred, r.ID)
		}
	}
	return blurred
}
