package validation

import (
	"fmt"
	"math"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ScanLimits bounds the parameters a caller may override on a scan request
type ScanLimits struct {
	MaxThreshold float64
	MaxChunkSize int
}

// DefaultScanLimits returns the default request limits
func DefaultScanLimits() ScanLimits {
	return ScanLimits{
		MaxThreshold: 1e6,  // well above any photographic score
		MaxChunkSize: 1000, // one chunk's decoded buffers are held at once
	}
}

// ScanValidator checks scan requests before a run starts
type ScanValidator struct {
	limits ScanLimits
}

// NewScanValidator creates a scan validator with default limits
func NewScanValidator() *ScanValidator {
	return &ScanValidator{limits: DefaultScanLimits()}
}

// NewScanValidatorWithLimits creates a scan validator with custom limits
func NewScanValidatorWithLimits(limits ScanLimits) *ScanValidator {
	return &ScanValidator{limits: limits}
}

// ValidateScanRequest checks the fields a request sets. Unset fields are
// left for the scan strategy to default.
func (v *ScanValidator) ValidateScanRequest(req models.ScanRequest) error {
	switch req.Mode {
	case "", models.ScanModeDisplay, models.ScanModePurge:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown scan mode %q", req.Mode), nil)
	}

	if req.Threshold != nil {
		if err := v.ValidateThreshold(*req.Threshold); err != nil {
			return err
		}
	}
	if req.ChunkSize != nil {
		if err := v.ValidateChunkSize(*req.ChunkSize); err != nil {
			return err
		}
	}
	return nil
}

// ValidateThreshold accepts finite thresholds in [0, MaxThreshold]
func (v *ScanValidator) ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return apperrors.NewValidationError("threshold must be a finite number", nil)
	}
	if threshold < 0 {
		return apperrors.NewValidationError("threshold cannot be negative", nil)
	}
	if threshold > v.limits.MaxThreshold {
		return apperrors.NewValidationError(fmt.Sprintf("threshold cannot exceed %g", v.limits.MaxThreshold), nil)
	}
	return nil
}

// ValidateChunkSize accepts chunk sizes in [1, MaxChunkSize]
func (v *ScanValidator) ValidateChunkSize(size int) error {
	if size <= 0 {
		return apperrors.NewValidationError("chunk size must be positive", nil)
	}
	if size > v.limits.MaxChunkSize {
		return apperrors.NewValidationError(fmt.Sprintf("chunk size cannot exceed %d", v.limits.MaxChunkSize), nil)
	}
	return nil
}
