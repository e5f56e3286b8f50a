package strategy

import (
	"fmt"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

const (
	// DefaultDisplayChunkSize keeps UI-driven scans responsive
	DefaultDisplayChunkSize = 30
	// DefaultPurgeChunkSize favours throughput for scan-then-delete runs
	DefaultPurgeChunkSize = 100
)

// ScanStrategy decides how a run is chunked and what the caller gets back
type ScanStrategy interface {
	Mode() models.ScanMode
	ChunkSize() int
	// Present shapes a finished report for the caller. The stored report is
	// never modified.
	Present(report *models.ScanReport) *models.ScanReport
	GetStrategyName() string
}

// DisplayStrategy scores everything and returns every result
type DisplayStrategy struct {
	chunkSize int
}

// NewDisplayStrategy creates a display strategy. Non-positive sizes use the default.
func NewDisplayStrategy(chunkSize int) ScanStrategy {
	if chunkSize <= 0 {
		chunkSize = DefaultDisplayChunkSize
	}
	return &DisplayStrategy{chunkSize: chunkSize}
}

func (s *DisplayStrategy) Mode() models.ScanMode { return models.ScanModeDisplay }

func (s *DisplayStrategy) ChunkSize() int { return s.chunkSize }

// Present returns the report unchanged
func (s *DisplayStrategy) Present(report *models.ScanReport) *models.ScanReport {
	return report
}

// GetStrategyName returns the strategy name
func (s *DisplayStrategy) GetStrategyName() string {
	return "display_scan"
}

// PurgeStrategy scores everything in larger chunks and hands back only the
// blurred identifiers for deletion
type PurgeStrategy struct {
	chunkSize int
}

// NewPurgeStrategy creates a purge strategy. Non-positive sizes use the default.
func NewPurgeStrategy(chunkSize int) ScanStrategy {
	if chunkSize <= 0 {
		chunkSize = DefaultPurgeChunkSize
	}
	return &PurgeStrategy{chunkSize: chunkSize}
}

func (s *PurgeStrategy) Mode() models.ScanMode { return models.ScanModePurge }

func (s *PurgeStrategy) ChunkSize() int { return s.chunkSize }

// Present drops per-image results and keeps the blurred identifiers
func (s *PurgeStrategy) Present(report *models.ScanReport) *models.ScanReport {
	out := *report
	out.Results = nil
	out.BlurredIDs = append([]models.ImageHandle(nil), report.BlurredIDs...)
	return &out
}

// GetStrategyName returns the strategy name
func (s *PurgeStrategy) GetStrategyName() string {
	return "purge_scan"
}

// ScanContext picks a strategy per request
type ScanContext struct {
	strategies map[models.ScanMode]ScanStrategy
}

// NewScanContext creates a context over the given strategies
func NewScanContext(strategies ...ScanStrategy) *ScanContext {
	c := &ScanContext{strategies: make(map[models.ScanMode]ScanStrategy, len(strategies))}
	for _, s := range strategies {
		c.strategies[s.Mode()] = s
	}
	return c
}

// ForMode returns the strategy for a mode. An empty mode means display.
func (c *ScanContext) ForMode(mode models.ScanMode) (ScanStrategy, error) {
	if mode == "" {
		mode = models.ScanModeDisplay
	}
	s, ok := c.strategies[mode]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported scan mode: %s", mode), nil)
	}
	return s, nil
}

// Resolve fills the request's unset threshold and chunk size from the
// strategy and the configured default threshold
func (c *ScanContext) Resolve(req models.ScanRequest, defaultThreshold float64) (ScanStrategy, float64, int, error) {
	s, err := c.ForMode(req.Mode)
	if err != nil {
		return nil, 0, 0, err
	}

	threshold := defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	chunkSize := s.ChunkSize()
	if req.ChunkSize != nil {
		chunkSize = *req.ChunkSize
	}
	return s, threshold, chunkSize, nil
}
