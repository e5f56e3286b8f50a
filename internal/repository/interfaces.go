package repository

import (
	"context"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ScanRepository stores the history of scan runs
type ScanRepository interface {
	// SaveRun stores a report and its results, replacing any run with the same id
	SaveRun(ctx context.Context, report *models.ScanReport) error

	// GetRun retrieves a stored report with its results
	GetRun(ctx context.Context, runID string) (*models.ScanReport, error)

	// ListRuns returns the most recent runs first, without per-image results
	ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error)

	// MarkDeleted flags results of a run whose images have been removed
	MarkDeleted(ctx context.Context, runID string, handles []models.ImageHandle) error

	Close() error
}
