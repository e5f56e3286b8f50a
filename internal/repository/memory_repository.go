package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// MemoryScanRepository implements ScanRepository in process memory
type MemoryScanRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.ScanReport
}

// NewMemoryScanRepository creates an empty in-memory repository
func NewMemoryScanRepository() *MemoryScanRepository {
	return &MemoryScanRepository{
		runs: make(map[string]*models.ScanReport),
	}
}

// SaveRun stores a copy of the report
func (r *MemoryScanRepository) SaveRun(ctx context.Context, report *models.ScanReport) error {
	if report == nil || report.RunID == "" {
		return ErrInvalidRun
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[report.RunID] = cloneReport(report, true)
	return nil
}

// GetRun returns a copy of a stored report
func (r *MemoryScanRepository) GetRun(ctx context.Context, runID string) (*models.ScanReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return cloneReport(report, true), nil
}

// ListRuns returns run summaries, newest first
func (r *MemoryScanRepository) ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error) {
	r.mu.RLock()
	out := make([]*models.ScanReport, 0, len(r.runs))
	for _, report := range r.runs {
		out = append(out, cloneReport(report, false))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkDeleted flags the given handles of a run as deleted
func (r *MemoryScanRepository) MarkDeleted(ctx context.Context, runID string, handles []models.ImageHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.runs[runID]
	if !ok {
		return ErrRunNotFound
	}

	gone := make(map[models.ImageHandle]bool, len(handles))
	for _, h := range handles {
		gone[h] = true
	}
	for i := range report.Results {
		if gone[report.Results[i].ID] {
			report.Results[i].Deleted = true
		}
	}
	report.BlurredIDs = models.BlurredHandles(report.Results)
	return nil
}

// Close is a no-op
func (r *MemoryScanRepository) Close() error {
	return nil
}

func cloneReport(report *models.ScanReport, withResults bool) *models.ScanReport {
	c := *report
	c.BlurredIDs = append([]models.ImageHandle{}, report.BlurredIDs...)
	c.Results = nil
	if withResults {
		c.Results = append([]models.ImageResult(nil), report.Results...)
	}
	return &c
}
