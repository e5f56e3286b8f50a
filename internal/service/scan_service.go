package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/logger"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/internal/pipeline"
	"github.com/anime-shed/blur-inspector-go/internal/repository"
	"github.com/anime-shed/blur-inspector-go/internal/storage"
	"github.com/anime-shed/blur-inspector-go/internal/strategy"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
	"github.com/anime-shed/blur-inspector-go/pkg/validation"
)

// ScanService runs scans over one image source and deletes what they flag
type ScanService interface {
	// Scan enumerates the source, scores every image and stores the run
	Scan(ctx context.Context, req models.ScanRequest) (*models.ScanReport, error)

	// GetRun returns a stored run with its per-image results
	GetRun(ctx context.Context, runID string) (*models.ScanReport, error)

	// ListRuns returns stored run summaries, newest first
	ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error)

	// DeleteBlurred removes the blurred images of a stored run that have
	// not been deleted yet. A nil resolver leaves challenged items in place.
	DeleteBlurred(ctx context.Context, runID string, resolver pipeline.ChallengeResolver) (*models.DeletionReport, error)

	// Source names the image source being scanned
	Source() string
}

// Settings carries the service defaults
type Settings struct {
	DefaultThreshold  float64
	DeleteChunkSize   int
	DeleteParallelism int
}

type scanService struct {
	source     storage.ImageSource
	pipeline   *pipeline.Pipeline
	strategies *strategy.ScanContext
	validator  *validation.ScanValidator
	repo       repository.ScanRepository
	publisher  observer.Subject
	settings   Settings
	newRunID   func() string
}

// NewScanService creates a new scan service
func NewScanService(
	source storage.ImageSource,
	pipe *pipeline.Pipeline,
	strategies *strategy.ScanContext,
	validator *validation.ScanValidator,
	repo repository.ScanRepository,
	publisher observer.Subject,
	settings Settings,
) ScanService {
	if settings.DeleteChunkSize <= 0 {
		settings.DeleteChunkSize = pipeline.DefaultDeleteChunkSize
	}
	return &scanService{
		source:     source,
		pipeline:   pipe,
		strategies: strategies,
		validator:  validator,
		repo:       repo,
		publisher:  publisher,
		settings:   settings,
		newRunID:   uuid.NewString,
	}
}

func (s *scanService) Source() string {
	return s.source.Describe()
}

// Scan performs a full scan run
func (s *scanService) Scan(ctx context.Context, req models.ScanRequest) (*models.ScanReport, error) {
	if err := s.validator.ValidateScanRequest(req); err != nil {
		return nil, err
	}
	strat, threshold, chunkSize, err := s.strategies.Resolve(req, s.settings.DefaultThreshold)
	if err != nil {
		return nil, err
	}

	runID := s.newRunID()
	ctx = observer.WithRunID(ctx, runID)
	log := logger.ForRun(runID)
	started := time.Now()

	log.WithFields(logrus.Fields{
		"source":     s.source.Describe(),
		"mode":       strat.Mode(),
		"threshold":  threshold,
		"chunk_size": chunkSize,
	}).Info("Starting scan")

	handles, err := s.source.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx, "scan stopped while listing images", ctx.Err())
		}
		if !apperrors.IsType(err, apperrors.ErrorTypeEnumeration) {
			err = apperrors.NewEnumerationError("failed to list images", err)
		}
		s.notify(ctx, observer.ScanEvent{
			EventType:    observer.ScanFailed,
			ErrorKind:    string(apperrors.ErrorTypeEnumeration),
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	results, blurred, err := s.pipeline.ProcessAndFilter(ctx, handles, chunkSize, threshold)
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx, "scan stopped", err)
		}
		s.notify(ctx, observer.ScanEvent{
			EventType:    observer.ScanFailed,
			Total:        len(handles),
			ErrorKind:    string(apperrors.TypeOf(err)),
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	finished := time.Now()
	report := &models.ScanReport{
		RunID:             runID,
		Source:            s.source.Describe(),
		Mode:              strat.Mode(),
		Threshold:         threshold,
		ChunkSize:         chunkSize,
		StartedAt:         started,
		FinishedAt:        finished,
		ProcessingTimeSec: finished.Sub(started).Seconds(),
		Total:             len(results),
		Blurred:           len(blurred),
		Stats:             ComputeStats(results),
		BlurredIDs:        blurred,
		Results:           results,
	}
	for _, r := range results {
		if r.Failed() {
			report.Failed++
		}
		if r.Degenerate {
			report.Degenerate++
		}
	}
	if len(blurred) == 0 {
		report.Message = models.NoBlurredImagesMessage
	}

	if err := s.repo.SaveRun(ctx, report); err != nil {
		log.WithError(err).Error("Failed to store scan run")
		return nil, apperrors.NewInternalError("failed to store scan run", err)
	}

	log.WithFields(logrus.Fields{
		"total":   report.Total,
		"blurred": report.Blurred,
		"failed":  report.Failed,
		"seconds": report.ProcessingTimeSec,
	}).Info("Scan finished")

	return strat.Present(report), nil
}

// GetRun loads a stored run
func (s *scanService) GetRun(ctx context.Context, runID string) (*models.ScanReport, error) {
	report, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("scan run %s not found", runID), err)
		}
		return nil, apperrors.NewInternalError("failed to load scan run", err)
	}
	return report, nil
}

// ListRuns returns stored run summaries
func (s *scanService) ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error) {
	runs, err := s.repo.ListRuns(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list scan runs", err)
	}
	return runs, nil
}

// DeleteBlurred deletes a run's remaining blurred images and records which
// ones are gone
func (s *scanService) DeleteBlurred(ctx context.Context, runID string, resolver pipeline.ChallengeResolver) (*models.DeletionReport, error) {
	report, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	ctx = observer.WithRunID(ctx, runID)
	opts := []pipeline.DeleterOption{pipeline.WithDeletePublisher(s.publisher)}
	if resolver != nil {
		opts = append(opts, pipeline.WithResolver(resolver))
	}
	if s.settings.DeleteParallelism > 0 {
		opts = append(opts, pipeline.WithParallelism(s.settings.DeleteParallelism))
	}
	deleter := pipeline.NewDeleter(s.source, opts...)

	deletion, deleteErr := deleter.Delete(ctx, report.BlurredIDs, s.settings.DeleteChunkSize)
	if deleteErr != nil && !errors.Is(deleteErr, context.Canceled) && !errors.Is(deleteErr, context.DeadlineExceeded) {
		return nil, deleteErr
	}

	// record partial progress even when the caller gave up
	if removed := deletion.DeletedHandles(); len(removed) > 0 {
		if err := s.repo.MarkDeleted(context.WithoutCancel(ctx), runID, removed); err != nil {
			logger.ForRun(runID).WithError(err).Error("Failed to record deleted images")
			return &deletion, apperrors.NewInternalError("failed to record deleted images", err)
		}
	}

	logger.ForRun(runID).WithFields(logrus.Fields{
		"requested":  deletion.Requested,
		"deleted":    deletion.Deleted,
		"failed":     deletion.Failed,
		"challenged": deletion.Challenged,
		"denied":     deletion.Denied,
	}).Info("Deletion finished")

	if deleteErr != nil {
		return &deletion, interrupted(ctx, "deletion stopped", deleteErr)
	}
	return &deletion, nil
}

// interrupted maps an ended context to a timeout or a cancellation
func interrupted(ctx context.Context, message string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(message, err)
	}
	return apperrors.NewCancelledError(message, err)
}

func (s *scanService) notify(ctx context.Context, event observer.ScanEvent) {
	if s.publisher != nil {
		s.publisher.NotifyObservers(ctx, event)
	}
}
