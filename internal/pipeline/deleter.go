package pipeline

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// DefaultDeleteChunkSize is the deletion batch size
const DefaultDeleteChunkSize = 100

// ImageDeleter removes a single image from its storage
type ImageDeleter interface {
	Delete(ctx context.Context, h models.ImageHandle) error
}

// ChallengeResolver asks whoever owns the storage permission to grant a
// challenged deletion. Resolve is called from one goroutine at a time.
type ChallengeResolver interface {
	Resolve(ctx context.Context, challenge *apperrors.PermissionChallenge) (bool, error)
}

// ResolverFunc adapts a function to ChallengeResolver
type ResolverFunc func(ctx context.Context, challenge *apperrors.PermissionChallenge) (bool, error)

// Resolve calls f
func (f ResolverFunc) Resolve(ctx context.Context, challenge *apperrors.PermissionChallenge) (bool, error) {
	return f(ctx, challenge)
}

// Deleter removes images in chunks, independently of how they were scored
type Deleter struct {
	target      ImageDeleter
	resolver    ChallengeResolver
	publisher   observer.Subject
	parallelism int
}

// DeleterOption configures a Deleter
type DeleterOption func(*Deleter)

// WithResolver sets the challenge resolver. Without one, challenged items
// are reported with their token and left in place.
func WithResolver(resolver ChallengeResolver) DeleterOption {
	return func(d *Deleter) {
		d.resolver = resolver
	}
}

// WithDeletePublisher routes deletion events to a publisher
func WithDeletePublisher(publisher observer.Subject) DeleterOption {
	return func(d *Deleter) {
		d.publisher = publisher
	}
}

// WithParallelism caps concurrent deletions inside a chunk
func WithParallelism(n int) DeleterOption {
	return func(d *Deleter) {
		d.parallelism = n
	}
}

// NewDeleter creates a deleter for the given storage
func NewDeleter(target ImageDeleter, opts ...DeleterOption) *Deleter {
	d := &Deleter{
		target:      target,
		parallelism: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delete removes every handle and reports a per-item outcome in input order.
// Item failures never stop the run. If ctx ends, the outcomes of the chunks
// finished so far are returned together with ctx.Err().
func (d *Deleter) Delete(ctx context.Context, handles []models.ImageHandle, chunkSize int) (models.DeletionReport, error) {
	report := models.DeletionReport{
		RunID:     observer.RunIDFromContext(ctx),
		Requested: len(handles),
		Outcomes:  make([]models.DeletionOutcome, 0, len(handles)),
	}
	if chunkSize <= 0 {
		return report, apperrors.NewValidationError(fmt.Sprintf("delete chunk size must be positive, got %d", chunkSize), nil)
	}
	if len(handles) == 0 {
		report.Message = models.NoBlurredImagesMessage
		return report, nil
	}

	for chunk := range slices.Chunk(handles, chunkSize) {
		if err := ctx.Err(); err != nil {
			report.Message = summarize(report)
			return report, err
		}

		outcomes, challenges := d.deleteChunk(ctx, chunk)
		for i := range outcomes {
			if challenges[i] != nil {
				outcomes[i] = d.resolve(ctx, challenges[i], outcomes[i])
			}
			if outcomes[i].Status == models.DeletionFailed {
				d.notify(ctx, observer.ScanEvent{
					EventType:    observer.DeletionFailed,
					Handle:       outcomes[i].ID,
					ErrorKind:    string(apperrors.ErrorTypeDeletion),
					ErrorMessage: outcomes[i].Error,
				})
			}
			report.Add(outcomes[i])
		}
	}

	report.Message = summarize(report)
	d.notify(ctx, observer.ScanEvent{
		EventType: observer.DeletionCompleted,
		Total:     report.Requested,
		Success:   report.Failed == 0,
		Deletion:  &report,
	})
	return report, nil
}

// deleteChunk deletes one chunk with bounded parallelism. Each goroutine
// writes only its own slot.
func (d *Deleter) deleteChunk(ctx context.Context, chunk []models.ImageHandle) ([]models.DeletionOutcome, []*apperrors.PermissionChallenge) {
	outcomes := make([]models.DeletionOutcome, len(chunk))
	challenges := make([]*apperrors.PermissionChallenge, len(chunk))

	var g errgroup.Group
	if d.parallelism > 0 {
		g.SetLimit(d.parallelism)
	}
	for i, h := range chunk {
		g.Go(func() error {
			outcomes[i], challenges[i] = d.deleteOne(ctx, h)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, challenges
}

func (d *Deleter) deleteOne(ctx context.Context, h models.ImageHandle) (models.DeletionOutcome, *apperrors.PermissionChallenge) {
	err := d.target.Delete(ctx, h)
	if err == nil {
		return models.DeletionOutcome{ID: h, Status: models.DeletionDeleted}, nil
	}
	if pc, ok := apperrors.AsPermissionChallenge(err); ok {
		return models.DeletionOutcome{ID: h, Status: models.DeletionChallenged, Token: pc.Token, Error: err.Error()}, pc
	}
	return models.DeletionOutcome{ID: h, Status: models.DeletionFailed, Error: err.Error()}, nil
}

// resolve surfaces a challenge and retries a granted item once
func (d *Deleter) resolve(ctx context.Context, pc *apperrors.PermissionChallenge, outcome models.DeletionOutcome) models.DeletionOutcome {
	d.notify(ctx, observer.ScanEvent{
		EventType:    observer.PermissionChallenged,
		Handle:       outcome.ID,
		ErrorKind:    string(apperrors.ErrorTypePermissionChallenge),
		ErrorMessage: pc.Error(),
	})
	if d.resolver == nil {
		return outcome
	}

	granted, err := d.resolver.Resolve(ctx, pc)
	if err != nil {
		return models.DeletionOutcome{ID: outcome.ID, Status: models.DeletionFailed, Error: err.Error()}
	}
	if !granted {
		return models.DeletionOutcome{ID: outcome.ID, Status: models.DeletionDenied}
	}

	retried, again := d.deleteOne(ctx, outcome.ID)
	if again != nil {
		// still challenged after a grant; report it rather than loop
		retried.Status = models.DeletionChallenged
	}
	return retried
}

func (d *Deleter) notify(ctx context.Context, event observer.ScanEvent) {
	if d.publisher == nil {
		return
	}
	d.publisher.NotifyObservers(ctx, event)
}

func summarize(r models.DeletionReport) string {
	return fmt.Sprintf("deleted %d of %d images (%d failed, %d awaiting authorization, %d denied)",
		r.Deleted, r.Requested, r.Failed, r.Challenged, r.Denied)
}
