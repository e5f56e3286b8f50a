package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/anime-shed/blur-inspector-go/internal/analyzer"
	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/internal/system"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// DefaultImageTimeout bounds decode plus score of a single image
const DefaultImageTimeout = 30 * time.Second

// ImageLoader turns handles into pixel buffers and display names
type ImageLoader interface {
	Decode(ctx context.Context, h models.ImageHandle) (image.Image, error)
	Name(ctx context.Context, h models.ImageHandle) string
}

// Releaser is implemented by loaders that want decoded buffers handed back
// once scoring is done with them
type Releaser interface {
	Release(h models.ImageHandle, img image.Image)
}

// Pipeline scores an ordered sequence of images chunk by chunk. Chunks run
// strictly one after another; images inside a chunk run on the worker pool.
type Pipeline struct {
	loader       ImageLoader
	scorer       analyzer.SharpnessScorer
	pool         *analyzer.WorkerPool
	publisher    observer.Subject
	imageTimeout time.Duration
	sampleRSS    func() uint64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithPublisher routes progress and failure events to a publisher
func WithPublisher(publisher observer.Subject) Option {
	return func(p *Pipeline) {
		p.publisher = publisher
	}
}

// WithImageTimeout sets the per-image limit. Zero disables it.
func WithImageTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.imageTimeout = d
	}
}

// WithMemorySampler replaces the process RSS probe reported after each chunk
func WithMemorySampler(fn func() uint64) Option {
	return func(p *Pipeline) {
		p.sampleRSS = fn
	}
}

// New creates a pipeline over a loader, a scorer and a shared worker pool
func New(loader ImageLoader, scorer analyzer.SharpnessScorer, pool *analyzer.WorkerPool, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:       loader,
		scorer:       scorer,
		pool:         pool,
		imageTimeout: DefaultImageTimeout,
		sampleRSS:    system.ProcessRSS,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process scores every handle and returns one result per handle, in input
// order. Per-image failures become error-tagged results. If ctx ends before
// the last chunk completes, the partial results are discarded and ctx.Err()
// is returned.
func (p *Pipeline) Process(ctx context.Context, handles []models.ImageHandle, chunkSize int, threshold float64) ([]models.ImageResult, error) {
	if chunkSize <= 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("chunk size must be positive, got %d", chunkSize), nil)
	}
	if math.IsNaN(threshold) || threshold < 0 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("threshold must be a non-negative number, got %v", threshold), nil)
	}

	total := len(handles)
	start := time.Now()
	p.notify(ctx, observer.ScanEvent{
		EventType: observer.ScanStarted,
		Total:     total,
		Metadata:  map[string]interface{}{"chunk_size": chunkSize, "threshold": threshold},
	})

	results := make([]models.ImageResult, 0, total)
	chunkIndex := 0
	for chunk := range slices.Chunk(handles, chunkSize) {
		out, err := p.processChunk(ctx, chunk, threshold)
		if err != nil {
			kind := apperrors.ErrorTypeCancelled
			if errors.Is(err, context.DeadlineExceeded) {
				kind = apperrors.ErrorTypeTimeout
			}
			p.notify(ctx, observer.ScanEvent{
				EventType:      observer.ScanCancelled,
				Processed:      len(results),
				Total:          total,
				ProcessingTime: time.Since(start),
				ErrorKind:      string(kind),
				ErrorMessage:   err.Error(),
			})
			return nil, err
		}

		for _, r := range out {
			p.reportImage(ctx, r)
		}
		results = append(results, out...)
		chunkIndex++

		p.notify(ctx, observer.ScanEvent{
			EventType: observer.ChunkCompleted,
			Chunk:     chunkIndex,
			Processed: len(results),
			Total:     total,
			Progress:  float64(len(results)) / float64(total),
			RSSBytes:  p.rss(),
			Success:   true,
		})
	}

	p.notify(ctx, observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		Total:          total,
		Processed:      len(results),
		ProcessingTime: time.Since(start),
		Success:        true,
		Results:        results,
	})
	return results, nil
}

// ProcessAndFilter runs Process and also returns the identifiers of the
// blurred images, in result order, for hand-off to deletion
func (p *Pipeline) ProcessAndFilter(ctx context.Context, handles []models.ImageHandle, chunkSize int, threshold float64) ([]models.ImageResult, []models.ImageHandle, error) {
	results, err := p.Process(ctx, handles, chunkSize, threshold)
	if err != nil {
		return nil, nil, err
	}
	return results, models.BlurredHandles(results), nil
}

// processChunk fans one chunk out to the pool and waits for all of it.
// Each task writes only its own slot.
func (p *Pipeline) processChunk(ctx context.Context, chunk []models.ImageHandle, threshold float64) ([]models.ImageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ImageResult, len(chunk))
	var wg sync.WaitGroup
	for i, h := range chunk {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitted := p.pool.Submit(func() {
			defer wg.Done()
			out[i] = p.scoreOne(ctx, h, threshold)
		})
		if !submitted {
			wg.Done()
			out[i] = failedResult(h, models.UnknownFileName, threshold,
				apperrors.NewInternalError("worker pool is closed", nil))
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scoreOne runs evaluate off the worker so the task can be abandoned when
// ctx ends or the per-image timeout fires. The abandoned goroutine finishes
// whenever the loader returns.
func (p *Pipeline) scoreOne(ctx context.Context, h models.ImageHandle, threshold float64) models.ImageResult {
	var (
		tctx   context.Context
		cancel context.CancelFunc
	)
	if p.imageTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, p.imageTimeout)
	} else {
		tctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	named := make(chan string, 1)
	done := make(chan models.ImageResult, 1)
	go func() {
		var name string
		defer func() {
			if r := recover(); r != nil {
				done <- failedResult(h, name, threshold,
					apperrors.NewProcessingError("panic while naming image", fmt.Errorf("%v", r)))
			}
		}()
		name = p.loader.Name(tctx, h)
		named <- name
		done <- p.evaluate(tctx, h, name, threshold)
	}()

	select {
	case r := <-done:
		return r
	case <-tctx.Done():
		name := models.UnknownFileName
		select {
		case name = <-named:
		default:
		}
		if ctx.Err() != nil {
			return failedResult(h, name, threshold, apperrors.NewCancelledError("scan cancelled", ctx.Err()))
		}
		return failedResult(h, name, threshold,
			apperrors.NewTimeoutError(fmt.Sprintf("image not scored within %s", p.imageTimeout), tctx.Err()))
	}
}

// evaluate decodes, scores and classifies one image. The decoded buffer is
// not referenced after it returns.
func (p *Pipeline) evaluate(ctx context.Context, h models.ImageHandle, name string, threshold float64) (result models.ImageResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(h, name, threshold,
				apperrors.NewProcessingError("panic while scoring image", fmt.Errorf("%v", r)))
		}
	}()

	img, err := p.loader.Decode(ctx, h)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeDecode) {
			err = apperrors.NewDecodeError("failed to decode image", err)
		}
		return failedResult(h, name, threshold, err)
	}
	if img == nil {
		return failedResult(h, name, threshold, apperrors.NewDecodeError("decoder returned no image", nil))
	}
	if rel, ok := p.loader.(Releaser); ok {
		defer rel.Release(h, img)
	}

	m := p.scorer.Measure(img)
	return models.ImageResult{
		ID:         h,
		FileName:   name,
		IsBlurred:  m.Degenerate || analyzer.Classify(m.Score, threshold),
		Threshold:  threshold,
		Score:      m.Score,
		Degenerate: m.Degenerate,
	}
}

// reportImage emits the per-image failure events of a finished chunk
func (p *Pipeline) reportImage(ctx context.Context, r models.ImageResult) {
	switch {
	case r.Failed():
		p.notify(ctx, observer.ScanEvent{
			EventType:    observer.ImageFailed,
			Handle:       r.ID,
			FileName:     r.FileName,
			ErrorKind:    r.ErrorType,
			ErrorMessage: r.Error,
		})
	case r.Degenerate:
		p.notify(ctx, observer.ScanEvent{
			EventType:    observer.ImageDegenerate,
			Handle:       r.ID,
			FileName:     r.FileName,
			ErrorKind:    string(apperrors.ErrorTypeInvalidImage),
			ErrorMessage: apperrors.NewInvalidImageError("zero-dimension image scored as 0", nil).Error(),
		})
	}
}

func (p *Pipeline) notify(ctx context.Context, event observer.ScanEvent) {
	if p.publisher == nil {
		return
	}
	p.publisher.NotifyObservers(ctx, event)
}

func (p *Pipeline) rss() uint64 {
	if p.sampleRSS == nil {
		return 0
	}
	return p.sampleRSS()
}

func failedResult(h models.ImageHandle, name string, threshold float64, err error) models.ImageResult {
	if name == "" {
		name = models.UnknownFileName
	}
	return models.ImageResult{
		ID:        h,
		FileName:  name,
		Threshold: threshold,
		Error:     err.Error(),
		ErrorType: string(apperrors.TypeOf(err)),
	}
}
