package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ScanEvent represents a scan or deletion event
type ScanEvent struct {
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`

	// Per-image events
	Handle   models.ImageHandle `json:"handle,omitempty"`
	FileName string             `json:"file_name,omitempty"`

	// Chunk progress
	Chunk     int     `json:"chunk,omitempty"`
	Processed int     `json:"processed,omitempty"`
	Total     int     `json:"total,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	RSSBytes  uint64  `json:"rss_bytes,omitempty"`

	ProcessingTime time.Duration `json:"processing_time"`
	Success        bool          `json:"success"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`

	// Results is only set on ScanCompleted
	Results  []models.ImageResult   `json:"-"`
	Deletion *models.DeletionReport `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of scan event
type EventType string

const (
	// ScanStarted when a pipeline run begins
	ScanStarted EventType = "scan_started"
	// ChunkCompleted after every chunk barrier
	ChunkCompleted EventType = "chunk_completed"
	// ImageFailed when an image cannot be decoded or scored
	ImageFailed EventType = "image_failed"
	// ImageDegenerate when a decoded buffer has zero width or height
	ImageDegenerate EventType = "image_degenerate"
	// ScanCompleted when every chunk has been processed
	ScanCompleted EventType = "scan_completed"
	// ScanFailed when the run could not start, e.g. enumeration failed
	ScanFailed EventType = "scan_failed"
	// ScanCancelled when the run's context ended before completion
	ScanCancelled EventType = "scan_cancelled"
	// PermissionChallenged when deleting an item needs re-authorization
	PermissionChallenged EventType = "permission_challenged"
	// DeletionFailed when deleting an item fails for good
	DeletionFailed EventType = "deletion_failed"
	// DeletionCompleted after a bulk deletion
	DeletionCompleted EventType = "deletion_completed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ScanEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ScanEvent)
}

// LoggingObserver logs scan events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles scan events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}
	if event.Handle != "" {
		fields["image"] = event.Handle
	}
	if event.ErrorKind != "" {
		fields["error_kind"] = event.ErrorKind
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ScanStarted:
		entry.WithField("total", event.Total).Info("Scan started")
	case ChunkCompleted:
		entry.WithFields(logrus.Fields{
			"chunk":     event.Chunk,
			"processed": event.Processed,
			"total":     event.Total,
			"rss_bytes": event.RSSBytes,
		}).Debug("Chunk completed")
	case ImageFailed:
		entry.Warn("Image could not be scored")
	case ImageDegenerate:
		entry.Warn("Image has zero width or height")
	case ScanCompleted:
		entry.WithFields(logrus.Fields{
			"total":           event.Total,
			"processing_time": event.ProcessingTime,
		}).Info("Scan completed")
	case ScanFailed:
		entry.Error("Scan failed")
	case ScanCancelled:
		entry.WithField("processed", event.Processed).Warn("Scan cancelled")
	case PermissionChallenged:
		entry.Warn("Deletion needs re-authorization")
	case DeletionFailed:
		entry.Error("Deletion failed")
	case DeletionCompleted:
		if event.Deletion != nil {
			entry = entry.WithFields(logrus.Fields{
				"requested":  event.Deletion.Requested,
				"deleted":    event.Deletion.Deleted,
				"failed":     event.Deletion.Failed,
				"challenged": event.Deletion.Challenged,
				"denied":     event.Deletion.Denied,
			})
		}
		entry.Info("Deletion completed")
	default:
		entry.Info("Scan event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from scan events
type MetricsObserver struct {
	mu                  sync.RWMutex
	scansStarted        int64
	scansCompleted      int64
	scansFailed         int64
	scansCancelled      int64
	imagesScored        int64
	imagesFailed        int64
	imagesDegenerate    int64
	imagesDeleted       int64
	deletionFailures    int64
	challenges          int64
	peakRSSBytes        uint64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles scan events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ScanEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ScanStarted:
		o.scansStarted++
	case ChunkCompleted:
		if event.RSSBytes > o.peakRSSBytes {
			o.peakRSSBytes = event.RSSBytes
		}
	case ImageFailed:
		o.imagesFailed++
	case ImageDegenerate:
		o.imagesDegenerate++
	case ScanCompleted:
		o.scansCompleted++
		o.imagesScored += int64(event.Total)
		o.totalProcessingTime += event.ProcessingTime
	case ScanFailed:
		o.scansFailed++
	case ScanCancelled:
		o.scansCancelled++
	case PermissionChallenged:
		o.challenges++
	case DeletionFailed:
		o.deletionFailures++
	case DeletionCompleted:
		if event.Deletion != nil {
			o.imagesDeleted += int64(event.Deletion.Deleted)
		}
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.scansCompleted > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.scansCompleted)
	}

	return map[string]interface{}{
		"scans_started":         o.scansStarted,
		"scans_completed":       o.scansCompleted,
		"scans_failed":          o.scansFailed,
		"scans_cancelled":       o.scansCancelled,
		"images_scored":         o.imagesScored,
		"images_failed":         o.imagesFailed,
		"images_degenerate":     o.imagesDegenerate,
		"images_deleted":        o.imagesDeleted,
		"deletion_failures":     o.deletionFailures,
		"permission_challenges": o.challenges,
		"peak_rss_bytes":        o.peakRSSBytes,
		"total_processing_time": o.totalProcessingTime.String(),
		"avg_processing_time":   avgProcessingTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers an event to every observer on the calling
// goroutine, in subscription order. Events of one run arrive in the order
// they were emitted.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ScanEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = RunIDFromContext(ctx)
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event ScanEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the run
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

type runIDKey struct{}

// WithRunID attaches a run id to the context so events emitted under it are tagged
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id attached by WithRunID, if any
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
