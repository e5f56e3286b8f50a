package observer

import (
	"context"
	"errors"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ProgressListener is the callback surface for an interactive caller.
// Callbacks run on the goroutine driving the scan.
type ProgressListener interface {
	OnProgress(fraction float64)
	OnComplete(results []models.ImageResult)
	OnError(kind string, err error)
}

// ProgressObserver adapts a ProgressListener to the event stream
type ProgressObserver struct {
	name     string
	listener ProgressListener
}

// NewProgressObserver wraps a listener. The name must be unique per publisher.
func NewProgressObserver(name string, listener ProgressListener) *ProgressObserver {
	return &ProgressObserver{name: name, listener: listener}
}

// OnEvent translates events into listener callbacks
func (o *ProgressObserver) OnEvent(ctx context.Context, event ScanEvent) {
	switch event.EventType {
	case ChunkCompleted:
		o.listener.OnProgress(event.Progress)
	case ScanCompleted:
		o.listener.OnComplete(event.Results)
	case ImageFailed, ImageDegenerate, ScanFailed, ScanCancelled, PermissionChallenged, DeletionFailed:
		o.listener.OnError(event.ErrorKind, errors.New(event.ErrorMessage))
	}
}

// GetObserverName returns the observer name
func (o *ProgressObserver) GetObserverName() string {
	return o.name
}

// ProgressFuncs is a ProgressListener built from optional functions
type ProgressFuncs struct {
	Progress func(fraction float64)
	Complete func(results []models.ImageResult)
	Error    func(kind string, err error)
}

func (f ProgressFuncs) OnProgress(fraction float64) {
	if f.Progress != nil {
		f.Progress(fraction)
	}
}

func (f ProgressFuncs) OnComplete(results []models.ImageResult) {
	if f.Complete != nil {
		f.Complete(results)
	}
}

func (f ProgressFuncs) OnError(kind string, err error) {
	if f.Error != nil {
		f.Error(kind, err)
	}
}
