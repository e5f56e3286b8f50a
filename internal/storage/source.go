package storage

import (
	"context"
	"image"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// ImageSource is a storage backend the scan engine can enumerate, decode
// and delete from
type ImageSource interface {
	// List returns every image handle, newest first
	List(ctx context.Context) ([]models.ImageHandle, error)

	// Decode produces a pixel buffer or a decode error
	Decode(ctx context.Context, h models.ImageHandle) (image.Image, error)

	// Name returns a display name, or models.UnknownFileName
	Name(ctx context.Context, h models.ImageHandle) string

	// Delete removes one image. A *errors.PermissionChallenge means the item
	// can be retried after re-authorization.
	Delete(ctx context.Context, h models.ImageHandle) error

	// Describe names the source for reports and logs
	Describe() string
}

// SourceType selects an ImageSource implementation
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceAzure SourceType = "azure"
	SourceHTTP  SourceType = "http"
)
