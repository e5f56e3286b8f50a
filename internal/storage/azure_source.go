package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// AzureSource serves images from one blob container. Handles are blob names.
type AzureSource struct {
	client    *azblob.Client
	container string
	prefix    string
}

type blobEntry struct {
	name     string
	modified time.Time
}

// NewAzureSource connects to a storage account with a shared key
func NewAzureSource(accountName, accountKey, container, prefix string) (*AzureSource, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, apperrors.NewValidationError("azure account name, key and container are required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid azure credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create azure blob client", err)
	}

	return NewAzureSourceWithClient(client, container, prefix), nil
}

// NewAzureSourceWithClient wraps an existing client
func NewAzureSourceWithClient(client *azblob.Client, container, prefix string) *AzureSource {
	return &AzureSource{client: client, container: container, prefix: prefix}
}

// List pages through the container and returns image blobs, most recently
// modified first
func (s *AzureSource) List(ctx context.Context) ([]models.ImageHandle, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if s.prefix != "" {
		opts.Prefix = &s.prefix
	}

	var entries []blobEntry
	pager := s.client.NewListBlobsFlatPager(s.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewEnumerationError(fmt.Sprintf("failed to list container %s", s.container), err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil || !IsImageName(*item.Name) {
				continue
			}
			e := blobEntry{name: *item.Name}
			if item.Properties != nil && item.Properties.LastModified != nil {
				e.modified = *item.Properties.LastModified
			}
			entries = append(entries, e)
		}
	}

	return sortBlobEntries(entries), nil
}

func sortBlobEntries(entries []blobEntry) []models.ImageHandle {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].modified.Equal(entries[j].modified) {
			return entries[i].modified.After(entries[j].modified)
		}
		return entries[i].name < entries[j].name
	})

	handles := make([]models.ImageHandle, len(entries))
	for i, e := range entries {
		handles[i] = models.ImageHandle(e.name)
	}
	return handles
}

// Decode streams and decodes one blob
func (s *AzureSource) Decode(ctx context.Context, h models.ImageHandle) (image.Image, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, string(h), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, apperrors.NewDecodeError("blob download failed", errNotFound("blob", string(h)))
		}
		return nil, apperrors.NewDecodeError("blob download failed", err)
	}

	body := resp.Body
	defer body.Close()

	img, _, err := DecodeImage(body)
	return img, err
}

// Name returns the last path element of the blob name
func (s *AzureSource) Name(ctx context.Context, h models.ImageHandle) string {
	if name := displayName(string(h)); name != "" {
		return name
	}
	return models.UnknownFileName
}

// Delete removes one blob. Authorization failures are recoverable challenges.
func (s *AzureSource) Delete(ctx context.Context, h models.ImageHandle) error {
	_, err := s.client.DeleteBlob(ctx, s.container, string(h), nil)
	return classifyBlobDeleteError(s.container, h, err)
}

// Describe names the source
func (s *AzureSource) Describe() string {
	if s.prefix == "" {
		return "azure:" + s.container
	}
	return "azure:" + s.container + "/" + strings.TrimPrefix(s.prefix, "/")
}

func classifyBlobDeleteError(container string, h models.ImageHandle, err error) error {
	if err == nil {
		return nil
	}

	if bloberror.HasCode(err,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	) {
		return apperrors.NewPermissionChallenge(string(h), challengeToken(container, h, err), err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusForbidden {
		return apperrors.NewPermissionChallenge(string(h), challengeToken(container, h, err), err)
	}

	return apperrors.NewDeletionError(fmt.Sprintf("failed to delete blob %s", h), err)
}

// challengeToken identifies what needs re-authorization
func challengeToken(container string, h models.ImageHandle, err error) string {
	token := "azblob:" + container + "/" + string(h)
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.ErrorCode != "" {
		token += "#" + respErr.ErrorCode
	}
	return token
}
