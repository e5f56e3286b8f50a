package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
	"github.com/anime-shed/blur-inspector-go/pkg/validation"
)

type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// HTTPImageFetcher downloads and decodes images, retrying transient failures
type HTTPImageFetcher struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// FetcherOption configures an HTTPImageFetcher
type FetcherOption func(*HTTPImageFetcher)

// WithRetry sets the attempt count and the base backoff. The wait before
// attempt n+1 is n times the base.
func WithRetry(attempts int, backoff time.Duration) FetcherOption {
	return func(h *HTTPImageFetcher) {
		if attempts > 0 {
			h.attempts = attempts
		}
		h.backoff = backoff
	}
}

// WithClientTimeout bounds one request including reading the body
func WithClientTimeout(d time.Duration) FetcherOption {
	return func(h *HTTPImageFetcher) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification
func WithInsecureTLS() FetcherOption {
	return func(h *HTTPImageFetcher) {
		if t, ok := h.client.Transport.(*http.Transport); ok {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts ...FetcherOption) *HTTPImageFetcher {
	transport := &http.Transport{
		// Several images of a chunk are fetched at once
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	h := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		attempts: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FetchImage downloads one image. 5xx responses and network errors are
// retried, 4xx responses are not.
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (image.Image, error) {
	var lastErr error

	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 && h.backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.NewNetworkError("image fetch cancelled", ctx.Err())
			case <-time.After(time.Duration(attempt) * h.backoff):
			}
		}

		img, retry, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	if apperrors.IsType(lastErr, apperrors.ErrorTypeDecode) || apperrors.IsType(lastErr, apperrors.ErrorTypeValidation) {
		return nil, lastErr
	}
	return nil, apperrors.NewNetworkError(fmt.Sprintf("failed to fetch image after %d attempts", h.attempts), lastErr)
}

// fetchOnce performs one request and reports whether a failure is worth retrying
func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (image.Image, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, apperrors.NewValidationError("invalid URL", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/bmp, image/tiff, */*")
	req.Header.Set("User-Agent", "blur-inspector/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	}

	img, _, err := DecodeImage(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return img, false, nil
}

// HTTPSource scores a fixed list of image URLs. It cannot delete.
type HTTPSource struct {
	fetcher ImageFetcher
	urls    []models.ImageHandle
}

// NewHTTPSource validates the URLs and keeps them in the given order
func NewHTTPSource(fetcher ImageFetcher, validator *validation.URLValidator, urls []string) (*HTTPSource, error) {
	valid, err := validator.ValidateImageURLs(urls)
	if err != nil {
		return nil, err
	}

	handles := make([]models.ImageHandle, len(valid))
	for i, u := range valid {
		handles[i] = models.ImageHandle(u)
	}
	return &HTTPSource{fetcher: fetcher, urls: handles}, nil
}

// List returns the configured URLs. They carry no timestamps, so the
// caller's order is kept.
func (s *HTTPSource) List(ctx context.Context) ([]models.ImageHandle, error) {
	out := make([]models.ImageHandle, len(s.urls))
	copy(out, s.urls)
	return out, nil
}

// Decode fetches one URL
func (s *HTTPSource) Decode(ctx context.Context, h models.ImageHandle) (image.Image, error) {
	img, err := s.fetcher.FetchImage(ctx, string(h))
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeDecode) {
			return nil, err
		}
		return nil, apperrors.NewDecodeError("image could not be fetched", err)
	}
	return img, nil
}

// Name returns the last path element of the URL
func (s *HTTPSource) Name(ctx context.Context, h models.ImageHandle) string {
	u, err := url.Parse(string(h))
	if err != nil {
		return models.UnknownFileName
	}
	if name := displayName(u.Path); name != "" {
		return name
	}
	return models.UnknownFileName
}

// Delete is not supported for remote URLs
func (s *HTTPSource) Delete(ctx context.Context, h models.ImageHandle) error {
	return apperrors.NewDeletionError(fmt.Sprintf("cannot delete remote image %s", h), nil)
}

// Describe names the source
func (s *HTTPSource) Describe() string {
	return fmt.Sprintf("http:%d urls", len(s.urls))
}
