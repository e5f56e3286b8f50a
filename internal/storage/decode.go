package storage

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageName reports whether a file or blob name has a decodable extension
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// DecodeImage decodes any registered format from r
func DecodeImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, "", apperrors.NewDecodeError("failed to decode image", err)
	}
	return img, format, nil
}

// displayName returns the last element of a slash-separated handle
func displayName(h string) string {
	h = strings.TrimRight(h, "/")
	if h == "" {
		return ""
	}
	base := path.Base(h)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func errNotFound(kind, h string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("%s not found: %s", kind, h), nil)
}
