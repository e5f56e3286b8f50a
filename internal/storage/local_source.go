package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"

	apperrors "github.com/anime-shed/blur-inspector-go/internal/errors"
	"github.com/anime-shed/blur-inspector-go/internal/logger"
	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

// exifTimeLayout is the EXIF DateTimeOriginal format
const exifTimeLayout = "2006:01:02 15:04:05"

// exifBatchSize bounds the number of files handed to one exiftool call
const exifBatchSize = 200

// LocalSource serves images from a directory tree. Handles are slash
// separated paths relative to the root.
type LocalSource struct {
	root string
	exif *exiftool.Exiftool
}

type localEntry struct {
	handle models.ImageHandle
	path   string
	taken  time.Time
}

// NewLocalSource opens a directory. With useExif the capture time is read
// through exiftool when available; without it, or when exiftool cannot be
// started, files are ordered by modification time.
func NewLocalSource(root string, useExif bool) (*LocalSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid source directory", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("cannot open source directory %s", root), err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s is not a directory", root), nil)
	}

	s := &LocalSource{root: abs}
	if useExif {
		et, err := exiftool.NewExiftool()
		if err != nil {
			logger.WithError(err).Warn("exiftool unavailable, ordering by modification time")
		} else {
			s.exif = et
		}
	}
	return s, nil
}

// List walks the tree and returns image handles, newest first. Ties are
// broken by path so the order is stable.
func (s *LocalSource) List(ctx context.Context) ([]models.ImageHandle, error) {
	var entries []localEntry
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsImageName(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, localEntry{
			handle: models.ImageHandle(filepath.ToSlash(rel)),
			path:   p,
			taken:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.NewEnumerationError(fmt.Sprintf("failed to list %s", s.root), err)
	}

	if s.exif != nil {
		s.applyCaptureTimes(entries)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].taken.Equal(entries[j].taken) {
			return entries[i].taken.After(entries[j].taken)
		}
		return entries[i].handle < entries[j].handle
	})

	handles := make([]models.ImageHandle, len(entries))
	for i, e := range entries {
		handles[i] = e.handle
	}
	return handles, nil
}

// applyCaptureTimes replaces modification times with EXIF DateTimeOriginal
// where present
func (s *LocalSource) applyCaptureTimes(entries []localEntry) {
	for start := 0; start < len(entries); start += exifBatchSize {
		end := min(start+exifBatchSize, len(entries))
		paths := make([]string, 0, end-start)
		for _, e := range entries[start:end] {
			paths = append(paths, e.path)
		}

		for i, meta := range s.exif.ExtractMetadata(paths...) {
			if meta.Err != nil {
				continue
			}
			raw, err := meta.GetString("DateTimeOriginal")
			if err != nil {
				continue
			}
			if taken, err := time.ParseInLocation(exifTimeLayout, raw, time.Local); err == nil {
				entries[start+i].taken = taken
			}
		}
	}
}

// Decode opens and decodes one file
func (s *LocalSource) Decode(ctx context.Context, h models.ImageHandle) (image.Image, error) {
	p, err := s.resolve(h)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("cannot open %s", h), err)
	}
	defer f.Close()

	img, _, err := DecodeImage(f)
	return img, err
}

// Name returns the file name of a handle
func (s *LocalSource) Name(ctx context.Context, h models.ImageHandle) string {
	if name := displayName(string(h)); name != "" {
		return name
	}
	return models.UnknownFileName
}

// Delete removes one file. Permission errors are recoverable challenges.
func (s *LocalSource) Delete(ctx context.Context, h models.ImageHandle) error {
	p, err := s.resolve(h)
	if err != nil {
		return apperrors.NewDeletionError("invalid image handle", err)
	}
	err = os.Remove(p)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrPermission):
		return apperrors.NewPermissionChallenge(string(h), "file:"+p, err)
	case errors.Is(err, fs.ErrNotExist):
		return apperrors.NewDeletionError(fmt.Sprintf("%s no longer exists", h), err)
	default:
		return apperrors.NewDeletionError(fmt.Sprintf("failed to delete %s", h), err)
	}
}

// Describe names the source
func (s *LocalSource) Describe() string {
	return "local:" + s.root
}

// Close stops the exiftool process, if one was started
func (s *LocalSource) Close() error {
	if s.exif == nil {
		return nil
	}
	return s.exif.Close()
}

// resolve maps a handle to a path, refusing anything outside the root
func (s *LocalSource) resolve(h models.ImageHandle) (string, error) {
	rel := filepath.FromSlash(string(h))
	if rel == "" || filepath.IsAbs(rel) {
		return "", apperrors.NewValidationError(fmt.Sprintf("invalid image handle %q", h), nil)
	}
	p := filepath.Join(s.root, rel)
	back, err := filepath.Rel(s.root, p)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", apperrors.NewValidationError(fmt.Sprintf("image handle %q escapes the source root", h), nil)
	}
	return p, nil
}
