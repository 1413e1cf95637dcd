package storage

import (
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrCoverTooLarge   = errors.New("cover file is too large")
	ErrUnsupportedType = errors.New("unsupported cover image type")
	ErrInvalidImage    = errors.New("cover is not a valid image")
)

// CoverStore keeps playlist cover images on local disk. Covers are
// re-encoded and scaled down to fit within maxSize x maxSize on upload.
type CoverStore struct {
	dir          string
	publicPrefix string
	maxSize      int
	maxBytes     int64
	logger       *logrus.Logger

	pending sync.WaitGroup
}

// NewCoverStore creates dir if needed. Stored covers are referred to as
// publicPrefix + "/" + file name.
func NewCoverStore(dir, publicPrefix string, maxSize int, maxBytes int64, logger *logrus.Logger) (*CoverStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create covers directory: %w", err)
	}
	return &CoverStore{
		dir:          dir,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		maxSize:      maxSize,
		maxBytes:     maxBytes,
		logger:       logger,
	}, nil
}

// Dir is the directory covers are written to.
func (s *CoverStore) Dir() string {
	return s.dir
}

// PublicPath returns the stored reference for a cover file name.
func (s *CoverStore) PublicPath(name string) string {
	return path.Join(s.publicPrefix, name)
}

// diskPath maps a stored reference back to a file inside dir. Only the base
// name is used so references can never escape the covers directory.
func (s *CoverStore) diskPath(ref string) (string, bool) {
	name := filepath.Base(filepath.FromSlash(ref))
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// Save decodes the uploaded image, scales it to fit and writes it under a
// fresh name. It returns the stored reference.
func (s *CoverStore) Save(fh *multipart.FileHeader) (string, error) {
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return "", ErrCoverTooLarge
	}

	format, err := imaging.FormatFromFilename(fh.Filename)
	if err != nil {
		return "", ErrUnsupportedType
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	var img image.Image
	img, err = imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", ErrInvalidImage
	}
	img = imaging.Fit(img, s.maxSize, s.maxSize, imaging.Lanczos)

	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	dst := filepath.Join(s.dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create cover file: %w", err)
	}

	if err := imaging.Encode(out, img, format, imaging.JPEGQuality(85)); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to encode cover: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to write cover: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file":     name,
		"original": fh.Filename,
		"width":    img.Bounds().Dx(),
		"height":   img.Bounds().Dy(),
	}).Debug("Stored playlist cover")

	return s.PublicPath(name), nil
}

// Remove deletes a stored cover. Missing files are not an error.
func (s *CoverStore) Remove(ref string) error {
	p, ok := s.diskPath(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cover %s: %w", ref, err)
	}
	return nil
}

// RemoveAsync deletes a stored cover in the background, logging failures.
func (s *CoverStore) RemoveAsync(ref string) {
	if ref == "" {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.Remove(ref); err != nil {
			s.logger.WithError(err).WithField("cover", ref).Warn("Failed to remove cover")
		}
	}()
}

// Wait blocks until background removals have finished.
func (s *CoverStore) Wait() {
	s.pending.Wait()
}

// Check verifies the covers directory is usable.
func (s *CoverStore) Check() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}
