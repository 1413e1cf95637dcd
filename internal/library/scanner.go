package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"cadence/pkg/models"

	"github.com/sirupsen/logrus"
)

// TrackStore is the part of the catalog the importer writes to
type TrackStore interface {
	InsertTrack(track models.Track) (int, error)
	TrackExists(filePath string) (bool, error)
	RemoveTrackByPath(filePath string) error
}

// Scanner imports a directory tree of audio files into the track catalog
type Scanner struct {
	extractor *Extractor
	store     TrackStore
	logger    *logrus.Logger
	workers   int
}

// NewScanner creates a scanner using one worker per CPU
func NewScanner(extractor *Extractor, store TrackStore, logger *logrus.Logger) *Scanner {
	return &Scanner{
		extractor: extractor,
		store:     store,
		logger:    logger,
		workers:   runtime.NumCPU(),
	}
}

// Scan walks root and imports every supported audio file, returning how
// many tracks were written. Unreadable files and directories are logged
// and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (int, error) {
	s.logger.WithField("library_path", root).Info("Scanning music library")

	var wg sync.WaitGroup
	var trackCount int64
	jobs := make(chan string, 100)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if s.importFile(path) {
					atomic.AddInt64(&trackCount, 1)
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(root, s.walkFunc(ctx, root, jobs))

	close(jobs)
	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"library_path": root,
		"tracks":       trackCount,
	}).Info("Library scan finished")
	return int(trackCount), walkErr
}

// walkFunc queues audio files on jobs. An unreadable entry below root is
// logged and skipped; only a failure on root itself stops the walk.
func (s *Scanner) walkFunc(ctx context.Context, root string, jobs chan<- string) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable library entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && s.extractor.IsAudioFile(path) {
			jobs <- path
		}
		return nil
	}
}

func (s *Scanner) importFile(path string) bool {
	track, err := s.extractor.ExtractFromFile(path)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", path).Error("Error extracting metadata")
		return false
	}

	id, err := s.store.InsertTrack(track)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", path).Error("Error inserting track into database")
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"id":      id,
		"title":   track.Title,
		"artists": track.ArtistNames(),
	}).Debug("Imported track")
	return true
}
