package library

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// defaultSettleDelay gives writers time to finish a file before it is read
const defaultSettleDelay = 500 * time.Millisecond

// Watcher keeps the catalog in step with files added to or removed from
// the library directory.
type Watcher struct {
	scanner     *Scanner
	logger      *logrus.Logger
	settleDelay time.Duration

	watcher *fsnotify.Watcher
	pending sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewWatcher creates a watcher that imports through scanner
func NewWatcher(scanner *Scanner, logger *logrus.Logger) *Watcher {
	return &Watcher{
		scanner:     scanner,
		logger:      logger,
		settleDelay: defaultSettleDelay,
		done:        make(chan struct{}),
	}
}

// Start begins recursive monitoring of root
func (w *Watcher) Start(root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := w.addDirectory(root); err != nil {
		watcher.Close()
		return err
	}

	go w.run()

	w.logger.WithField("library_path", root).Info("File watcher started")
	return nil
}

func (w *Watcher) addDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// temp and hidden files
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}

	isAudio := w.scanner.extractor.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudio:
		w.pending.Add(1)
		go func(path string) {
			defer w.pending.Done()
			time.Sleep(w.settleDelay)
			w.handleNewFile(path)
		}(event.Name)

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isAudio:
		w.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectory(event.Name); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Warn("Could not watch new directory")
				return
			}
			w.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

func (w *Watcher) handleNewFile(path string) {
	exists, err := w.scanner.store.TrackExists(path)
	if err != nil {
		w.logger.WithError(err).WithField("file_path", path).Error("Error checking if track exists")
		return
	}
	if exists {
		w.logger.WithField("file_path", path).Debug("Track already exists in database")
		return
	}
	if w.scanner.importFile(path) {
		w.logger.WithField("file_path", path).Info("Added new track")
	}
}

func (w *Watcher) handleRemovedFile(path string) {
	if err := w.scanner.store.RemoveTrackByPath(path); err != nil {
		w.logger.WithError(err).WithField("file_path", path).Error("Error removing track from database")
		return
	}
	w.logger.WithField("file_path", path).Info("Removed track from database")
}

// Close stops the watcher and waits for in-flight imports. Safe to call
// more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher == nil {
			return
		}
		err = w.watcher.Close()
		<-w.done
		w.pending.Wait()
	})
	return err
}
