package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CoverReferences reports which stored covers are still in use.
type CoverReferences interface {
	CoverPaths(ctx context.Context) (map[string]bool, error)
}

// Janitor periodically removes cover files no playlist refers to, such as
// covers left behind when an account and its playlists are deleted.
type Janitor struct {
	store  *CoverStore
	refs   CoverReferences
	grace  time.Duration
	logger *logrus.Logger
	cron   *cron.Cron
}

// NewJanitor creates a janitor. Files younger than grace are never removed,
// so an upload whose playlist is still being written survives a sweep.
func NewJanitor(store *CoverStore, refs CoverReferences, grace time.Duration, logger *logrus.Logger) *Janitor {
	return &Janitor{
		store:  store,
		refs:   refs,
		grace:  grace,
		logger: logger,
	}
}

// Start schedules Sweep using a cron spec such as "@every 6h" or "0 3 * * *".
func (j *Janitor) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			j.logger.WithError(err).Error("Cover sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	j.cron = c

	j.logger.WithField("schedule", schedule).Info("Cover sweep scheduled")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep removes unreferenced covers older than the grace period and
// returns how many files were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	refs, err := j.refs.CoverPaths(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load cover references: %w", err)
	}

	entries, err := os.ReadDir(j.store.Dir())
	if err != nil {
		return 0, fmt.Errorf("failed to list covers: %w", err)
	}

	cutoff := time.Now().Add(-j.grace)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ref := j.store.PublicPath(entry.Name())
		if refs[ref] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := j.store.Remove(ref); err != nil {
			j.logger.WithError(err).WithField("cover", ref).Warn("Failed to remove orphaned cover")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Removed orphaned covers")
	}
	return removed, nil
}
