// Package janitor removes staged uploads left behind when the process stops
// before a pipeline finished with them. It never touches job records.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// UploadTracker knows which uploads still belong to a queued or running job.
type UploadTracker interface {
	InFlight(path string) bool
}

// Sweeper deletes upload files older than a retention period.
type Sweeper struct {
	dir     string
	prefix  string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	tracker UploadTracker
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithTracker makes the sweeper keep uploads the tracker reports in flight,
// whatever their age.
func WithTracker(tracker UploadTracker) SweeperOption {
	return func(s *Sweeper) {
		s.tracker = tracker
	}
}

// NewSweeper returns a sweeper for files named prefix* in dir.
func NewSweeper(dir, prefix string, ttl time.Duration, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		dir:    dir,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "janitor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep removes expired uploads and returns how many were deleted.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read upload directory: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), s.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if s.tracker != nil && s.tracker.InFlight(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("failed to remove orphaned upload", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed orphaned uploads", "count", removed)
	}
	return removed, nil
}

// Service runs the sweeper on a cron schedule.
type Service struct {
	schedule string
	sweeper  *Sweeper
	cron     *cron.Cron
}

// NewService returns a service running sweeper on schedule, a cron spec
// such as "@every 15m".
func NewService(schedule string, sweeper *Sweeper) *Service {
	return &Service{
		schedule: schedule,
		sweeper:  sweeper,
		cron:     cron.New(),
	}
}

// Name identifies the service in logs.
func (s *Service) Name() string {
	return "janitor"
}

// Start sweeps once immediately, then on every tick of the schedule.
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.sweeper.Sweep(); err != nil {
			s.sweeper.logger.Error("upload sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule upload sweep %q: %w", s.schedule, err)
	}
	if _, err := s.sweeper.Sweep(); err != nil {
		s.sweeper.logger.Error("upload sweep failed", "error", err)
	}
	s.cron.Start()
	s.sweeper.logger.Info("upload sweeper scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule. The returned context is done once a running
// sweep has finished.
func (s *Service) Stop() context.Context {
	return s.cron.Stop()
}
