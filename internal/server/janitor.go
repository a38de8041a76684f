package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/deckforge/internal/logfields"
)

// Janitor prunes expired run directories on a schedule. Retention is read
// through a callback so configuration reloads take effect without restart.
type Janitor struct {
	outDir    string
	retainFor func() time.Duration
	scheduler gocron.Scheduler
}

// NewJanitor schedules pruning of outDir every interval.
func NewJanitor(outDir string, retainFor func() time.Duration, interval time.Duration) (*Janitor, error) {
	if interval <= 0 {
		interval = time.Hour
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	j := &Janitor{outDir: outDir, retainFor: retainFor, scheduler: s}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.prune),
		gocron.WithName("run-dir-janitor"),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule janitor job: %w", err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() {
	slog.Info("Starting run directory janitor", logfields.Path(j.outDir))
	j.scheduler.Start()
}

// Stop shuts the schedule down.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

// prune removes run directories older than the retention window. A zero or
// negative window disables pruning.
func (j *Janitor) prune() {
	retain := j.retainFor()
	if retain <= 0 {
		return
	}
	cutoff := time.Now().Add(-retain)

	entries, err := os.ReadDir(j.outDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Janitor scan failed", logfields.Error(err))
		}
		return
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.outDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Janitor removal failed", logfields.Path(path), logfields.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Pruned expired run directories", slog.Int("removed", removed))
	}
}
