package sync

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the background tick runs.
const DefaultInterval = 30 * time.Second

// Syncer is the slice of Manager the background loop needs.
type Syncer interface {
	Name() string
	ProcessQueue(ctx context.Context) bool
	FetchAndMerge(ctx context.Context) bool
}

// Runner periodically flushes the pending queues and reconciles every
// registered collection against the server.
type Runner struct {
	interval time.Duration
	syncers  []Syncer
}

// NewRunner creates a runner over the given syncers. interval <= 0 selects
// the default.
func NewRunner(interval time.Duration, syncers ...Syncer) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{interval: interval, syncers: syncers}
}

// Register adds a syncer to the loop. Useful for per-deck card managers
// created after startup.
func (r *Runner) Register(s Syncer) {
	r.syncers = append(r.syncers, s)
}

// RunOnce performs a single flush-and-reconcile pass over all syncers.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, s := range r.syncers {
		if ok := s.ProcessQueue(ctx); !ok {
			slog.Info("queue flush incomplete", "manager", s.Name())
		}
		if ok := s.FetchAndMerge(ctx); !ok {
			slog.Info("reconcile incomplete", "manager", s.Name())
		}
	}
}

// Run ticks until the context is cancelled. The first pass runs
// immediately rather than waiting out a full interval.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("starting sync loop", "interval", r.interval)
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sync loop stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
