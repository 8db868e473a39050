// Package scheduler runs the optional cron-driven status digest.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/swarmhub/swarmgate/internal/report"
)

// StatusSource produces the snapshot summarized by each digest.
type StatusSource interface {
	Status() report.StatusSnapshot
}

// Scheduler logs a periodic per-backend health and outcome summary.
type Scheduler struct {
	cron   *cron.Cron
	source StatusSource
	logger *slog.Logger
}

// New registers the digest job on the given cron schedule.
func New(schedule string, source StatusSource, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		source: source,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.logDigest); err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) logDigest() {
	snap := s.source.Status()

	up, down, unknown := 0, 0, 0
	failures := 0
	for _, b := range snap.Backends {
		switch b.State {
		case "up":
			up++
		case "down":
			down++
		default:
			unknown++
		}
		for kind, count := range b.Outcomes {
			if kind != "success" {
				failures += count
			}
		}
	}

	s.logger.Info("Status digest",
		"backends", len(snap.Backends),
		"up", up, "down", down, "unknown", unknown,
		"recent_failures", failures)
}
