// Package retention periodically prunes finished jobs and their artifacts.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// DefaultSchedule runs the sweep at the top of every hour
const DefaultSchedule = "0 0 * * * *"

// Pruner removes terminal jobs older than a cutoff
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper runs Prune on a cron schedule
type Sweeper struct {
	pruner Pruner
	maxAge time.Duration
	cron   *cron.Cron
	logger arbor.ILogger
}

func NewSweeper(pruner Pruner, maxAge time.Duration, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		pruner: pruner,
		maxAge: maxAge,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start schedules the sweep
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := s.cron.AddFunc(schedule, s.RunNow); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Dur("max_age", s.maxAge).
		Msg("Job retention sweeper started")
	return nil
}

// Stop stops the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Job retention sweeper stopped")
}

// RunNow performs one sweep synchronously
func (s *Sweeper) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pruned, err := s.pruner.Prune(ctx, s.maxAge)
	if err != nil {
		s.logger.Error().Err(err).Int("pruned", pruned).Msg("Job retention sweep failed")
		return
	}
	s.logger.Debug().Int("pruned", pruned).Msg("Job retention sweep completed")
}
