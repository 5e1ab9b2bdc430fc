// Package queue runs jobs one at a time in submission order, each in its own
// worker process.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/models"
)

// Lifecycle records the state transitions of a job around its run
type Lifecycle interface {
	Begin(ctx context.Context, jobID string) (*models.Job, error)
	Complete(ctx context.Context, jobID string, err error)
}

// Runner executes one job and blocks until it ends
type Runner interface {
	Run(ctx context.Context, job *models.Job) error
}

// Scheduler is a FIFO with a single execution slot. A drain loop starts when work
// arrives and exits when the queue is empty, so at most one job runs at a time.
type Scheduler struct {
	mu       sync.Mutex
	pending  []string
	draining bool
	stopped  bool
	running  string

	lifecycle Lifecycle
	runner    Runner
	logger    arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(lifecycle Lifecycle, runner Runner, logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		lifecycle: lifecycle,
		runner:    runner,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Enqueue appends a job and starts the drain loop if it is idle
func (s *Scheduler) Enqueue(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, jobID)
	s.logger.Debug().
		Str("job_id", jobID).
		Int("pending", len(s.pending)).
		Msg("Job enqueued")

	if s.draining || s.stopped {
		return
	}
	s.draining = true
	s.wg.Add(1)
	common.SafeGo(s.logger, "queue-drain", s.drain)
}

func (s *Scheduler) drain() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.ctx.Err() != nil {
			s.draining = false
			s.running = ""
			s.mu.Unlock()
			return
		}
		jobID := s.pending[0]
		s.pending = s.pending[1:]
		s.running = jobID
		s.mu.Unlock()

		s.execute(jobID)
	}
}

// execute runs one job. A panic fails the job instead of stalling the queue.
func (s *Scheduler) execute(jobID string) {
	logger := s.logger.WithCorrelationId(jobID)

	job, err := s.lifecycle.Begin(s.ctx, jobID)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to start job, skipping")
		return
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("runner panic: %v", r)
				logger.Error().
					Str("job_id", jobID).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job runner")
			}
		}()

		logger.Info().Str("job_id", jobID).Msg("Job started")
		runErr = s.runner.Run(s.ctx, job)
	}()

	// Completion must be recorded even when shutting down
	s.lifecycle.Complete(context.Background(), jobID, runErr)
}

// Pending returns the number of jobs waiting for the slot
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Running returns the id of the job holding the slot, or ""
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop cancels the running job and waits for the drain loop to exit.
// Jobs still pending stay queued in storage and are recovered on restart.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Debug().Msg("Scheduler stopped")
}
