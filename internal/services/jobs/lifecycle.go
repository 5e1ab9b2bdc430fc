package jobs

import (
	"context"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/signals"
)

// Begin marks a queued job running and returns a copy for the runner
func (r *Registry) Begin(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.Lock()
	job, err := r.lookup(jobID)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	now := r.now()
	job.Status = models.JobStatusRunning
	job.Phase = models.JobPhaseNone
	job.Progress = 0
	job.Error = ""
	job.StartedAt = &now
	job.FinishedAt = nil
	snapshot := job.Clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return snapshot, nil
}

// Complete records the worker outcome. A nil runErr finishes the job; anything
// else fails it with the error text.
func (r *Registry) Complete(ctx context.Context, jobID string, runErr error) {
	r.mu.Lock()
	job, err := r.lookup(jobID)
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn().Err(err).Msg("Completed job is not registered")
		return
	}

	r.mergeProgress(job)

	now := r.now()
	job.FinishedAt = &now
	job.Phase = models.JobPhaseNone
	if runErr == nil {
		job.Status = models.JobStatusFinished
		job.Progress = job.Total
		job.Error = ""
	} else {
		job.Status = models.JobStatusError
		job.Error = runErr.Error()
	}
	snapshot := job.Clone()
	r.mu.Unlock()

	final := models.ProgressSnapshot{
		Progress:  snapshot.Progress,
		Total:     snapshot.Total,
		Status:    snapshot.Status,
		Error:     snapshot.Error,
		UpdatedAt: now.UTC(),
	}
	if err := signals.NewProgressFile(snapshot.StatusPath).Write(final); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to write final progress")
	}

	r.persist(ctx, snapshot)

	if runErr != nil {
		r.logger.Warn().
			Err(runErr).
			Str("job_id", jobID).
			Int("progress", snapshot.Progress).
			Int("total", snapshot.Total).
			Msg("Job failed")
		return
	}
	r.logger.Info().
		Str("job_id", jobID).
		Int("total", snapshot.Total).
		Msg("Job finished")
}

func (r *Registry) persist(ctx context.Context, job *models.Job) {
	if err := r.storage.SaveJob(ctx, job); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist job")
	}
}
