// Package jobs owns the job registry of the control process: it accepts uploads,
// tracks every job's lifecycle and answers status and download queries.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/signals"
	"github.com/ternarybob/enricher/internal/table"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotReady      = errors.New("job not finished")
	ErrOutputMissing = errors.New("output file not found")
	ErrInvalidInput  = errors.New("invalid input file")
)

// interruptedMessage is recorded on jobs left running by a previous control process
const interruptedMessage = "interrupted by restart"

// Enqueuer accepts job ids for execution in submission order
type Enqueuer interface {
	Enqueue(jobID string)
}

// SubmitRequest is one upload
type SubmitRequest struct {
	Filename string
	Body     io.Reader
	Details  models.JobDetails
}

// Registry holds every known job. The map is the source of truth while the process
// runs; storage lets queued and finished jobs survive a restart.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	storage   interfaces.JobStorage
	artifacts Artifacts
	defaults  models.SelectorConfig
	queue     Enqueuer
	logger    arbor.ILogger
	now       func() time.Time
}

// NewRegistry creates a registry. defaults are the selector values an upload overrides.
func NewRegistry(storage interfaces.JobStorage, artifacts Artifacts, defaults models.SelectorConfig, logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:      make(map[string]*models.Job),
		storage:   storage,
		artifacts: artifacts,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// SetQueue connects the scheduler. It must be called before Submit or Recover.
func (r *Registry) SetQueue(queue Enqueuer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = queue
}

// Submit stores the upload, creates a queued job and hands it to the queue
func (r *Registry) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	format, err := table.FormatOf(req.Filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	jobID := common.NewJobID()
	if err := r.artifacts.Create(jobID); err != nil {
		return "", err
	}

	inputPath := r.artifacts.InputPath(jobID, format)
	tbl, err := storeInput(inputPath, req.Filename, req.Body)
	if err != nil {
		r.artifacts.Remove(jobID)
		return "", err
	}

	if len(tbl.Overflow) > 0 {
		r.logger.Warn().
			Str("job_id", jobID).
			Int("rows", len(tbl.Overflow)).
			Int("first_row", tbl.Overflow[0]+1).
			Int("columns", len(tbl.Header)).
			Msg("Rows wider than the header, extra cells dropped")
	}

	details := req.Details
	details.Selectors = r.defaults.Merge(req.Details.Selectors)

	job := &models.Job{
		ID:            jobID,
		Status:        models.JobStatusQueued,
		Total:         tbl.Len(),
		InputFilename: filepath.Base(req.Filename),
		InputPath:     inputPath,
		OutputPath:    r.artifacts.OutputPath(jobID),
		StatusPath:    r.artifacts.StatusPath(jobID),
		SignalPath:    r.artifacts.SignalPath(jobID),
		Details:       details,
		CreatedAt:     r.now(),
	}

	if err := r.storage.SaveJob(ctx, job); err != nil {
		r.artifacts.Remove(jobID)
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	r.mu.Lock()
	r.jobs[jobID] = job
	queue := r.queue
	r.mu.Unlock()

	r.logger.Info().
		Str("job_id", jobID).
		Str("filename", job.InputFilename).
		Int("total", job.Total).
		Bool("manual_login", details.ManualLogin).
		Msg("Job submitted")

	if queue != nil {
		queue.Enqueue(jobID)
	}
	return jobID, nil
}

// storeInput writes the upload to path and decodes it to count records
func storeInput(path, filename string, body io.Reader) (*table.Table, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to store input: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to store input: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to store input: %w", err)
	}

	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen input: %w", err)
	}
	defer in.Close()

	tbl, err := table.Decode(filename, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(tbl.Header) == 0 {
		return nil, fmt.Errorf("%w: file has no header row", ErrInvalidInput)
	}
	return tbl, nil
}

func (r *Registry) lookup(jobID string) (*models.Job, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return job, nil
}

// Status returns the client view of a job. While the job runs, the worker's
// progress file is merged in; progress never moves backwards or past total.
func (r *Registry) Status(ctx context.Context, jobID string) (*models.JobView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, err := r.lookup(jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == models.JobStatusRunning {
		r.mergeProgress(job)
	}
	return job.View(), nil
}

// mergeProgress folds the worker snapshot into job. Caller holds the write lock.
func (r *Registry) mergeProgress(job *models.Job) {
	snapshot, ok, err := signals.NewProgressFile(job.StatusPath).Read()
	if err != nil {
		r.logger.Debug().Err(err).Str("job_id", job.ID).Msg("Progress file unreadable, keeping last known progress")
		return
	}
	if !ok {
		return
	}

	if snapshot.Total > 0 {
		job.Total = snapshot.Total
	}
	progress := snapshot.Progress
	if progress < job.Progress {
		progress = job.Progress
	}
	if progress > job.Total {
		progress = job.Total
	}
	job.Progress = progress
	if snapshot.Phase != models.JobPhaseNone {
		job.Phase = snapshot.Phase
	}
}

// Download resolves the output artifact of a terminal job
func (r *Registry) Download(ctx context.Context, jobID string) (path string, filename string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, err := r.lookup(jobID)
	if err != nil {
		return "", "", err
	}
	if !job.Status.IsTerminal() {
		return "", "", fmt.Errorf("%w: status is %s", ErrNotReady, job.Status)
	}
	if !common.FileExists(job.OutputPath) {
		return "", "", fmt.Errorf("%w: %s", ErrOutputMissing, jobID)
	}
	return job.OutputPath, DownloadName(job.InputFilename), nil
}

// DownloadName is the attachment name of an enriched output
func DownloadName(inputFilename string) string {
	base := strings.TrimSuffix(inputFilename, filepath.Ext(inputFilename))
	if base == "" {
		base = "output"
	}
	return "enriched-" + base + ".csv"
}

// SignalStart releases a worker waiting on manual login. Repeating it is harmless.
func (r *Registry) SignalStart(ctx context.Context, jobID string) error {
	r.mu.RLock()
	job, err := r.lookup(jobID)
	var signalPath string
	if err == nil {
		signalPath = job.SignalPath
	}
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := signals.NewStartSignal(signalPath, r.logger).Raise(); err != nil {
		return err
	}
	r.logger.Info().Str("job_id", jobID).Msg("Start signal raised")
	return nil
}

// List returns every job, newest first
func (r *Registry) List(ctx context.Context) []*models.JobView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]*models.JobView, 0, len(r.jobs))
	for _, job := range r.jobs {
		if job.Status == models.JobStatusRunning {
			r.mergeProgress(job)
		}
		views = append(views, job.View())
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views
}

// Get returns a copy of the full job record
func (r *Registry) Get(ctx context.Context, jobID string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, err := r.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Recover reloads persisted jobs after a restart. Jobs that were running have lost
// their worker and are failed; queued jobs are queued again in creation order.
func (r *Registry) Recover(ctx context.Context) error {
	stored, err := r.storage.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	var requeue []string
	interrupted := 0

	r.mu.Lock()
	for _, job := range stored {
		switch job.Status {
		case models.JobStatusRunning:
			now := r.now()
			job.Status = models.JobStatusError
			job.Error = interruptedMessage
			job.Phase = models.JobPhaseNone
			job.FinishedAt = &now
			if err := r.storage.SaveJob(ctx, job); err != nil {
				r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to persist interrupted job")
			}
			interrupted++
		case models.JobStatusQueued:
			requeue = append(requeue, job.ID)
		}
		r.jobs[job.ID] = job
	}
	queue := r.queue
	r.mu.Unlock()

	if queue != nil {
		for _, id := range requeue {
			queue.Enqueue(id)
		}
	}

	r.logger.Info().
		Int("jobs", len(stored)).
		Int("requeued", len(requeue)).
		Int("interrupted", interrupted).
		Msg("Jobs recovered")
	return nil
}

// Prune deletes terminal jobs that finished before now-olderThan, with their artifacts
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	var expired []string
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range expired {
		if err := r.storage.DeleteJob(ctx, id); err != nil && !errors.Is(err, interfaces.ErrJobNotFound) {
			r.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to delete job record")
			if firstErr == nil {
				firstErr = err
			}
		}
		if err := r.artifacts.Remove(id); err != nil {
			r.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to remove job artifacts")
		}
	}

	if len(expired) > 0 {
		r.logger.Info().Int("pruned", len(expired)).Dur("older_than", olderThan).Msg("Old jobs pruned")
	}
	return len(expired), firstErr
}
