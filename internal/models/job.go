package models

import (
	"time"
)

// JobStatus is the lifecycle state of an enrichment job
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusError    JobStatus = "error"
)

// IsTerminal reports whether the job has stopped and will not change again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinished || s == JobStatusError
}

// JobPhase refines the running state so a client knows when a login signal is expected
type JobPhase string

const (
	JobPhaseNone       JobPhase = ""
	JobPhaseLoggingIn  JobPhase = "logging_in"
	JobPhaseProcessing JobPhase = "processing"
)

// JobDetails carries the session credentials and extraction configuration of a job.
// Either Cookies or ManualLogin drives authentication.
type JobDetails struct {
	Cookies     string         `json:"cookies,omitempty"`
	ManualLogin bool           `json:"manual_login"`
	Selectors   SelectorConfig `json:"selectors"`
}

// Job is one enrichment run over one uploaded table
type Job struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	Phase         JobPhase   `json:"phase,omitempty"`
	Progress      int        `json:"progress"`
	Total         int        `json:"total"`
	Error         string     `json:"error,omitempty"`
	InputFilename string     `json:"input_filename"`
	InputPath     string     `json:"input_path"`
	OutputPath    string     `json:"output_path"`
	StatusPath    string     `json:"status_path"`
	SignalPath    string     `json:"signal_path"`
	Details       JobDetails `json:"details"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// JobView is the client-facing projection of a Job; credentials and paths are omitted
type JobView struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Phase      JobPhase   `json:"phase,omitempty"`
	Progress   int        `json:"progress"`
	Total      int        `json:"total"`
	Error      string     `json:"error,omitempty"`
	Filename   string     `json:"filename"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// View returns a copy of the job safe to hand to clients
func (j *Job) View() *JobView {
	return &JobView{
		ID:         j.ID,
		Status:     j.Status,
		Phase:      j.Phase,
		Progress:   j.Progress,
		Total:      j.Total,
		Error:      j.Error,
		Filename:   j.InputFilename,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Clone returns a deep enough copy to hand outside the registry lock
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	c.Details.Selectors = j.Details.Selectors.Clone()
	return &c
}

// ProgressSnapshot is the worker-written progress file contents
type ProgressSnapshot struct {
	Progress  int       `json:"progress"`
	Total     int       `json:"total"`
	Status    JobStatus `json:"status"`
	Phase     JobPhase  `json:"phase,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
