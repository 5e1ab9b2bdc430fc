package queue

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/signals"
	"github.com/ternarybob/enricher/internal/worker"
)

// stderrTailLines bounds the stderr kept for the failure message
const stderrTailLines = 20

// WorkerExitError is a worker process that ended with a non-zero status
type WorkerExitError struct {
	Code    int
	Message string
}

func (e *WorkerExitError) Error() string {
	return e.Message
}

// ProcessConfig holds the per-installation part of the worker contract
type ProcessConfig struct {
	Executable       string
	Headless         bool
	ProfileDir       string
	UserAgent        string
	OperationTimeout time.Duration
	LoginTimeout     time.Duration
	RatePolicy       models.RatePolicy
	PersonalDomains  []string
	LogLevel         string
}

// ProcessRunner runs each job as "<exe> worker <id> <input> <output>"
type ProcessRunner struct {
	config ProcessConfig
	logger arbor.ILogger
}

func NewProcessRunner(config ProcessConfig, logger arbor.ILogger) *ProcessRunner {
	return &ProcessRunner{config: config, logger: logger}
}

// WorkerEnv builds the environment contract for a job
func (p *ProcessRunner) WorkerEnv(job *models.Job) *worker.Env {
	return &worker.Env{
		Selectors:        worker.EncodeJSON(job.Details.Selectors),
		Cookies:          job.Details.Cookies,
		Manual:           job.Details.ManualLogin,
		Headless:         p.config.Headless,
		ProgressFile:     job.StatusPath,
		SignalFile:       job.SignalPath,
		ProfileDir:       p.config.ProfileDir,
		LoginTimeout:     p.config.LoginTimeout,
		OperationTimeout: p.config.OperationTimeout,
		RatePolicy:       worker.EncodeJSON(p.config.RatePolicy),
		UserAgent:        p.config.UserAgent,
		PersonalDomains:  p.config.PersonalDomains,
		LogLevel:         p.config.LogLevel,
	}
}

// Run spawns the worker and waits for it. ctx cancellation kills the process.
func (p *ProcessRunner) Run(ctx context.Context, job *models.Job) error {
	logger := p.logger.WithCorrelationId(job.ID)

	cmd := exec.CommandContext(ctx, p.config.Executable, "worker", job.ID, job.InputPath, job.OutputPath)
	cmd.Env = append(os.Environ(), p.WorkerEnv(job).Environ()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach worker stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	logger.Info().
		Str("job_id", job.ID).
		Int("pid", cmd.Process.Pid).
		Bool("manual_login", job.Details.ManualLogin).
		Msg("Worker started")

	tail := newLineTail(stderrTailLines)
	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		forward(stdout, func(line string) {
			logger.Info().Str("stream", "stdout").Msg(line)
		})
	}()
	go func() {
		defer streams.Done()
		forward(stderr, func(line string) {
			tail.add(line)
			logger.Warn().Str("stream", "stderr").Msg(line)
		})
	}()

	// Pipes must be drained before Wait closes them
	streams.Wait()
	waitErr := cmd.Wait()
	if waitErr == nil {
		return nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	message := exitMessage(job.StatusPath, tail.last(), code)
	if ctx.Err() != nil {
		message = fmt.Sprintf("worker stopped: %v", ctx.Err())
	}

	return &WorkerExitError{Code: code, Message: message}
}

// exitMessage prefers the worker's own error report, then its last stderr line
func exitMessage(statusPath, lastStderr string, code int) string {
	if snapshot, ok, err := signals.NewProgressFile(statusPath).Read(); err == nil && ok && snapshot.Error != "" {
		return snapshot.Error
	}
	if lastStderr != "" {
		return models.Truncate(lastStderr, models.MaxNoteLength)
	}
	return fmt.Sprintf("worker exited with code %d", code)
}

// maxLineLength bounds one forwarded line. The rest of a longer line is read and discarded.
const maxLineLength = 64 * 1024

const truncatedMarker = " [truncated]"

// forward emits each line of r until EOF or a read error. It never stops reading
// early, so the worker cannot block on a full pipe.
func forward(r io.Reader, emit func(line string)) {
	reader := bufio.NewReaderSize(r, maxLineLength)
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			return
		}
		line := string(chunk)

		truncated := false
		for isPrefix && err == nil {
			truncated = true
			_, isPrefix, err = reader.ReadLine()
		}

		line = strings.TrimRight(line, "\r")
		if truncated {
			line += truncatedMarker
		}
		if line != "" {
			emit(line)
		}
		if err != nil {
			return
		}
	}
}

// lineTail keeps the last n lines written to it
type lineTail struct {
	mu    sync.Mutex
	lines []string
	n     int
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}
