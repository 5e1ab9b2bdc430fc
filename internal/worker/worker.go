// Package worker is the per-job process: it opens the browser session, waits for a
// manual login when asked to, and runs the enrichment pipeline over the input table.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/services/browser"
	"github.com/ternarybob/enricher/internal/services/enrichment"
	"github.com/ternarybob/enricher/internal/services/extraction"
	"github.com/ternarybob/enricher/internal/signals"
	"github.com/ternarybob/enricher/internal/table"
)

// State is the worker's position in its lifecycle
type State string

const (
	StateInit       State = "init"
	StateLoggingIn  State = "logging_in"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// SessionFactory opens the browser session for a job
type SessionFactory func(config browser.Config, logger arbor.ILogger) (interfaces.BrowserSession, error)

// Args are the positional arguments of the worker command
type Args struct {
	JobID      string
	InputPath  string
	OutputPath string
}

// Worker runs one job to completion
type Worker struct {
	args         Args
	env          *Env
	openSession  SessionFactory
	timings      extraction.Timings
	pollInterval time.Duration
	logger       arbor.ILogger

	progress *signals.ProgressFile
	state    State
	done     int
	total    int
}

func New(args Args, env *Env, openSession SessionFactory, logger arbor.ILogger) *Worker {
	return &Worker{
		args:         args,
		env:          env,
		openSession:  openSession,
		timings:      extraction.DefaultTimings(),
		pollInterval: signals.DefaultPollInterval,
		logger:       logger,
		progress:     signals.NewProgressFile(env.ProgressFile),
		state:        StateInit,
	}
}

// WithTimings replaces the interaction pacing
func (w *Worker) WithTimings(timings extraction.Timings) *Worker {
	w.timings = timings
	return w
}

// WithPollInterval replaces the start signal poll interval
func (w *Worker) WithPollInterval(interval time.Duration) *Worker {
	w.pollInterval = interval
	return w
}

func (w *Worker) State() State {
	return w.state
}

// Run executes the job. On failure the error is also recorded in the progress file.
func (w *Worker) Run(ctx context.Context) error {
	err := w.run(ctx)
	if err != nil {
		w.state = StateFailed
		w.report(models.ProgressSnapshot{
			Progress: w.done,
			Total:    w.total,
			Status:   models.JobStatusError,
			Error:    models.Truncate(err.Error(), models.MaxNoteLength),
		})
		w.logger.Error().Err(err).Str("job_id", w.args.JobID).Msg("Worker failed")
		return err
	}

	w.state = StateDone
	w.logger.Info().
		Str("job_id", w.args.JobID).
		Int("total", w.total).
		Str("output", w.args.OutputPath).
		Msg("Worker finished")
	return nil
}

func (w *Worker) run(ctx context.Context) error {
	selectors, err := w.env.SelectorConfig()
	if err != nil {
		return err
	}
	if err := selectors.Validate(); err != nil {
		return err
	}

	policy, err := w.env.Policy()
	if err != nil {
		return err
	}
	pacer, err := enrichment.NewPacerFromPolicy(policy)
	if err != nil {
		return err
	}

	tbl, err := readInput(w.args.InputPath)
	if err != nil {
		return err
	}
	if len(tbl.Overflow) > 0 {
		w.logger.Warn().
			Int("rows", len(tbl.Overflow)).
			Int("first_row", tbl.Overflow[0]+1).
			Int("columns", len(tbl.Header)).
			Msg("Rows wider than the header, extra cells dropped")
	}
	w.total = tbl.Len()
	w.report(models.ProgressSnapshot{Total: w.total, Status: models.JobStatusRunning})

	if w.total == 0 {
		w.logger.Info().Msg("Input has no records, writing header only")
		if err := table.WriteFile(w.args.OutputPath, tbl); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	// A person has to see the browser to log in
	headless := w.env.Headless && !w.env.Manual
	session, err := w.openSession(browser.Config{
		Headless:         headless,
		ProfileDir:       w.env.ProfileDir,
		UserAgent:        w.env.UserAgent,
		OperationTimeout: w.env.OperationTimeout,
		NoSandbox:        os.Geteuid() == 0, // chrome refuses to run as root with the sandbox
	}, w.logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Failed to close browser session")
		}
	}()

	if w.env.Cookies != "" {
		cookies := browser.ParseCookies(w.env.Cookies, selectors.ResolveCookieDomain())
		if err := session.SetCookies(ctx, cookies); err != nil {
			if !w.env.Manual {
				return err
			}
			w.logger.Warn().Err(err).Msg("Cookie injection failed, relying on manual login")
		}
	}

	page := session.Page()
	if err := page.Navigate(ctx, selectors.SearchPageURL); err != nil {
		return fmt.Errorf("failed to open search page: %w", err)
	}

	if w.env.Manual {
		w.state = StateLoggingIn
		w.report(models.ProgressSnapshot{Total: w.total, Status: models.JobStatusRunning, Phase: models.JobPhaseLoggingIn})
		w.logger.Info().
			Str("job_id", w.args.JobID).
			Dur("timeout", w.env.LoginTimeout).
			Msg("Manual login requested. Log in using the opened browser, then signal start.")

		signal := signals.NewStartSignal(w.env.SignalFile, w.logger)
		if err := signal.Wait(ctx, w.pollInterval, w.env.LoginTimeout); err != nil {
			return err
		}
		w.logger.Info().Msg("Start signal received")
	}

	w.state = StateProcessing
	w.report(models.ProgressSnapshot{Total: w.total, Status: models.JobStatusRunning, Phase: models.JobPhaseProcessing})

	pipeline := enrichment.NewPipeline(enrichment.Config{
		Searcher:    extraction.NewEngine(page, selectors, w.timings, w.logger),
		Categorizer: extraction.NewCategorizer(w.env.PersonalDomains...),
		Selectors:   selectors,
		Pacer:       pacer,
		OutputPath:  w.args.OutputPath,
		Logger:      w.logger,
		OnProgress: func(done, total int) error {
			w.done = done
			return w.progress.Write(models.ProgressSnapshot{
				Progress: done,
				Total:    total,
				Status:   models.JobStatusRunning,
				Phase:    models.JobPhaseProcessing,
			})
		},
	})
	return pipeline.Run(ctx, tbl)
}

func (w *Worker) report(snapshot models.ProgressSnapshot) {
	if err := w.progress.Write(snapshot); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to write progress")
	}
}

func readInput(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	tbl, err := table.Decode(path, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return tbl, nil
}
