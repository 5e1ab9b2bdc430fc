package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/handlers"
	"github.com/ternarybob/enricher/internal/interfaces"
	"github.com/ternarybob/enricher/internal/queue"
	"github.com/ternarybob/enricher/internal/services/browser"
	"github.com/ternarybob/enricher/internal/services/jobs"
	"github.com/ternarybob/enricher/internal/services/retention"
	"github.com/ternarybob/enricher/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB         *badger.BadgerDB
	JobStorage interfaces.JobStorage

	Registry  *jobs.Registry
	Scheduler *queue.Scheduler
	Sweeper   *retention.Sweeper

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	JobHandler    *handlers.JobHandler
	StreamHandler *handlers.StatusStreamHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Bool("retention_enabled", cfg.Retention.Enabled).
		Bool("headless", cfg.Browser.Headless).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.JobStorage = badger.NewJobStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices wires registry, queue and retention in dependency order:
// registry -> runner -> scheduler -> recover persisted jobs -> sweeper
func (a *App) initServices() error {
	artifacts := jobs.NewArtifacts(a.Config.Storage.ArtifactsDir)
	if err := os.MkdirAll(a.Config.Storage.ArtifactsDir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	a.Registry = jobs.NewRegistry(a.JobStorage, artifacts, a.Config.Selectors, a.Logger)

	processConfig, err := a.processConfig()
	if err != nil {
		return err
	}
	runner := queue.NewProcessRunner(processConfig, a.Logger)

	a.Scheduler = queue.NewScheduler(a.Registry, runner, a.Logger)
	a.Registry.SetQueue(a.Scheduler)

	if err := a.Registry.Recover(context.Background()); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	if a.Config.Retention.Enabled {
		maxAge := common.ParseDuration(a.Config.Retention.MaxAge, 7*24*time.Hour)
		a.Sweeper = retention.NewSweeper(a.Registry, maxAge, a.Logger)
		if err := a.Sweeper.Start(a.Config.Retention.Schedule); err != nil {
			a.Sweeper = nil
			return fmt.Errorf("invalid retention schedule %q: %w", a.Config.Retention.Schedule, err)
		}
	}

	return nil
}

// processConfig resolves the worker launch settings. The worker is this binary
// unless worker.executable names another one.
func (a *App) processConfig() (queue.ProcessConfig, error) {
	executable := a.Config.Worker.Executable
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return queue.ProcessConfig{}, fmt.Errorf("failed to resolve worker executable: %w", err)
		}
		executable = exe
	}

	return queue.ProcessConfig{
		Executable:       executable,
		Headless:         a.Config.Browser.Headless,
		ProfileDir:       a.Config.Browser.ProfileDir,
		UserAgent:        a.Config.Browser.UserAgent,
		OperationTimeout: common.ParseDuration(a.Config.Browser.OperationTimeout, browser.DefaultOperationTimeout),
		LoginTimeout:     common.ParseDuration(a.Config.Worker.LoginTimeout, 30*time.Minute),
		RatePolicy:       a.Config.Enrichment.RateLimit,
		PersonalDomains:  a.Config.Enrichment.PersonalDomains,
		LogLevel:         a.Config.Logging.Level,
	}, nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Scheduler, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Registry, handlers.UploadLimits{
		MaxSize:   a.Config.Server.MaxUploadSize,
		PerMinute: a.Config.Server.UploadsPerMinute,
		Burst:     a.Config.Server.UploadBurst,
	}, a.Logger)
	a.StreamHandler = handlers.NewStatusStreamHandler(a.Registry, a.Logger)
}

// Close stops background work and closes storage. A running worker is killed;
// its job is failed and queued jobs are left for the next start to recover.
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
		a.Logger.Info().Msg("Job scheduler stopped")
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
