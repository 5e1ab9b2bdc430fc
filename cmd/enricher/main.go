package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/app"
	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	common.LoadVersionFromFile()

	// .env values become ENRICHER_* overrides; a missing file is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "worker" {
		os.Exit(runWorker(os.Args[2:]))
	}

	os.Exit(serve(os.Args[1:]))
}

func serve(args []string) int {
	var configFiles configPaths

	fs := flag.NewFlagSet("enricher", flag.ExitOnError)
	fs.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	fs.Var(&configFiles, "c", "Configuration file path (shorthand)")
	serverPort := fs.Int("port", 0, "Server port (overrides config)")
	serverPortP := fs.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost := fs.String("host", "", "Server host (overrides config)")
	showVersion := fs.Bool("version", false, "Print version information")
	showVersionV := fs.Bool("v", false, "Print version information (shorthand)")
	fs.Parse(args)

	if *showVersion || *showVersionV {
		fmt.Printf("Enricher version %s\n", common.GetFullVersion())
		return 0
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("enricher.toml"); err == nil {
			configFiles = append(configFiles, "enricher.toml")
		} else if _, err := os.Stat("deployments/local/enricher.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/enricher.toml")
		}
	}

	// Startup order: config (defaults -> files -> env), CLI overrides, logger, banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		return 1
	}
	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	logger := common.InitLogger(&config.Logging, "enricher")
	common.InstallCrashHandler(common.LogsDir())
	defer common.RecoverWithCrashFile("server")

	common.PrintBanner(config, logger)

	logger.Debug().
		Str("badger_path", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("rate_preset", config.Enrichment.RateLimit.Preset).
		Msg("Resolved configuration")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	srv := server.New(application)

	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Start()
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
	return 0
}
