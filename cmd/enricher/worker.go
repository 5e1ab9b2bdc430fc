package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/enricher/internal/common"
	"github.com/ternarybob/enricher/internal/services/browser"
	"github.com/ternarybob/enricher/internal/worker"
)

const workerUsage = "usage: enricher worker <jobID> <inputPath> <outputPath>"

// runWorker is the worker process entry point. The last stderr line is what the
// control process reports when no progress file error is available.
func runWorker(args []string) int {
	if len(args) != 3 {
		fmt.Fprintln(os.Stderr, workerUsage)
		return 2
	}

	env, err := worker.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := common.InitLogger(&common.LoggingConfig{
		Level:  env.LogLevel,
		Output: []string{"stdout", "file"},
	}, "worker")
	common.InstallCrashHandler(common.LogsDir())
	defer common.RecoverWithCrashFile("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.New(worker.Args{
		JobID:      args[0],
		InputPath:  args[1],
		OutputPath: args[2],
	}, env, browser.Open, logger.WithCorrelationId(args[0]))

	if err := w.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
