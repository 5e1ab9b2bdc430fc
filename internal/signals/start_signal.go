package signals

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ternarybob/arbor"
)

// ErrLoginTimeout is returned when no start signal arrives within the login timeout
var ErrLoginTimeout = errors.New("timed out waiting for login confirmation")

// DefaultPollInterval is how often the worker checks for the start signal
const DefaultPollInterval = time.Second

// StartSignal is the one-shot marker that releases a worker waiting on manual login
type StartSignal struct {
	path   string
	logger arbor.ILogger
}

func NewStartSignal(path string, logger arbor.ILogger) *StartSignal {
	return &StartSignal{path: path, logger: logger}
}

func (s *StartSignal) Path() string {
	return s.path
}

// Raise creates the signal. Raising an existing signal is a no-op.
func (s *StartSignal) Raise() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to raise start signal: %w", err)
	}
	return f.Close()
}

// Pending reports whether the signal has been raised and not yet consumed
func (s *StartSignal) Pending() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Wait polls until the signal appears, then consumes it.
// A timeout of zero waits until ctx is cancelled.
func (s *StartSignal) Wait(ctx context.Context, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.Pending() {
			s.consume()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrLoginTimeout
		case <-ticker.C:
		}
	}
}

// consume removes the signal. Failure is logged and ignored; the wait is already satisfied.
func (s *StartSignal) consume() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if s.logger != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to remove start signal")
		}
	}
}
