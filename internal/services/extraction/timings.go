package extraction

import (
	"context"
	"math/rand/v2"
	"time"
)

// Jitter is a uniformly random delay in [Min, Max]
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a random delay within the range
func (j Jitter) Pick() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + rand.N(j.Max-j.Min+1)
}

// Timings paces the interaction with the search page so it reads like a person typing
type Timings struct {
	Keystroke         Jitter
	Backspace         Jitter
	ClearSettle       Jitter
	SubmitSettle      Jitter
	RevealWait        Jitter
	NavigationTimeout time.Duration
	EmailVisible      time.Duration
	ContainerVisible  time.Duration
	Probe             time.Duration // visibility check for optional controls
}

// DefaultTimings returns the production pacing
func DefaultTimings() Timings {
	return Timings{
		Keystroke:         Jitter{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond},
		Backspace:         Jitter{Min: 20 * time.Millisecond, Max: 50 * time.Millisecond},
		ClearSettle:       Jitter{Min: 500 * time.Millisecond, Max: time.Second},
		SubmitSettle:      Jitter{Min: 2500 * time.Millisecond, Max: 4 * time.Second},
		RevealWait:        Jitter{Min: 1500 * time.Millisecond, Max: 2500 * time.Millisecond},
		NavigationTimeout: 30 * time.Second,
		EmailVisible:      5 * time.Second,
		ContainerVisible:  2 * time.Second,
		Probe:             time.Second,
	}
}

// sleep waits for d or until ctx ends
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
