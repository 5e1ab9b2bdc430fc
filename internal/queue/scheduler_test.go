package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
)

type fakeLifecycle struct {
	mu        sync.Mutex
	begun     []string
	completed map[string]error
	order     []string
	failBegin map[string]bool
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{completed: make(map[string]error), failBegin: make(map[string]bool)}
}

func (f *fakeLifecycle) Begin(ctx context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBegin[jobID] {
		return nil, errors.New("job vanished")
	}
	f.begun = append(f.begun, jobID)
	return &models.Job{ID: jobID, Status: models.JobStatusRunning}, nil
}

func (f *fakeLifecycle) Complete(ctx context.Context, jobID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[jobID] = err
	f.order = append(f.order, jobID)
}

func (f *fakeLifecycle) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// gatedRunner blocks each job until released and tracks concurrency
type gatedRunner struct {
	release   chan struct{}
	active    atomic.Int32
	maxActive atomic.Int32
	failures  map[string]error
	panics    map[string]bool
	mu        sync.Mutex
	started   []string
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{release: make(chan struct{}), failures: map[string]error{}, panics: map[string]bool{}}
}

func (g *gatedRunner) Run(ctx context.Context, job *models.Job) error {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		peak := g.maxActive.Load()
		if n <= peak || g.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	g.mu.Lock()
	g.started = append(g.started, job.ID)
	g.mu.Unlock()

	if g.panics[job.ID] {
		panic("runner exploded")
	}

	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.failures[job.ID]
}

func TestScheduler_FIFOSingleSlot(t *testing.T) {
	lifecycle := newFakeLifecycle()
	runner := newGatedRunner()
	runner.failures["b"] = &WorkerExitError{Code: 1, Message: "boom"}
	s := NewScheduler(lifecycle, runner, arbor.NewLogger())
	defer s.Stop()

	s.Enqueue("a")
	s.Enqueue("b")
	s.Enqueue("c")

	require.Eventually(t, func() bool { return s.Running() == "a" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.Pending())

	for i := 0; i < 3; i++ {
		runner.release <- struct{}{}
	}

	require.Eventually(t, func() bool { return lifecycle.completedCount() == 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), runner.maxActive.Load(), "only one job runs at a time")
	assert.Equal(t, []string{"a", "b", "c"}, runner.started)
	assert.Equal(t, []string{"a", "b", "c"}, lifecycle.order)
	assert.NoError(t, lifecycle.completed["a"])
	assert.EqualError(t, lifecycle.completed["b"], "boom")

	require.Eventually(t, func() bool { return s.Running() == "" }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RestartsAfterIdle(t *testing.T) {
	lifecycle := newFakeLifecycle()
	runner := newGatedRunner()
	s := NewScheduler(lifecycle, runner, arbor.NewLogger())
	defer s.Stop()

	s.Enqueue("a")
	runner.release <- struct{}{}
	require.Eventually(t, func() bool { return lifecycle.completedCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Enqueue("b")
	runner.release <- struct{}{}
	require.Eventually(t, func() bool { return lifecycle.completedCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, lifecycle.order)
}

func TestScheduler_PanicFailsJobAndContinues(t *testing.T) {
	lifecycle := newFakeLifecycle()
	runner := newGatedRunner()
	runner.panics["a"] = true
	s := NewScheduler(lifecycle, runner, arbor.NewLogger())
	defer s.Stop()

	s.Enqueue("a")
	s.Enqueue("b")
	runner.release <- struct{}{}

	require.Eventually(t, func() bool { return lifecycle.completedCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Error(t, lifecycle.completed["a"])
	assert.Contains(t, lifecycle.completed["a"].Error(), "panic")
	assert.NoError(t, lifecycle.completed["b"])
}

func TestScheduler_BeginFailureSkips(t *testing.T) {
	lifecycle := newFakeLifecycle()
	lifecycle.failBegin["a"] = true
	runner := newGatedRunner()
	s := NewScheduler(lifecycle, runner, arbor.NewLogger())
	defer s.Stop()

	s.Enqueue("a")
	s.Enqueue("b")
	runner.release <- struct{}{}

	require.Eventually(t, func() bool { return lifecycle.completedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, lifecycle.order)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	lifecycle := newFakeLifecycle()
	runner := newGatedRunner()
	s := NewScheduler(lifecycle, runner, arbor.NewLogger())

	s.Enqueue("a")
	s.Enqueue("b")
	require.Eventually(t, func() bool { return s.Running() == "a" }, time.Second, 5*time.Millisecond)

	s.Stop()

	assert.Equal(t, []string{"a"}, lifecycle.order)
	assert.ErrorIs(t, lifecycle.completed["a"], context.Canceled)
	assert.Equal(t, 1, s.Pending(), "pending jobs are left for recovery")

	s.Enqueue("c")
	assert.Equal(t, "", s.Running(), "a stopped scheduler does not start work")
}
