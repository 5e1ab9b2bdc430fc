package queue

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/enricher/internal/models"
)

// fakeWorker writes a shell script standing in for the worker binary
func fakeWorker(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script workers need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-worker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func testJob(t *testing.T) *models.Job {
	dir := t.TempDir()
	return &models.Job{
		ID:         "job-1",
		InputPath:  filepath.Join(dir, "input.csv"),
		OutputPath: filepath.Join(dir, "output.csv"),
		StatusPath: filepath.Join(dir, "status.json"),
		SignalPath: filepath.Join(dir, "start.signal"),
		Details: models.JobDetails{
			Cookies:     "a=1",
			ManualLogin: true,
			Selectors:   models.SelectorConfig{NameInput: "#name"},
		},
	}
}

func newRunner(exe string) *ProcessRunner {
	return NewProcessRunner(ProcessConfig{
		Executable:       exe,
		Headless:         true,
		LoginTimeout:     time.Minute,
		OperationTimeout: 30 * time.Second,
		RatePolicy:       models.RatePolicy{Preset: models.RatePresetFast},
	}, arbor.NewLogger())
}

func TestProcessRunner_PassesContract(t *testing.T) {
	exe := fakeWorker(t, `echo "$1|$2|$JOB_MANUAL|$JOB_COOKIES|$JOB_SELECTORS|$JOB_LOGIN_TIMEOUT" > "$4"`)
	job := testJob(t)

	require.NoError(t, newRunner(exe).Run(context.Background(), job))

	out, err := os.ReadFile(job.OutputPath)
	require.NoError(t, err)
	parts := strings.Split(strings.TrimSpace(string(out)), "|")
	require.Len(t, parts, 6)
	assert.Equal(t, "worker", parts[0])
	assert.Equal(t, "job-1", parts[1])
	assert.Equal(t, "1", parts[2])
	assert.Equal(t, "a=1", parts[3])
	assert.Contains(t, parts[4], `"NAME_INPUT_SELECTOR":"#name"`)
	assert.Equal(t, "1m0s", parts[5])
}

func TestProcessRunner_PrefersSnapshotError(t *testing.T) {
	exe := fakeWorker(t, `echo '{"status":"error","error":"extraction configuration invalid"}' > "$JOB_PROGRESS_FILE"
echo "noise" >&2
exit 1`)

	err := newRunner(exe).Run(context.Background(), testJob(t))

	var exitErr *WorkerExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, "extraction configuration invalid", exitErr.Message)
}

func TestProcessRunner_FallsBackToStderr(t *testing.T) {
	exe := fakeWorker(t, `echo "first" >&2
echo "fatal: browser crashed" >&2
exit 3`)

	err := newRunner(exe).Run(context.Background(), testJob(t))

	var exitErr *WorkerExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "fatal: browser crashed", exitErr.Message)
}

func TestProcessRunner_SilentExit(t *testing.T) {
	err := newRunner(fakeWorker(t, "exit 4")).Run(context.Background(), testJob(t))
	assert.EqualError(t, err, "worker exited with code 4")
}

func TestProcessRunner_Cancel(t *testing.T) {
	exe := fakeWorker(t, "exec sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := newRunner(exe).Run(ctx, testJob(t))

	var exitErr *WorkerExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "worker stopped")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcessRunner_MissingExecutable(t *testing.T) {
	err := newRunner(filepath.Join(t.TempDir(), "nope")).Run(context.Background(), testJob(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker")
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(2)
	assert.Equal(t, "", tail.last())
	tail.add("a")
	tail.add("b")
	tail.add("c")
	assert.Equal(t, "c", tail.last())
	assert.Equal(t, []string{"b", "c"}, tail.lines)
}

func TestForward_TruncatesLongLinesAndKeepsReading(t *testing.T) {
	long := strings.Repeat("x", 3*maxLineLength)
	input := "first\r\n" + long + "\n\nlast"

	var lines []string
	forward(strings.NewReader(input), func(line string) {
		lines = append(lines, line)
	})

	require.Len(t, lines, 3)
	assert.Equal(t, "first", lines[0])
	assert.Equal(t, strings.Repeat("x", maxLineLength)+truncatedMarker, lines[1])
	assert.Equal(t, "last", lines[2])
}

func TestProcessRunner_SurvivesOversizedOutputLine(t *testing.T) {
	exe := fakeWorker(t, `head -c 2000000 /dev/zero | tr '\0' 'x'
echo
seq 1 20000
echo "still alive" >&2`)

	job := testJob(t)

	done := make(chan error, 1)
	go func() {
		done <- newRunner(exe).Run(context.Background(), job)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("runner blocked after an oversized worker output line")
	}
}
