package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

type fixedPlanner []string

func (p fixedPlanner) Plan(context.Context, string, []string) ([]string, error) {
	return p, nil
}

// waitForPause blocks the first step until the job is paused.
type waitForPause struct {
	store *jobs.Store
	id    string
}

func (e *waitForPause) Execute(ctx context.Context, step string) (string, error) {
	if step != "first" {
		return "done", nil
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := e.store.GetJob(ctx, e.id)
		if err == nil && job.Status == models.JobStatusPaused {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "done", nil
}

func TestPauseWhenRunningWaitsOutPendingJob(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jobs.NewStore(ctx, jobs.NewMemoryBackend(), logger)
	require.NoError(t, err)

	executor := &waitForPause{store: store}
	runner := service.NewRunner(service.RunnerDeps{
		Store:    store,
		Planner:  fixedPlanner{"first", "second"},
		Executor: executor,
		Logger:   logger,
	})

	id, err := runner.CreateTask(ctx, "two steps")
	require.NoError(t, err)
	executor.id = id

	paused := make(chan error, 1)
	go func() { paused <- pauseWhenRunning(ctx, runner, id) }()

	// Still pending: the pause must keep waiting.
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-paused:
		t.Fatalf("returned while job was pending: %v", err)
	default:
	}

	require.NoError(t, runner.RunTask(ctx, id))
	require.NoError(t, <-paused)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPaused, job.Status)
	assert.Equal(t, models.StepStatusCompleted, job.Steps[0].Status)
	assert.Equal(t, models.StepStatusPending, job.Steps[1].Status)
}

func TestPauseWhenRunningLeavesFinishedJob(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jobs.NewStore(ctx, jobs.NewMemoryBackend(), logger)
	require.NoError(t, err)

	runner := service.NewRunner(service.RunnerDeps{
		Store:    store,
		Planner:  fixedPlanner{"only"},
		Executor: &waitForPause{store: store},
		Logger:   logger,
	})
	id, err := runner.ExecuteTask(ctx, "one step")
	require.NoError(t, err)

	require.NoError(t, pauseWhenRunning(ctx, runner, id))
	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}
