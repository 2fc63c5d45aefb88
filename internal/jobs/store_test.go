package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock advances by one second on every call.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), backend, testLogger())
	require.NoError(t, err)
	store.now = newFakeClock().Now
	return store
}

func TestCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "build CLI tool")
	require.NoError(t, err)
	require.Len(t, id, 8)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "build CLI tool", job.Task)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Empty(t, job.Plan)
	assert.Empty(t, job.Steps)
	assert.Empty(t, job.Artifacts)
	assert.Empty(t, job.Metadata)
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())

	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "build CLI tool")
	require.NoError(t, err)

	plan := []string{"write main file", "add tests", "run tests"}
	require.NoError(t, store.SetPlan(ctx, id, plan))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	require.Len(t, job.Steps, 3)
	for i, step := range job.Steps {
		assert.Equal(t, models.StepStatusPending, step.Status)
		assert.Equal(t, plan[i], step.Description)
	}

	_, err = store.CompleteStep(ctx, id, 0, "ok", models.StepStatusCompleted)
	require.NoError(t, err)
	_, err = store.CompleteStep(ctx, id, 1, "syntax error", models.StepStatusFailed)
	require.NoError(t, err)

	job, err = store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status, "status settles only when every step is terminal")

	_, err = store.CompleteStep(ctx, id, 2, "ok", models.StepStatusCompleted)
	require.NoError(t, err)

	job, err = store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Steps[1].Result)
	assert.Equal(t, "syntax error", *job.Steps[1].Result)
	assert.Len(t, job.Steps, len(job.Plan))
}

func TestAllStepsCompletedDerivesCompleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))

	for i := range 2 {
		require.NoError(t, store.StartStep(ctx, id, i))
		_, err := store.CompleteStep(ctx, id, i, "done", models.StepStatusCompleted)
		require.NoError(t, err)
	}

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestCompleteStepRecordsTiming(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))

	t.Run("started step gets duration", func(t *testing.T) {
		require.NoError(t, store.StartStep(ctx, id, 0))
		job, err := store.CompleteStep(ctx, id, 0, "out", models.StepStatusCompleted)
		require.NoError(t, err)

		step := job.Steps[0]
		require.NotNil(t, step.Result)
		require.NotNil(t, step.CompletedAt)
		require.NotNil(t, step.Duration)
		assert.GreaterOrEqual(t, *step.Duration, 0.0)
		assert.Equal(t, 1, step.Attempts)
	})

	t.Run("never started step has no duration", func(t *testing.T) {
		job, err := store.CompleteStep(ctx, id, 1, "out", models.StepStatusCompleted)
		require.NoError(t, err)

		step := job.Steps[1]
		require.NotNil(t, step.Result)
		require.NotNil(t, step.CompletedAt)
		assert.Nil(t, step.Duration)
		assert.Nil(t, step.StartedAt)
	})
}

func TestStartStepDoesNotRecompute(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
	_, err = store.CompleteStep(ctx, id, 0, "done", models.StepStatusCompleted)
	require.NoError(t, err)

	require.NoError(t, store.StartStep(ctx, id, 0))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	step := job.Steps[0]
	assert.Equal(t, models.StepStatusRunning, step.Status)
	assert.Nil(t, step.Result, "a running step has no result")
	assert.Nil(t, step.CompletedAt)
	assert.Nil(t, step.Duration)
}

func TestRetryOverwritesResult(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))

	for i := range 2 {
		require.NoError(t, store.StartStep(ctx, id, i))
		_, err := store.CompleteStep(ctx, id, i, "first", models.StepStatusCompleted)
		require.NoError(t, err)
	}
	before, err := store.GetJob(ctx, id)
	require.NoError(t, err)

	require.NoError(t, store.StartStep(ctx, id, 1))
	after, err := store.CompleteStep(ctx, id, 1, "second", models.StepStatusFailed)
	require.NoError(t, err)

	assert.Equal(t, "second", *after.Steps[1].Result)
	assert.Equal(t, 2, after.Steps[1].Attempts)
	assert.Equal(t, before.Steps[0], after.Steps[0])
	assert.Equal(t, before.Plan, after.Plan)
	assert.Equal(t, models.JobStatusFailed, after.Status)

	require.NoError(t, store.StartStep(ctx, id, 1))
	after, err = store.CompleteStep(ctx, id, 1, "third", models.StepStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, after.Status, "a successful retry settles a failed job")
}

func TestStepIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))

	tests := []struct {
		name string
		fn   func() error
	}{
		{"start negative", func() error { return store.StartStep(ctx, id, -1) }},
		{"start past end", func() error { return store.StartStep(ctx, id, 1) }},
		{"complete past end", func() error {
			_, err := store.CompleteStep(ctx, id, 5, "x", models.StepStatusCompleted)
			return err
		}},
		{"begin past end", func() error {
			_, err := store.BeginStep(ctx, id, 1)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			assert.ErrorIs(t, err, ErrStepNotFound)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCompleteStepRejectsNonTerminalStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))

	_, err = store.CompleteStep(ctx, id, 0, "x", models.StepStatusRunning)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("empty plan rejected", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)

		err = store.SetPlan(ctx, id, nil)
		assert.ErrorIs(t, err, ErrEmptyPlan)
	})

	t.Run("planning job can be planned", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)
		require.NoError(t, store.UpdateStatus(ctx, id, models.JobStatusPlanning))

		require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))
		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusRunning, job.Status)
		assert.Equal(t, []string{"a", "b"}, job.Plan)
	})

	t.Run("re-plan of started job rejected", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)
		require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
		_, err = store.CompleteStep(ctx, id, 0, "done", models.StepStatusCompleted)
		require.NoError(t, err)

		err = store.SetPlan(ctx, id, []string{"other"})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, job.Plan)
		assert.Equal(t, "done", *job.Steps[0].Result)
	})

	t.Run("plan slice is copied", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)

		plan := []string{"a"}
		require.NoError(t, store.SetPlan(ctx, id, plan))
		plan[0] = "mutated"

		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "a", job.Plan[0])
	})
}

func TestBeginStepHonoursHaltedJobs(t *testing.T) {
	ctx := context.Background()

	for _, status := range []models.JobStatus{models.JobStatusPaused, models.JobStatusAborted} {
		t.Run(string(status), func(t *testing.T) {
			store := newTestStore(t, NewMemoryBackend())
			id, err := store.CreateJob(ctx, "task")
			require.NoError(t, err)
			require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
			require.NoError(t, store.UpdateStatus(ctx, id, status))

			_, err = store.BeginStep(ctx, id, 0)
			assert.ErrorIs(t, err, ErrJobHalted)

			job, err := store.GetJob(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.StepStatusPending, job.Steps[0].Status)
			assert.Nil(t, job.Steps[0].StartedAt)
		})
	}
}

func TestAbortIsNotOverriddenByCompletion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
	require.NoError(t, store.StartStep(ctx, id, 0))
	require.NoError(t, store.AbortJob(ctx, id))

	job, err := store.CompleteStep(ctx, id, 0, "late result", models.StepStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborted, job.Status)
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)

	err = store.PauseJob(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending job cannot be paused")

	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b", "c"}))
	_, err = store.CompleteStep(ctx, id, 0, "ok", models.StepStatusCompleted)
	require.NoError(t, err)
	require.NoError(t, store.PauseJob(ctx, id))
	require.NoError(t, store.PauseJob(ctx, id), "pausing twice is a no-op")

	from, err := store.ResumeJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, from)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
}

func TestResumeJobRules(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal job is not resumable", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)
		require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
		_, err = store.CompleteStep(ctx, id, 0, "ok", models.StepStatusCompleted)
		require.NoError(t, err)
		before, err := store.GetJob(ctx, id)
		require.NoError(t, err)

		_, err = store.ResumeJob(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		after, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after, "failed resume mutates nothing")
	})

	t.Run("running step is resumed", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)
		require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))
		_, err = store.CompleteStep(ctx, id, 0, "ok", models.StepStatusCompleted)
		require.NoError(t, err)
		require.NoError(t, store.StartStep(ctx, id, 1))

		from, err := store.ResumeJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, from)
	})

	t.Run("nothing to do settles status", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		id, err := store.CreateJob(ctx, "task")
		require.NoError(t, err)
		require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))
		_, err = store.CompleteStep(ctx, id, 0, "boom", models.StepStatusFailed)
		require.NoError(t, err)
		require.NoError(t, store.UpdateStatus(ctx, id, models.JobStatusPaused))

		from, err := store.ResumeJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, -1, from)

		job, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, job.Status)
	})

	t.Run("unknown job", func(t *testing.T) {
		store := newTestStore(t, NewMemoryBackend())
		_, err := store.ResumeJob(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMutationsRefreshUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	last := job.UpdatedAt

	require.NoError(t, store.SetPlan(ctx, id, []string{"a"}))

	mutations := []struct {
		name string
		fn   func() error
	}{
		{"memory context", func() error { return store.SetMemoryContext(ctx, id, []string{"ctx"}) }},
		{"artifact", func() error { return store.AddArtifact(ctx, id, models.Artifact{Type: "file", Name: "main.py"}) }},
		{"metadata", func() error { return store.SetMetadata(ctx, id, "lang", "python") }},
		{"start step", func() error { return store.StartStep(ctx, id, 0) }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			require.NoError(t, m.fn())
			job, err := store.GetJob(ctx, id)
			require.NoError(t, err)
			assert.True(t, job.UpdatedAt.After(last), "updatedAt should advance")
			last = job.UpdatedAt

			summaries, err := store.ListJobs(ListOptions{})
			require.NoError(t, err)
			require.Len(t, summaries, 1)
			assert.Equal(t, job.UpdatedAt, summaries[0].UpdatedAt)
		})
	}

	job, err = store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"ctx"}, job.MemoryContext)
	require.Len(t, job.Artifacts, 1)
	assert.False(t, job.Artifacts[0].CreatedAt.IsZero())
	assert.Equal(t, "python", job.Metadata["lang"])
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	var ids []string
	for i := range 5 {
		id, err := store.CreateJob(ctx, fmt.Sprintf("task %d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, store.AbortJob(ctx, ids[1]))
	require.NoError(t, store.AbortJob(ctx, ids[3]))

	t.Run("limit and order", func(t *testing.T) {
		got, err := store.ListJobs(ListOptions{Limit: 3})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, ids[4], got[0].ID)
		assert.Equal(t, ids[3], got[1].ID)
		assert.Equal(t, ids[2], got[2].ID)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt))
		}
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := store.ListJobs(ListOptions{Status: models.JobStatusAborted})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, ids[3], got[0].ID)
		assert.Equal(t, ids[1], got[1].ID)
	})

	t.Run("limit is an upper bound", func(t *testing.T) {
		for n := 1; n <= 7; n++ {
			got, err := store.ListJobs(ListOptions{Limit: n})
			require.NoError(t, err)
			assert.Len(t, got, min(n, 5), "limit %d", n)
		}
	})

	t.Run("no limit", func(t *testing.T) {
		got, err := store.ListJobs(ListOptions{})
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := store.ListJobs(ListOptions{Status: "done"})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	counts := store.StatusCounts()
	assert.Equal(t, 3, counts[models.JobStatusPending])
	assert.Equal(t, 2, counts[models.JobStatusAborted])
}

func TestDeleteJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)

	require.NoError(t, store.DeleteJob(ctx, id))

	_, err = store.GetJob(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListJobs(ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	err = store.DeleteJob(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.locks.size())
}

func TestIndexRebuiltOnRestart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b"}))
	require.NoError(t, store.StartStep(ctx, id, 0))

	restarted := newTestStore(t, backend)
	job, err := restarted.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusRunning, job.Steps[0].Status)

	next, err := restarted.NextPendingStep(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

// failingBackend wraps a backend and fails writes on demand.
type failingBackend struct {
	Backend
	failSave   bool
	failDelete bool
}

var errDiskFull = errors.New("disk full")

func (b *failingBackend) Save(ctx context.Context, job *models.Job) error {
	if b.failSave {
		return errDiskFull
	}
	return b.Backend.Save(ctx, job)
}

func (b *failingBackend) Delete(ctx context.Context, id string) error {
	if b.failDelete {
		return errDiskFull
	}
	return b.Backend.Delete(ctx, id)
}

func TestStorageErrorsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{Backend: NewMemoryBackend()}
	store := newTestStore(t, backend)

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)
	before, err := store.ListJobs(ListOptions{})
	require.NoError(t, err)

	backend.failSave = true
	err = store.UpdateStatus(ctx, id, models.JobStatusAborted)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, IsStorageError(err))

	after, err := store.ListJobs(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = store.CreateJob(ctx, "another")
	assert.True(t, IsStorageError(err))
	assert.Equal(t, 1, store.index.Len())

	backend.failSave = false
	backend.failDelete = true
	err = store.DeleteJob(ctx, id)
	assert.True(t, IsStorageError(err))

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err, "failed delete keeps the job")
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SetMetadata(ctx, id, fmt.Sprintf("key-%d", i), i))
		}(i)
	}
	wg.Wait()

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Len(t, job.Metadata, n, "no update may be lost")
	assert.Zero(t, store.locks.size())
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, NewMemoryBackend())

	id, err := store.CreateJob(ctx, "task")
	require.NoError(t, err)

	err = store.UpdateStatus(ctx, id, "done")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
