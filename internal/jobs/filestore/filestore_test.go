package filestore_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/jobs/filestore"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := filestore.New(t.TempDir(), testLogger())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := models.NewJob("abc12345", "build CLI tool", now)
	job.Plan = []string{"write main file"}
	job.Steps = models.NewSteps(job.Plan)
	result := "ok"
	job.Steps[0].Result = &result
	job.Steps[0].Status = models.StepStatusCompleted
	job.Metadata["lang"] = "python"

	require.NoError(t, b.Save(ctx, job))

	got, err := b.Load(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Task, got.Task)
	assert.Equal(t, job.Plan, got.Plan)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "ok", *got.Steps[0].Result)
	assert.Equal(t, "python", got.Metadata["lang"])

	_, err = os.Stat(filepath.Join(b.Dir(), "abc12345.json"))
	require.NoError(t, err)
}

func TestLoadMissing(t *testing.T) {
	b, err := filestore.New(t.TempDir(), testLogger())
	require.NoError(t, err)

	job, err := b.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, err := filestore.New(t.TempDir(), testLogger())
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, models.NewJob("abc", "task", time.Now())))
	require.NoError(t, b.Delete(ctx, "abc"))
	require.NoError(t, b.Delete(ctx, "abc"))

	job, err := b.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSummariesSkipsJunk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := filestore.New(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, models.NewJob("one", "first", time.Now())))
	require.NoError(t, b.Save(ctx, models.NewJob("two", "second", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	summaries, err := b.Summaries(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp files should remain")
	}
}

func TestStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := filestore.New(dir, testLogger())
	require.NoError(t, err)
	store, err := jobs.NewStore(ctx, b, testLogger())
	require.NoError(t, err)

	id, err := store.CreateJob(ctx, "build CLI tool")
	require.NoError(t, err)
	require.NoError(t, store.SetPlan(ctx, id, []string{"a", "b", "c"}))
	_, err = store.CompleteStep(ctx, id, 0, "done", models.StepStatusCompleted)
	require.NoError(t, err)
	require.NoError(t, store.StartStep(ctx, id, 1))

	b2, err := filestore.New(dir, testLogger())
	require.NoError(t, err)
	restarted, err := jobs.NewStore(ctx, b2, testLogger())
	require.NoError(t, err)

	job, err := restarted.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, models.StepStatusCompleted, job.Steps[0].Status)
	assert.Equal(t, models.StepStatusRunning, job.Steps[1].Status)
	assert.Equal(t, 1, job.FirstIncompleteStep())

	require.NoError(t, restarted.DeleteJob(ctx, id))
	_, err = os.Stat(filepath.Join(dir, id+".json"))
	assert.True(t, os.IsNotExist(err))
}
