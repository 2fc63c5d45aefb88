// Package jobs provides durable job storage with an in-memory summary index.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/localgenius/internal/models"
)

// Store owns every read and write of job state. Mutations are full-record
// read-modify-write cycles serialized per job id; the index is updated only
// after the backend write succeeds.
type Store struct {
	backend Backend
	index   *Index
	locks   *keyedMutex
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewStore creates a store over backend and rebuilds the index from it.
func NewStore(ctx context.Context, backend Backend, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		index:   NewIndex(),
		locks:   newKeyedMutex(),
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.New().String()[:8] },
	}
	if err := s.RebuildIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// RebuildIndex reloads every summary from the backend.
func (s *Store) RebuildIndex(ctx context.Context) error {
	summaries, err := s.backend.Summaries(ctx)
	if err != nil {
		return &StorageError{Op: "rebuild index", Err: err}
	}

	valid := summaries[:0]
	for _, sum := range summaries {
		if !sum.Status.Valid() {
			s.logger.Warn("skipping job with unknown status", "job_id", sum.ID, "status", sum.Status)
			continue
		}
		valid = append(valid, sum)
	}
	s.index.Rebuild(valid)
	s.logger.Debug("job index rebuilt", "jobs", len(valid))
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// CreateJob allocates a new pending job for task and persists it.
func (s *Store) CreateJob(ctx context.Context, task string) (string, error) {
	id := s.newID()
	for {
		if _, taken := s.index.Get(id); !taken {
			break
		}
		id = s.newID()
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	job := models.NewJob(id, task, s.now())
	if err := s.backend.Save(ctx, job); err != nil {
		return "", &StorageError{Op: "create", JobID: id, Err: err}
	}
	s.index.Put(job.Summary())

	s.logger.Info("job created", "job_id", id, "task", task)
	return id, nil
}

// GetJob loads the full record for id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if _, ok := s.index.Get(id); !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	job, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "load", JobID: id, Err: err}
	}
	if job == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return job, nil
}

// ListJobs returns index entries newest first, never more than opts.Limit
// when it is positive. A zero Limit lists every job, so callers that want a
// page size apply their own default (the CLI and MCP tools use 20).
func (s *Store) ListJobs(opts ListOptions) ([]models.JobSummary, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("list: %w: %q", ErrInvalidStatus, opts.Status)
	}
	return s.index.List(opts), nil
}

// StatusCounts returns the number of jobs per status.
func (s *Store) StatusCounts() map[models.JobStatus]int {
	return s.index.Counts()
}

// NextPendingStep returns the first step that is pending or running, or -1.
func (s *Store) NextPendingStep(ctx context.Context, id string) (int, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return -1, err
	}
	return job.FirstIncompleteStep(), nil
}

// UpdateStatus sets the job status without transition checks.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.JobStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update status: %w: %q", ErrInvalidStatus, status)
	}
	_, err := s.mutate(ctx, "update status", id, func(job *models.Job) error {
		job.Status = status
		return nil
	})
	return err
}

// SetPlan stores the plan, builds one pending step per entry and marks the
// job running. Only pending and planning jobs may be planned; re-planning a
// job that has started executing would discard its step history.
func (s *Store) SetPlan(ctx context.Context, id string, plan []string) error {
	if len(plan) == 0 {
		return fmt.Errorf("set plan %s: %w", id, ErrEmptyPlan)
	}
	_, err := s.mutate(ctx, "set plan", id, func(job *models.Job) error {
		switch job.Status {
		case models.JobStatusPending, models.JobStatusPlanning:
		default:
			return fmt.Errorf("set plan %s: %w: job is %s", id, ErrInvalidTransition, job.Status)
		}
		job.Plan = slices.Clone(plan)
		job.Steps = models.NewSteps(plan)
		job.Status = models.JobStatusRunning
		return nil
	})
	return err
}

// StartStep marks a step running. Job status is not recomputed.
func (s *Store) StartStep(ctx context.Context, id string, index int) error {
	_, err := s.mutate(ctx, "start step", id, func(job *models.Job) error {
		return s.startStep(job, index)
	})
	return err
}

// BeginStep marks a step running unless the job is paused or aborted, in
// which case it returns ErrJobHalted and changes nothing. The status check and
// the write happen under the same lock.
func (s *Store) BeginStep(ctx context.Context, id string, index int) (*models.Job, error) {
	return s.mutate(ctx, "begin step", id, func(job *models.Job) error {
		if job.Status.Halted() {
			return fmt.Errorf("begin step %d of %s: %w: job is %s", index, id, ErrJobHalted, job.Status)
		}
		return s.startStep(job, index)
	})
}

func (s *Store) startStep(job *models.Job, index int) error {
	if index < 0 || index >= len(job.Steps) {
		return fmt.Errorf("step %d of %s: %w", index, job.ID, ErrStepNotFound)
	}
	now := s.now()
	step := &job.Steps[index]
	step.Status = models.StepStatusRunning
	step.StartedAt = &now
	step.Result = nil
	step.CompletedAt = nil
	step.Duration = nil
	step.Attempts++
	return nil
}

// CompleteStep records the outcome of a step run and recomputes job status.
// status must be StepStatusCompleted or StepStatusFailed.
func (s *Store) CompleteStep(ctx context.Context, id string, index int, result string, status models.StepStatus) (*models.Job, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("complete step: %w: %q", ErrInvalidStatus, status)
	}
	return s.mutate(ctx, "complete step", id, func(job *models.Job) error {
		if index < 0 || index >= len(job.Steps) {
			return fmt.Errorf("step %d of %s: %w", index, id, ErrStepNotFound)
		}
		now := s.now()
		step := &job.Steps[index]
		step.Result = &result
		step.CompletedAt = &now
		step.Status = status
		if step.StartedAt != nil {
			d := max(now.Sub(*step.StartedAt).Seconds(), 0)
			step.Duration = &d
		} else {
			step.Duration = nil
		}

		s.recompute(job)
		return nil
	})
}

// recompute settles the job status once every step has finished. An aborted
// job keeps its status.
func (s *Store) recompute(job *models.Job) {
	if job.Status == models.JobStatusAborted {
		return
	}
	if derived, ok := models.DeriveStatus(job.Steps); ok && derived != job.Status {
		s.logger.Debug("job status derived", "job_id", job.ID, "from", job.Status, "to", derived)
		job.Status = derived
	}
}

// PauseJob moves a running job to paused. Pausing a paused job is a no-op.
func (s *Store) PauseJob(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, "pause", id, func(job *models.Job) error {
		switch job.Status {
		case models.JobStatusRunning, models.JobStatusPaused:
			job.Status = models.JobStatusPaused
			return nil
		default:
			return fmt.Errorf("pause %s: %w: job is %s", id, ErrInvalidTransition, job.Status)
		}
	})
	return err
}

// AbortJob sets the job to aborted from any status.
func (s *Store) AbortJob(ctx context.Context, id string) error {
	return s.UpdateStatus(ctx, id, models.JobStatusAborted)
}

// ResumeJob checks that the job is paused or running and returns the index
// of the first unfinished step, marking the job running. When every step has
// finished it returns -1 and settles the job status instead.
func (s *Store) ResumeJob(ctx context.Context, id string) (int, error) {
	from := -1
	_, err := s.mutate(ctx, "resume", id, func(job *models.Job) error {
		if !job.Status.Resumable() {
			return fmt.Errorf("resume %s: %w: job is %s", id, ErrInvalidTransition, job.Status)
		}
		from = job.FirstIncompleteStep()
		if from < 0 {
			s.recompute(job)
			return nil
		}
		job.Status = models.JobStatusRunning
		return nil
	})
	if err != nil {
		return -1, err
	}
	return from, nil
}

// SetMemoryContext stores the context captured at planning time.
func (s *Store) SetMemoryContext(ctx context.Context, id string, memoryContext []string) error {
	_, err := s.mutate(ctx, "set memory context", id, func(job *models.Job) error {
		job.MemoryContext = slices.Clone(memoryContext)
		return nil
	})
	return err
}

// AddArtifact appends an artifact. A zero CreatedAt is set to now.
func (s *Store) AddArtifact(ctx context.Context, id string, artifact models.Artifact) error {
	_, err := s.mutate(ctx, "add artifact", id, func(job *models.Job) error {
		if artifact.CreatedAt.IsZero() {
			artifact.CreatedAt = s.now()
		}
		job.Artifacts = append(job.Artifacts, artifact)
		return nil
	})
	return err
}

// SetMetadata sets one metadata key.
func (s *Store) SetMetadata(ctx context.Context, id, key string, value any) error {
	_, err := s.mutate(ctx, "set metadata", id, func(job *models.Job) error {
		if job.Metadata == nil {
			job.Metadata = make(map[string]any)
		}
		job.Metadata[key] = value
		return nil
	})
	return err
}

// DeleteJob removes the record and its index entry. When the backend delete
// fails the index keeps the entry.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.index.Get(id); !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return &StorageError{Op: "delete", JobID: id, Err: err}
	}
	s.index.Remove(id)

	s.logger.Info("job deleted", "job_id", id)
	return nil
}

// mutate runs fn on the current record under the job's lock and persists the
// result. If fn returns an error nothing is written.
func (s *Store) mutate(ctx context.Context, op, id string, fn func(job *models.Job) error) (*models.Job, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, ok := s.index.Get(id); !ok {
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	job, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: op, JobID: id, Err: err}
	}
	if job == nil {
		s.logger.Warn("indexed job missing from backend", "job_id", id, "op", op)
		return nil, fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}

	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now()

	if err := s.backend.Save(ctx, job); err != nil {
		return nil, &StorageError{Op: op, JobID: id, Err: err}
	}
	s.index.Put(job.Summary())

	s.logger.Debug("job updated", "job_id", id, "op", op, "status", job.Status)
	return job.Clone(), nil
}
