// Package service drives jobs through planning and step execution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/llm"
	"github.com/raphaelgruber/localgenius/internal/metrics"
	"github.com/raphaelgruber/localgenius/internal/models"
)

// Planner turns a task into an ordered list of step descriptions.
type Planner interface {
	Plan(ctx context.Context, task string, memoryContext []string) ([]string, error)
}

// Executor runs one step description and returns its output.
type Executor interface {
	Execute(ctx context.Context, step string) (string, error)
}

// StepOutput is the outcome of a step that may have produced artifacts.
type StepOutput struct {
	Result    string
	Artifacts []models.Artifact
}

// ArtifactExecutor is implemented by executors that report artifacts.
// Artifacts are recorded even when the step fails.
type ArtifactExecutor interface {
	ExecuteStep(ctx context.Context, step string) (StepOutput, error)
}

// Memory kinds recorded by the runner.
const (
	KindTask   = "task"
	KindPlan   = "plan"
	KindResult = "result"
)

// Memory is long-term memory used to seed planning. Both methods are
// best-effort and never fail the caller.
type Memory interface {
	Record(ctx context.Context, kind, text string)
	Search(ctx context.Context, query string) []string
}

// MetadataPlanningError is the metadata key holding the last planning failure.
const MetadataPlanningError = "planning_error"

// ResumeResult describes what a resume did.
type ResumeResult struct {
	// FromStep is the first step re-executed, or -1.
	FromStep int
	// NothingToDo is set when every step had already finished.
	NothingToDo bool
}

// RunnerDeps holds the collaborators of a Runner.
type RunnerDeps struct {
	Store    *jobs.Store
	Planner  Planner
	Executor Executor
	Memory   Memory
	Metrics  *metrics.Collector
	Logger   *slog.Logger

	// StepTimeout bounds each executor call when positive.
	StepTimeout time.Duration
}

// Runner executes jobs stored in a jobs.Store. At most one execution path
// (run, resume or retry) is active per job; pause and abort are observed
// between steps.
type Runner struct {
	store       *jobs.Store
	planner     Planner
	executor    Executor
	memory      Memory
	metrics     *metrics.Collector
	logger      *slog.Logger
	stepTimeout time.Duration

	mu     sync.Mutex
	active map[string]string // job id -> operation
	wg     sync.WaitGroup

	// stopping is cancelled by Shutdown; loops check it between steps.
	stopping context.Context
	shutdown context.CancelFunc
}

// NewRunner creates a runner. A nil Memory disables memory.
func NewRunner(deps RunnerDeps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	memory := deps.Memory
	if memory == nil {
		memory = NopMemory{}
	}
	stopping, shutdown := context.WithCancel(context.Background())
	return &Runner{
		stopping:    stopping,
		shutdown:    shutdown,
		store:       deps.Store,
		planner:     deps.Planner,
		executor:    deps.Executor,
		memory:      memory,
		metrics:     deps.Metrics,
		logger:      logger,
		stepTimeout: deps.StepTimeout,
		active:      make(map[string]string),
	}
}

// Store returns the underlying job store.
func (r *Runner) Store() *jobs.Store {
	return r.store
}

// Busy reports whether an execution path is active for id.
func (r *Runner) Busy(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Wait blocks until every background execution has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown makes every execution loop stop at its next step boundary. The
// step in progress finishes; the job stays running so ResumeInterrupted
// continues it later.
func (r *Runner) Shutdown() {
	r.shutdown()
}

func (r *Runner) acquire(id, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[id]; ok {
		return fmt.Errorf("%s %s: %w (%s in progress)", op, id, ErrJobBusy, cur)
	}
	r.active[id] = op
	return nil
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// background runs fn in a goroutine that owns the job's guard, which the
// caller must already hold.
func (r *Runner) background(ctx context.Context, id, op string, fn func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(id)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("job goroutine panicked", "job_id", id, "op", op, "panic", p)
			}
		}()

		if err := fn(bgCtx); err != nil {
			r.logger.Error("background job failed", "job_id", id, "op", op, "error", err)
		}
	}()
}

// ExecuteTask creates a job for task, plans it and runs every step.
// The job id is returned even when planning fails.
func (r *Runner) ExecuteTask(ctx context.Context, task string) (string, error) {
	id, err := r.CreateTask(ctx, task)
	if err != nil {
		return "", err
	}
	return id, r.RunTask(ctx, id)
}

// StartTask creates a job for task and runs it in the background.
func (r *Runner) StartTask(ctx context.Context, task string) (string, error) {
	id, err := r.CreateTask(ctx, task)
	if err != nil {
		return "", err
	}
	if err := r.acquire(id, "run"); err != nil {
		return id, err
	}
	r.background(ctx, id, "run", func(ctx context.Context) error {
		return r.runTask(ctx, id)
	})
	return id, nil
}

// CreateTask records the task in memory and creates a pending job.
func (r *Runner) CreateTask(ctx context.Context, task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", errors.New("create task: empty task description")
	}
	r.memory.Record(ctx, KindTask, task)
	return r.store.CreateJob(ctx, task)
}

// RunTask plans a pending job and executes its steps.
func (r *Runner) RunTask(ctx context.Context, id string) error {
	if err := r.acquire(id, "run"); err != nil {
		return err
	}
	defer r.release(id)
	return r.runTask(ctx, id)
}

func (r *Runner) runTask(ctx context.Context, id string) error {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("run %s: %w: job is %s", id, jobs.ErrInvalidTransition, job.Status)
	}

	if err := r.store.UpdateStatus(ctx, id, models.JobStatusPlanning); err != nil {
		return err
	}

	memoryContext := r.searchMemory(ctx, job.Task)
	if len(memoryContext) > 0 {
		if err := r.store.SetMemoryContext(ctx, id, memoryContext); err != nil {
			return err
		}
	}

	plan, err := r.plan(ctx, job.Task, memoryContext)
	if err != nil {
		r.logger.Warn("planning failed", "job_id", id, "error", err)
		if mdErr := r.store.SetMetadata(ctx, id, MetadataPlanningError, err.Error()); mdErr != nil {
			return mdErr
		}
		return &PlanningError{JobID: id, Err: err}
	}
	r.memory.Record(ctx, KindPlan, formatPlan(plan))

	if err := r.store.SetPlan(ctx, id, plan); err != nil {
		return err
	}
	r.logger.Info("job planned", "job_id", id, "steps", len(plan))

	return r.runSteps(ctx, id, 0)
}

func (r *Runner) plan(ctx context.Context, task string, memoryContext []string) ([]string, error) {
	start := time.Now()
	plan, err := r.planner.Plan(ctx, task, memoryContext)
	if err == nil && len(plan) == 0 {
		err = ErrNoSteps
	}
	r.metrics.Observe(metrics.OpPlan, start, err)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Runner) searchMemory(ctx context.Context, query string) []string {
	start := time.Now()
	results := r.memory.Search(ctx, query)
	r.metrics.Observe(metrics.OpMemorySearch, start, nil)
	return results
}

// ResumeJob continues a paused or running job from its first unfinished
// step. A job whose steps have all finished reports NothingToDo.
func (r *Runner) ResumeJob(ctx context.Context, id string) (ResumeResult, error) {
	res, err := r.prepareResume(ctx, id)
	if err != nil || res.NothingToDo {
		return res, err
	}
	defer r.release(id)
	return res, r.runSteps(ctx, id, res.FromStep)
}

// StartResume validates and prepares a resume, then runs the remaining steps
// in the background.
func (r *Runner) StartResume(ctx context.Context, id string) (ResumeResult, error) {
	res, err := r.prepareResume(ctx, id)
	if err != nil || res.NothingToDo {
		return res, err
	}
	r.background(ctx, id, "resume", func(ctx context.Context) error {
		return r.runSteps(ctx, id, res.FromStep)
	})
	return res, nil
}

// prepareResume holds the job's guard on success unless there is nothing to do.
func (r *Runner) prepareResume(ctx context.Context, id string) (ResumeResult, error) {
	if err := r.acquire(id, "resume"); err != nil {
		return ResumeResult{FromStep: -1}, err
	}
	from, err := r.store.ResumeJob(ctx, id)
	if err != nil {
		r.release(id)
		return ResumeResult{FromStep: -1}, err
	}
	if from < 0 {
		r.release(id)
		r.logger.Info("resume has nothing to do", "job_id", id)
		return ResumeResult{FromStep: -1, NothingToDo: true}, nil
	}
	r.logger.Info("resuming job", "job_id", id, "from_step", from)
	return ResumeResult{FromStep: from}, nil
}

// ResumeInterrupted resumes, in the background, every job left running by a
// previous process. It returns the ids that were resumed.
func (r *Runner) ResumeInterrupted(ctx context.Context) ([]string, error) {
	running, err := r.store.ListJobs(jobs.ListOptions{Status: models.JobStatusRunning})
	if err != nil {
		return nil, err
	}
	if len(running) == 0 {
		r.logger.Info("no interrupted jobs to resume")
		return nil, nil
	}

	var resumed []string
	for _, s := range running {
		res, err := r.StartResume(ctx, s.ID)
		switch {
		case errors.Is(err, ErrJobBusy):
			continue
		case jobs.IsStorageError(err):
			return resumed, err
		case err != nil:
			r.logger.Warn("failed to resume job", "job_id", s.ID, "error", err)
			continue
		}
		if !res.NothingToDo {
			resumed = append(resumed, s.ID)
		}
	}
	r.logger.Info("resumed interrupted jobs", "count", len(resumed))
	return resumed, nil
}

// RetryStep re-executes exactly one step, whatever its status, and returns
// the step's new status.
func (r *Runner) RetryStep(ctx context.Context, id string, index int) (models.StepStatus, error) {
	if err := r.prepareRetry(ctx, id, index); err != nil {
		return "", err
	}
	defer r.release(id)
	return r.retry(ctx, id, index)
}

// StartRetry validates a retry and runs it in the background.
func (r *Runner) StartRetry(ctx context.Context, id string, index int) error {
	if err := r.prepareRetry(ctx, id, index); err != nil {
		return err
	}
	r.background(ctx, id, "retry", func(ctx context.Context) error {
		_, err := r.retry(ctx, id, index)
		return err
	})
	return nil
}

func (r *Runner) prepareRetry(ctx context.Context, id string, index int) error {
	if err := r.acquire(id, "retry"); err != nil {
		return err
	}
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		r.release(id)
		return err
	}
	if index < 0 || index >= len(job.Steps) {
		r.release(id)
		return fmt.Errorf("retry step %d of %s: %w", index, id, jobs.ErrStepNotFound)
	}
	return nil
}

func (r *Runner) retry(ctx context.Context, id string, index int) (models.StepStatus, error) {
	if err := r.store.StartStep(ctx, id, index); err != nil {
		return "", err
	}
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	r.logger.Info("retrying step", "job_id", id, "step", index)

	job, err = r.executeStep(ctx, id, job.Steps[index])
	if err != nil {
		return "", err
	}
	return job.Steps[index].Status, nil
}

// PauseJob asks a running job to stop before its next step.
func (r *Runner) PauseJob(ctx context.Context, id string) error {
	if err := r.store.PauseJob(ctx, id); err != nil {
		return err
	}
	r.logger.Info("job paused", "job_id", id)
	return nil
}

// AbortJob marks the job aborted; an active loop stops before its next step.
func (r *Runner) AbortJob(ctx context.Context, id string) error {
	if err := r.store.AbortJob(ctx, id); err != nil {
		return err
	}
	r.logger.Info("job aborted", "job_id", id)
	return nil
}

// DeleteJob removes a job that has no active execution path.
func (r *Runner) DeleteJob(ctx context.Context, id string) error {
	if err := r.acquire(id, "delete"); err != nil {
		return err
	}
	defer r.release(id)
	return r.store.DeleteJob(ctx, id)
}

// runSteps executes steps in order starting at from. It stops when the job is
// paused or aborted; step failures do not stop it.
func (r *Runner) runSteps(ctx context.Context, id string, from int) error {
	job, err := r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	total := len(job.Steps)

	for i := from; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.stopping.Err() != nil {
			r.logger.Info("runner shutting down, leaving job for resume", "job_id", id, "step", i)
			return nil
		}

		job, err := r.store.BeginStep(ctx, id, i)
		if errors.Is(err, jobs.ErrJobHalted) {
			r.logger.Info("job halted before step", "job_id", id, "step", i)
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := r.executeStep(ctx, id, job.Steps[i]); err != nil {
			return err
		}
	}

	job, err = r.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	r.logger.Info("job finished",
		"job_id", id,
		"status", job.Status,
		"completed", job.CountSteps(models.StepStatusCompleted),
		"failed", job.CountSteps(models.StepStatusFailed))
	return nil
}

// executeStep invokes the executor for a step already marked running and
// records the outcome. Only store errors and cancellation are returned; a
// cancelled step is left running so a later resume re-executes it.
func (r *Runner) executeStep(ctx context.Context, id string, step models.Step) (*models.Job, error) {
	r.logger.Info("executing step", "job_id", id, "step", step.Index, "description", step.Description)

	start := time.Now()
	out, execErr := r.invoke(ctx, step.Description)
	duration := time.Since(start)
	r.metrics.Observe(metrics.OpStepExecute, start, execErr)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for _, a := range out.Artifacts {
		if err := r.store.AddArtifact(ctx, id, a); err != nil {
			return nil, err
		}
	}

	status := models.StepStatusCompleted
	result := out.Result
	if execErr != nil {
		status = models.StepStatusFailed
		result = execErr.Error()
		r.logger.Warn("step failed", "job_id", id, "step", step.Index, "duration_ms", duration.Milliseconds(), "error", execErr)
	} else {
		r.logger.Info("step completed", "job_id", id, "step", step.Index, "duration_ms", duration.Milliseconds())
	}

	job, err := r.store.CompleteStep(ctx, id, step.Index, result, status)
	if err != nil {
		return nil, err
	}
	r.memory.Record(ctx, KindResult, fmt.Sprintf("Step: %s\nResult:\n%s", step.Description, result))

	// A rejected credential or exhausted quota pauses the job instead of
	// failing the remaining steps.
	if errors.Is(execErr, llm.ErrFatalAPI) && job.Status == models.JobStatusRunning {
		r.logger.Error("provider error, pausing job", "job_id", id, "step", step.Index, "error", execErr)
		if err := r.store.PauseJob(ctx, id); err != nil {
			return nil, err
		}
		return r.store.GetJob(ctx, id)
	}
	return job, nil
}

// invoke calls the executor with the step timeout applied. Panics become
// errors.
func (r *Runner) invoke(ctx context.Context, description string) (out StepOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panicked: %v", p)
		}
	}()

	stepCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	if ae, ok := r.executor.(ArtifactExecutor); ok {
		out, err = ae.ExecuteStep(stepCtx, description)
	} else {
		out.Result, err = r.executor.Execute(stepCtx, description)
	}

	if err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("step timed out after %s: %w", r.stepTimeout, err)
	}
	return out, err
}

func formatPlan(plan []string) string {
	var b strings.Builder
	for i, step := range plan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return strings.TrimRight(b.String(), "\n")
}
