package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

// RunTaskInput defines the input schema for the run_task tool.
type RunTaskInput struct {
	Task string `json:"task" jsonschema:"Natural-language description of the task"`
	Wait bool   `json:"wait,omitempty" jsonschema:"Block until every step has run"`
}

// JobIDInput identifies a single job.
type JobIDInput struct {
	ID string `json:"id" jsonschema:"Job ID"`
}

// ListJobsInput defines the input schema for the list_jobs tool.
type ListJobsInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum jobs to return, newest first (default 20)"`
	Status string `json:"status,omitempty" jsonschema:"Only return jobs with this status"`
}

// ResumeJobInput defines the input schema for the resume_job tool.
type ResumeJobInput struct {
	ID   string `json:"id" jsonschema:"Job ID"`
	Wait bool   `json:"wait,omitempty" jsonschema:"Block until the remaining steps have run"`
}

// RetryStepInput defines the input schema for the retry_step tool.
type RetryStepInput struct {
	ID   string `json:"id" jsonschema:"Job ID"`
	Step int    `json:"step" jsonschema:"Zero-based step index"`
	Wait bool   `json:"wait,omitempty" jsonschema:"Block until the step has run"`
}

// TaskStarted is returned when run_task does not wait.
type TaskStarted struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// ResumeResult is the response from the resume_job tool.
type ResumeResult struct {
	JobID       string `json:"job_id"`
	FromStep    int    `json:"from_step"`
	NothingToDo bool   `json:"nothing_to_do"`
	Status      string `json:"status,omitempty"`
}

// RetryResult is the response from the retry_step tool.
type RetryResult struct {
	JobID      string `json:"job_id"`
	Step       int    `json:"step"`
	StepStatus string `json:"step_status,omitempty"`
	JobStatus  string `json:"job_status,omitempty"`
}

const defaultListLimit = 20

// NewRunTaskHandler creates the run_task tool handler.
func NewRunTaskHandler(deps *Dependencies) mcp.ToolHandlerFor[RunTaskInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RunTaskInput) (*mcp.CallToolResult, any, error) {
		task := strings.TrimSpace(input.Task)
		if task == "" {
			return ErrorResult("Task is required", "Describe what the job should accomplish"), nil, nil
		}

		if !input.Wait {
			id, err := deps.Runner.StartTask(ctx, task)
			if err != nil {
				return JobErrorResult("Failed to start task", err), nil, nil
			}
			deps.Logger.Info("task started", "job_id", id)
			return JSONResult(TaskStarted{JobID: id, Message: "Planning in background. Use get_job to follow progress"}), nil, nil
		}

		id, err := deps.Runner.ExecuteTask(ctx, task)
		if err != nil {
			var planErr *service.PlanningError
			if errors.As(err, &planErr) {
				return ErrorResult("Planning failed for job "+id+": "+planErr.Err.Error(), "Rephrase the task or check the LLM provider"), nil, nil
			}
			return JobErrorResult("Task failed", err), nil, nil
		}
		return jobResult(ctx, deps, id)
	}
}

// NewListJobsHandler creates the list_jobs tool handler.
func NewListJobsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListJobsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListJobsInput) (*mcp.CallToolResult, any, error) {
		opts := jobs.ListOptions{Limit: input.Limit, Status: models.JobStatus(input.Status)}
		if opts.Limit <= 0 {
			opts.Limit = defaultListLimit
		}

		summaries, err := deps.Runner.Store().ListJobs(opts)
		if err != nil {
			return JobErrorResult("Failed to list jobs", err), nil, nil
		}
		return JSONResult(map[string]any{"jobs": summaries, "count": len(summaries)}), nil, nil
	}
}

// NewGetJobHandler creates the get_job tool handler.
func NewGetJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		if input.ID == "" {
			return ErrorResult("ID is required", "Use list_jobs to find job IDs"), nil, nil
		}
		return jobResult(ctx, deps, input.ID)
	}
}

// NewPauseJobHandler creates the pause_job tool handler.
func NewPauseJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		if err := deps.Runner.PauseJob(ctx, input.ID); err != nil {
			return JobErrorResult("Failed to pause job", err), nil, nil
		}
		return TextResult("Job " + input.ID + " paused. It stops before its next step"), nil, nil
	}
}

// NewAbortJobHandler creates the abort_job tool handler.
func NewAbortJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		if err := deps.Runner.AbortJob(ctx, input.ID); err != nil {
			return JobErrorResult("Failed to abort job", err), nil, nil
		}
		return TextResult("Job " + input.ID + " aborted"), nil, nil
	}
}

// NewResumeJobHandler creates the resume_job tool handler.
func NewResumeJobHandler(deps *Dependencies) mcp.ToolHandlerFor[ResumeJobInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ResumeJobInput) (*mcp.CallToolResult, any, error) {
		var (
			res service.ResumeResult
			err error
		)
		if input.Wait {
			res, err = deps.Runner.ResumeJob(ctx, input.ID)
		} else {
			res, err = deps.Runner.StartResume(ctx, input.ID)
		}
		if err != nil {
			return JobErrorResult("Failed to resume job", err), nil, nil
		}

		out := ResumeResult{JobID: input.ID, FromStep: res.FromStep, NothingToDo: res.NothingToDo}
		if input.Wait || res.NothingToDo {
			if job, err := deps.Runner.Store().GetJob(ctx, input.ID); err == nil {
				out.Status = string(job.Status)
			}
		}
		return JSONResult(out), nil, nil
	}
}

// NewRetryStepHandler creates the retry_step tool handler.
func NewRetryStepHandler(deps *Dependencies) mcp.ToolHandlerFor[RetryStepInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetryStepInput) (*mcp.CallToolResult, any, error) {
		out := RetryResult{JobID: input.ID, Step: input.Step}
		if input.Wait {
			status, err := deps.Runner.RetryStep(ctx, input.ID, input.Step)
			if err != nil {
				return JobErrorResult("Failed to retry step", err), nil, nil
			}
			out.StepStatus = string(status)
			if job, err := deps.Runner.Store().GetJob(ctx, input.ID); err == nil {
				out.JobStatus = string(job.Status)
			}
			return JSONResult(out), nil, nil
		}

		if err := deps.Runner.StartRetry(ctx, input.ID, input.Step); err != nil {
			return JobErrorResult("Failed to retry step", err), nil, nil
		}
		out.StepStatus = string(models.StepStatusRunning)
		return JSONResult(out), nil, nil
	}
}

// NewDeleteJobHandler creates the delete_job tool handler.
func NewDeleteJobHandler(deps *Dependencies) mcp.ToolHandlerFor[JobIDInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobIDInput) (*mcp.CallToolResult, any, error) {
		if err := deps.Runner.DeleteJob(ctx, input.ID); err != nil {
			return JobErrorResult("Failed to delete job", err), nil, nil
		}
		deps.Logger.Info("job deleted", "job_id", input.ID)
		return TextResult("Job " + input.ID + " deleted"), nil, nil
	}
}

func jobResult(ctx context.Context, deps *Dependencies, id string) (*mcp.CallToolResult, any, error) {
	job, err := deps.Runner.Store().GetJob(ctx, id)
	if err != nil {
		return JobErrorResult("Failed to get job", err), nil, nil
	}
	return JSONResult(job), nil, nil
}
