package tools

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/models"
	"github.com/raphaelgruber/localgenius/internal/service"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so LLM can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// JSONResult renders v as indented JSON.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to encode result", err.Error())
	}
	return TextResult(string(data))
}

// JobErrorResult maps job and runner errors to a message with a hint the
// caller can act on.
func JobErrorResult(msg string, err error) *mcp.CallToolResult {
	var hint string
	switch {
	case errors.Is(err, jobs.ErrStepNotFound):
		hint = "Use get_job to see the job's steps"
	case errors.Is(err, jobs.ErrNotFound):
		hint = "Use list_jobs to find valid job IDs"
	case errors.Is(err, service.ErrJobBusy):
		hint = "Wait for the active operation to finish or pause the job"
	case errors.Is(err, jobs.ErrInvalidTransition):
		hint = "Check the job status with get_job"
	case errors.Is(err, jobs.ErrInvalidStatus):
		hint = "Valid statuses: " + validStatuses()
	case jobs.IsStorageError(err):
		hint = "Job storage may be unavailable"
	}
	return ErrorResult(msg+": "+err.Error(), hint)
}

func validStatuses() string {
	names := make([]string, len(models.JobStatuses))
	for i, s := range models.JobStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
