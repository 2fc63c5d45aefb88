package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ping",
		Description: "Test tool - responds with pong or echoes input",
	}, NewPingHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_task",
		Description: "Create a job for a task, plan it into steps and execute them. Runs in the background unless wait is set",
	}, NewRunTaskHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List jobs newest first, optionally filtered by status",
	}, NewListJobsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_job",
		Description: "Retrieve a job with its plan, step results and artifacts",
	}, NewGetJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pause_job",
		Description: "Pause a running job before its next step",
	}, NewPauseJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "abort_job",
		Description: "Abort a job permanently. No further steps run",
	}, NewAbortJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resume_job",
		Description: "Resume a paused or interrupted job from its first unfinished step",
	}, NewResumeJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retry_step",
		Description: "Re-execute a single step of a job, replacing its previous result",
	}, NewRetryStepHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_job",
		Description: "Delete a job record",
	}, NewDeleteJobHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Show job counts by status and runtime timings",
	}, NewStatsHandler(deps))
}
