package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/localgenius/internal/metrics"
	"github.com/raphaelgruber/localgenius/internal/models"
)

// StatsInput defines the (empty) input schema for the stats tool.
type StatsInput struct{}

// StatsResult is the response from the stats tool.
type StatsResult struct {
	Jobs    map[models.JobStatus]int `json:"jobs"`
	Total   int                      `json:"total"`
	Runtime metrics.Snapshot         `json:"runtime"`
}

// NewStatsHandler creates the stats tool handler.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, any, error) {
		counts := deps.Runner.Store().StatusCounts()
		total := 0
		for _, n := range counts {
			total += n
		}
		return JSONResult(StatsResult{
			Jobs:    counts,
			Total:   total,
			Runtime: deps.Metrics.Snapshot(),
		}), nil, nil
	}
}
