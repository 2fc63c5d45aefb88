// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/localgenius/internal/metrics"
	"github.com/raphaelgruber/localgenius/internal/service"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Runner  *service.Runner
	Metrics *metrics.Collector
	Logger  *slog.Logger
}
