package server_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/metrics"
	"github.com/raphaelgruber/localgenius/internal/server"
	"github.com/raphaelgruber/localgenius/internal/service"
	"github.com/raphaelgruber/localgenius/internal/tools"
)

func newDeps(t *testing.T) *tools.Dependencies {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jobs.NewStore(context.Background(), jobs.NewMemoryBackend(), logger)
	require.NoError(t, err)
	return &tools.Dependencies{
		Runner:  service.NewRunner(service.RunnerDeps{Store: store, Logger: logger}),
		Metrics: metrics.NewCollector(),
		Logger:  logger,
	}
}

func TestServerWithInMemoryTransport(t *testing.T) {
	srv := server.New("0.1.0-test", newDeps(t))

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	assert.Equal(t, server.Name, initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)

	for i := 0; i < 3; i++ {
		toolsResult, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "request %d should succeed", i)
		assert.Len(t, toolsResult.Tools, 10)
	}

	require.NoError(t, session.Close())
	cancel()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Logf("server stopped with: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop within timeout")
	}
}
