// Package main provides the entry point for the localgenius MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/localgenius/internal/app"
	"github.com/raphaelgruber/localgenius/internal/config"
	"github.com/raphaelgruber/localgenius/internal/server"
	"github.com/raphaelgruber/localgenius/internal/tools"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Stdout carries the protocol, so logs go to stderr and the log file.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, true)
	defer func() { _ = cleanup() }()

	logger.Info("localgenius-mcp starting",
		"version", version,
		"storage", cfg.Storage,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"memory", cfg.MemoryBackend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	// Pick up jobs a previous process left mid-step.
	if _, err := a.Runner.ResumeInterrupted(ctx); err != nil {
		logger.Warn("failed to resume interrupted jobs", "error", err)
	}

	srv := server.New(version, &tools.Dependencies{
		Runner:  a.Runner,
		Metrics: a.Metrics,
		Logger:  logger,
	})
	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	runErr := srv.Run(ctx)

	// Steps in progress finish; the rest resume on the next start.
	logger.Info("stopping running jobs")
	if err := a.Close(context.Background()); err != nil {
		logger.Error("failed to close storage", "error", err)
	}

	if runErr != nil && ctx.Err() == nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
