// Package app wires configuration into a ready-to-use job runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/raphaelgruber/localgenius/internal/agent"
	"github.com/raphaelgruber/localgenius/internal/config"
	"github.com/raphaelgruber/localgenius/internal/db"
	"github.com/raphaelgruber/localgenius/internal/jobs"
	"github.com/raphaelgruber/localgenius/internal/jobs/filestore"
	"github.com/raphaelgruber/localgenius/internal/jobs/sqlitestore"
	"github.com/raphaelgruber/localgenius/internal/llm"
	"github.com/raphaelgruber/localgenius/internal/metrics"
	"github.com/raphaelgruber/localgenius/internal/service"
)

// App holds every long-lived dependency of a localgenius process.
type App struct {
	Config  config.Config
	Store   *jobs.Store
	Runner  *service.Runner
	Metrics *metrics.Collector
	Logger  *slog.Logger

	db *db.Client
}

// New opens job storage and memory as configured and builds the runner. LLM
// providers are created on first use so read-only commands work without them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()
	a := &App{Config: cfg, Metrics: mc, Logger: logger}

	if cfg.Storage == config.StorageSurrealDB || cfg.MemoryBackend == config.MemorySurrealDB {
		client, err := connectDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.db = client
	}

	backend, err := a.openBackend()
	if err != nil {
		_ = a.closeDB(ctx)
		return nil, err
	}

	store, err := jobs.NewStore(ctx, backend, logger)
	if err != nil {
		_ = backend.Close()
		_ = a.closeDB(ctx)
		return nil, fmt.Errorf("open job store: %w", err)
	}
	a.Store = store

	model := &lazyModel{cfg: cfg, metrics: mc}
	memory, err := a.newMemory()
	if err != nil {
		_ = store.Close()
		_ = a.closeDB(ctx)
		return nil, err
	}

	sandbox := &agent.Sandbox{Interpreter: cfg.Interpreter, Timeout: cfg.ExecTimeout, Dir: cfg.WorkspaceDir}
	a.Runner = service.NewRunner(service.RunnerDeps{
		Store:       store,
		Planner:     agent.NewPlanner(model, logger),
		Executor:    agent.NewCodeExecutor(model, sandbox, cfg.WorkspaceDir, logger),
		Memory:      memory,
		Metrics:     mc,
		Logger:      logger,
		StepTimeout: cfg.StepTimeout,
	})

	logger.Debug("app ready", "storage", cfg.Storage, "memory", cfg.MemoryBackend, "jobs", store.StatusCounts())
	return a, nil
}

func connectDB(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.Client, error) {
	client, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := client.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return client, nil
}

func (a *App) openBackend() (jobs.Backend, error) {
	switch a.Config.Storage {
	case config.StorageFile:
		return filestore.New(a.Config.JobsDir, a.Logger)
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(a.Config.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		return sqlitestore.Open(a.Config.SQLitePath)
	case config.StorageSurrealDB:
		return db.NewJobStore(a.db), nil
	case config.StorageMemory:
		return jobs.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", a.Config.Storage)
	}
}

func (a *App) newMemory() (service.Memory, error) {
	deps := service.MemoryLogDeps{
		Path:    a.Config.MemoryLogFile,
		Limit:   a.Config.MemorySearchLimit,
		Metrics: a.Metrics,
		Logger:  a.Logger,
	}
	switch a.Config.MemoryBackend {
	case config.MemoryNone:
		return service.NopMemory{}, nil
	case config.MemoryMarkdown:
		return service.NewMemoryLog(deps), nil
	case config.MemorySurrealDB:
		deps.Embedder = &lazyEmbedder{cfg: a.Config}
		deps.Index = a.db
		return service.NewMemoryLog(deps), nil
	default:
		return nil, fmt.Errorf("unsupported memory backend: %s", a.Config.MemoryBackend)
	}
}

// Close stops background jobs at their next step boundary, waits for the
// steps in progress, then releases storage and the database.
func (a *App) Close(ctx context.Context) error {
	a.Runner.Shutdown()
	a.Runner.Wait()
	return errors.Join(a.Store.Close(), a.closeDB(ctx))
}

// WipeData deletes all SurrealDB data. Use for testing only.
func (a *App) WipeData(ctx context.Context) error {
	if a.db == nil {
		return errors.New("wipe: no database configured")
	}
	return a.db.WipeData(ctx)
}

func (a *App) closeDB(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close(ctx)
}

// lazyModel creates the LLM client on the first Generate call. A failed
// construction is retried on the next call.
type lazyModel struct {
	cfg      config.Config
	metrics  *metrics.Collector
	newModel func(ctx context.Context, cfg config.Config, m *metrics.Collector) (*llm.Model, error)

	mu    sync.Mutex
	model *llm.Model
}

func (m *lazyModel) get(ctx context.Context) (*llm.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		return m.model, nil
	}
	newModel := m.newModel
	if newModel == nil {
		newModel = llm.NewModel
	}
	model, err := newModel(ctx, m.cfg, m.metrics)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	m.model = model
	return model, nil
}

func (m *lazyModel) Generate(ctx context.Context, prompt string) (string, error) {
	model, err := m.get(ctx)
	if err != nil {
		return "", err
	}
	return model.Generate(ctx, prompt)
}

// lazyEmbedder creates the embedding client on the first Embed call. A failed
// construction is retried on the next call.
type lazyEmbedder struct {
	cfg         config.Config
	newEmbedder func(ctx context.Context, cfg config.Config) (*llm.Embedder, error)

	mu       sync.Mutex
	embedder *llm.Embedder
}

func (e *lazyEmbedder) get(ctx context.Context) (*llm.Embedder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.embedder != nil {
		return e.embedder, nil
	}
	newEmbedder := e.newEmbedder
	if newEmbedder == nil {
		newEmbedder = llm.NewEmbedder
	}
	embedder, err := newEmbedder(ctx, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	e.embedder = embedder
	return embedder, nil
}

func (e *lazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, err := e.get(ctx)
	if err != nil {
		return nil, err
	}
	return embedder.Embed(ctx, text)
}
