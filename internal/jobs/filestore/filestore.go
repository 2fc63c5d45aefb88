// Package filestore persists jobs as one JSON document per job in a directory.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/localgenius/internal/models"
)

const ext = ".json"

// Backend stores each job in <dir>/<id>.json.
type Backend struct {
	dir    string
	logger *slog.Logger
}

// New creates the directory if needed and returns a backend rooted there.
func New(dir string, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Backend{dir: dir, logger: logger}, nil
}

// Dir returns the directory holding job files.
func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) path(id string) string {
	return filepath.Join(b.dir, id+ext)
}

// Save writes the record to a temp file and renames it over the old one so
// readers never observe a partial document.
func (b *Backend) Save(_ context.Context, job *models.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write job: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync job: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close job: %w", err)
	}
	if err := os.Rename(tmpName, b.path(job.ID)); err != nil {
		cleanup()
		return fmt.Errorf("rename job: %w", err)
	}
	return nil
}

// Load returns nil when the file does not exist.
func (b *Backend) Load(_ context.Context, id string) (*models.Job, error) {
	data, err := os.ReadFile(b.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (b *Backend) Delete(_ context.Context, id string) error {
	err := os.Remove(b.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

// Summaries decodes every job file. Unreadable files are logged and skipped.
func (b *Backend) Summaries(ctx context.Context) ([]models.JobSummary, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	out := make([]models.JobSummary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		job, err := b.Load(ctx, id)
		if err != nil {
			b.logger.Warn("skipping unreadable job file", "file", e.Name(), "error", err)
			continue
		}
		if job == nil || job.ID != id {
			b.logger.Warn("skipping job file with mismatched id", "file", e.Name())
			continue
		}
		out = append(out, job.Summary())
	}
	return out, nil
}

func (b *Backend) Close() error {
	return nil
}
