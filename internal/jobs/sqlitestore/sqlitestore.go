// Package sqlitestore persists jobs in a SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/raphaelgruber/localgenius/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	task       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	record     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS jobs_created_at ON jobs(created_at);
`

// Backend stores the full job record as JSON next to summary columns, so the
// index can be rebuilt without decoding records.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases shared and avoids writer contention.
	db.SetMaxOpenConns(1)

	b, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Backend, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Save(ctx context.Context, job *models.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO jobs (id, task, status, created_at, updated_at, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			record = excluded.record
	`,
		job.ID,
		job.Task,
		string(job.Status),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
		string(record),
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, id string) (*models.Job, error) {
	var record string
	err := b.db.QueryRowContext(ctx, `SELECT record FROM jobs WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(record), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

func (b *Backend) Summaries(ctx context.Context) ([]models.JobSummary, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, task, status, created_at, updated_at FROM jobs`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []models.JobSummary
	for rows.Next() {
		var (
			s                models.JobSummary
			status           string
			created, updated string
		)
		if err := rows.Scan(&s.ID, &s.Task, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = models.JobStatus(status)
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("job %s created_at: %w", s.ID, err)
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("job %s updated_at: %w", s.ID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
