package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/localgenius/internal/models"
)

// jobRow is the stored shape of a job. The full job lives in Record as JSON.
type jobRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Task      string                 `json:"task"`
	Status    string                 `json:"status"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
	Record    string                 `json:"record"`
}

// JobStore persists job records in the job table.
type JobStore struct {
	client *Client
}

// NewJobStore returns a job backend over client. The client is owned by the
// caller and is not closed by JobStore.Close.
func NewJobStore(client *Client) *JobStore {
	return &JobStore{client: client}
}

// Save upserts the full job record.
func (s *JobStore) Save(ctx context.Context, job *models.Job) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = surrealdb.Query[any](ctx, s.client.db, `
		UPSERT type::record("job", $id) CONTENT {
			task: $task,
			status: $status,
			created_at: $created_at,
			updated_at: $updated_at,
			record: $record
		}
	`, map[string]any{
		"id":         job.ID,
		"task":       job.Task,
		"status":     string(job.Status),
		"created_at": formatTime(job.CreatedAt),
		"updated_at": formatTime(job.UpdatedAt),
		"record":     string(record),
	})
	if err != nil {
		return fmt.Errorf("save job: %w", wrapQueryError(err))
	}
	return nil
}

// Load returns the job with id, or nil if it does not exist.
func (s *JobStore) Load(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, s.client.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("load job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	var job models.Job
	if err := json.Unmarshal([]byte((*results)[0].Result[0].Record), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Delete removes the job with id. Missing jobs are ignored.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, s.client.db, `
		DELETE type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete job: %w", wrapQueryError(err))
	}
	return nil
}

// Summaries returns every stored job without decoding the full records.
func (s *JobStore) Summaries(ctx context.Context) ([]models.JobSummary, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, s.client.db, `
		SELECT id, task, status, created_at, updated_at FROM job
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.JobSummary{}, nil
	}

	rows := (*results)[0].Result
	out := make([]models.JobSummary, 0, len(rows))
	for _, row := range rows {
		sum, err := row.summary()
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Close is a no-op; the client is closed by its owner.
func (s *JobStore) Close() error {
	return nil
}

func (r jobRow) summary() (models.JobSummary, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return models.JobSummary{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return models.JobSummary{}, fmt.Errorf("job %s created_at: %w", id, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return models.JobSummary{}, fmt.Errorf("job %s updated_at: %w", id, err)
	}
	return models.JobSummary{
		ID:        id,
		Task:      r.Task,
		Status:    models.JobStatus(r.Status),
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// recordIDString extracts the string ID from a SurrealDB RecordID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
