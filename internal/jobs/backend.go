package jobs

import (
	"context"
	"sync"

	"github.com/raphaelgruber/localgenius/internal/models"
)

// Backend persists whole job records. Implementations must be safe for
// concurrent use; the Store serializes writes per job id.
type Backend interface {
	// Save writes the full record, replacing any previous version.
	Save(ctx context.Context, job *models.Job) error
	// Load returns the record for id, or nil if it does not exist.
	Load(ctx context.Context, id string) (*models.Job, error)
	// Delete removes the record for id. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
	// Summaries returns the index entry of every stored job.
	Summaries(ctx context.Context) ([]models.JobSummary, error)
	// Close releases backend resources.
	Close() error
}

// MemoryBackend keeps job records in process memory. It returns copies so
// callers cannot mutate stored state.
type MemoryBackend struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{jobs: make(map[string]*models.Job)}
}

func (b *MemoryBackend) Save(_ context.Context, job *models.Job) error {
	b.mu.Lock()
	b.jobs[job.ID] = job.Clone()
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Load(_ context.Context, id string) (*models.Job, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jobs[id].Clone(), nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.jobs, id)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Summaries(_ context.Context) ([]models.JobSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.JobSummary, 0, len(b.jobs))
	for _, j := range b.jobs {
		out = append(out, j.Summary())
	}
	return out, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
