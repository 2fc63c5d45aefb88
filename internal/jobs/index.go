package jobs

import (
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/localgenius/internal/models"
)

// ListOptions filters and bounds ListJobs output.
type ListOptions struct {
	// Limit caps the number of entries when positive. Zero or negative
	// means no limit; there is no way to ask for an empty page.
	Limit int
	// Status keeps only entries with exactly this status when non-empty.
	Status models.JobStatus
}

// Index caches job summaries for listing without loading full records.
// It is authoritative for existence only.
type Index struct {
	mu      sync.RWMutex
	entries map[string]models.JobSummary
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]models.JobSummary)}
}

// Rebuild replaces all entries.
func (ix *Index) Rebuild(summaries []models.JobSummary) {
	entries := make(map[string]models.JobSummary, len(summaries))
	for _, s := range summaries {
		entries[s.ID] = s
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
}

// Put inserts or replaces the entry for s.ID.
func (ix *Index) Put(s models.JobSummary) {
	ix.mu.Lock()
	ix.entries[s.ID] = s
	ix.mu.Unlock()
}

// Remove deletes the entry for id if present.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	delete(ix.entries, id)
	ix.mu.Unlock()
}

// Get returns the entry for id.
func (ix *Index) Get(id string) (models.JobSummary, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.entries[id]
	return s, ok
}

// Len returns the number of indexed jobs.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// List returns matching entries, newest first.
func (ix *Index) List(opts ListOptions) []models.JobSummary {
	ix.mu.RLock()
	out := make([]models.JobSummary, 0, len(ix.entries))
	for _, s := range ix.entries {
		if opts.Status != "" && s.Status != opts.Status {
			continue
		}
		out = append(out, s)
	}
	ix.mu.RUnlock()

	// Newest first; id breaks ties so output is stable.
	slices.SortFunc(out, func(a, b models.JobSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Counts returns the number of indexed jobs per status.
func (ix *Index) Counts() map[models.JobStatus]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	counts := make(map[models.JobStatus]int)
	for _, s := range ix.entries {
		counts[s.Status]++
	}
	return counts
}
