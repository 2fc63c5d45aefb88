package service

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/localgenius/internal/metrics"
)

// NopMemory records nothing and finds nothing.
type NopMemory struct{}

func (NopMemory) Record(context.Context, string, string) {}

func (NopMemory) Search(context.Context, string) []string { return nil }

// Embedder produces embedding vectors for memory entries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryIndex stores and searches embedded memory entries.
type MemoryIndex interface {
	CreateMemory(ctx context.Context, kind, content string, embedding []float32) error
	SearchMemories(ctx context.Context, query string, embedding []float32, limit int) ([]string, error)
}

// MemoryLog appends every record to a Markdown log and, when an embedder and
// index are configured, to a vector index used for search. Without an index,
// search falls back to keyword matching over the log.
type MemoryLog struct {
	path     string
	limit    int
	embedder Embedder
	index    MemoryIndex
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// MemoryLogDeps configures a MemoryLog. Embedder and Index are optional.
type MemoryLogDeps struct {
	Path     string
	Limit    int
	Embedder Embedder
	Index    MemoryIndex
	Metrics  *metrics.Collector
	Logger   *slog.Logger
}

// NewMemoryLog creates a memory backed by the Markdown file at deps.Path.
func NewMemoryLog(deps MemoryLogDeps) *MemoryLog {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := deps.Limit
	if limit <= 0 {
		limit = 3
	}
	return &MemoryLog{
		path:     deps.Path,
		limit:    limit,
		embedder: deps.Embedder,
		index:    deps.Index,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Record appends text under kind. Failures are logged.
func (m *MemoryLog) Record(ctx context.Context, kind, text string) {
	if err := m.appendEntry(kind, text); err != nil {
		m.logger.Warn("failed to write memory log", "kind", kind, "error", err)
	}

	if m.index == nil || m.embedder == nil {
		return
	}
	emb, err := m.embed(ctx, text)
	if err != nil {
		m.logger.Warn("failed to embed memory", "kind", kind, "error", err)
		return
	}
	if err := m.index.CreateMemory(ctx, kind, text, emb); err != nil {
		m.logger.Warn("failed to store memory", "kind", kind, "error", err)
	}
}

// Search returns up to the configured number of related entries. Failures
// yield an empty result.
func (m *MemoryLog) Search(ctx context.Context, query string) []string {
	if m.index != nil && m.embedder != nil {
		emb, err := m.embed(ctx, query)
		if err != nil {
			m.logger.Warn("failed to embed memory query", "error", err)
			return []string{}
		}
		results, err := m.index.SearchMemories(ctx, query, emb, m.limit)
		if err != nil {
			m.logger.Warn("memory search failed", "error", err)
			return []string{}
		}
		return results
	}

	results, err := m.searchLog(query)
	if err != nil {
		m.logger.Warn("memory log search failed", "error", err)
		return []string{}
	}
	return results
}

func (m *MemoryLog) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	emb, err := m.embedder.Embed(ctx, text)
	m.metrics.Observe(metrics.OpEmbedding, start, err)
	return emb, err
}

func (m *MemoryLog) appendEntry(kind, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create memory dir: %w", err)
		}
	}
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open memory log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEntry(kind, text, m.now())); err != nil {
		return fmt.Errorf("write memory log: %w", err)
	}
	return nil
}

func formatEntry(kind, text string, at time.Time) string {
	switch kind {
	case KindTask:
		return fmt.Sprintf("### Task: %s\nTime: %s\n\n", text, at.Format(time.RFC3339))
	case KindPlan:
		return fmt.Sprintf("**Plan:**\n%s\n\n", text)
	case KindResult:
		return fmt.Sprintf("%s\n\n", text)
	default:
		return fmt.Sprintf("**%s:**\n%s\n\n", kind, text)
	}
}

// searchLog ranks blank-line separated log entries by how many query terms
// they contain.
func (m *MemoryLog) searchLog(query string) ([]string, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return []string{}, nil
	}

	m.mu.Lock()
	entries, err := readEntries(m.path)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	type scored struct {
		text  string
		score int
		pos   int
	}
	var matches []scored
	for i, e := range entries {
		lower := strings.ToLower(e)
		score := 0
		for _, t := range terms {
			if strings.Contains(lower, t) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{text: e, score: score, pos: i})
		}
	}

	// Best score first; newer entries win ties.
	slices.SortFunc(matches, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		return b.pos - a.pos
	})

	out := make([]string, 0, min(len(matches), m.limit))
	for _, s := range matches {
		if len(out) == m.limit {
			break
		}
		out = append(out, s.text)
	}
	return out, nil
}

func readEntries(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open memory log: %w", err)
	}
	defer f.Close()

	var (
		entries []string
		cur     []string
	)
	flush := func() {
		if len(cur) > 0 {
			entries = append(entries, strings.Join(cur, "\n"))
			cur = nil
		}
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read memory log: %w", err)
	}
	return entries, nil
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) > 3 && !slices.Contains(terms, w) {
			terms = append(terms, w)
		}
	}
	return terms
}
