package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubEmbedder struct {
	err error
}

func (e stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2}, nil
}

type stubIndex struct {
	stored    []string
	results   []string
	searchErr error
	gotLimit  int
}

func (i *stubIndex) CreateMemory(_ context.Context, kind, content string, _ []float32) error {
	i.stored = append(i.stored, kind+":"+content)
	return nil
}

func (i *stubIndex) SearchMemories(_ context.Context, _ string, _ []float32, limit int) ([]string, error) {
	i.gotLimit = limit
	return i.results, i.searchErr
}

func TestMemoryLogWritesMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem", "memory_log.md")
	m := NewMemoryLog(MemoryLogDeps{Path: path, Logger: discardLogger()})
	ctx := context.Background()

	m.Record(ctx, KindTask, "build a CLI tool")
	m.Record(ctx, KindPlan, formatPlan([]string{"write main file", "add tests"}))
	m.Record(ctx, KindResult, "Step: write main file\nResult:\nok")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "### Task: build a CLI tool")
	assert.Contains(t, content, "**Plan:**\n1. write main file\n2. add tests")
	assert.Contains(t, content, "Step: write main file")
}

func TestMemoryLogKeywordSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory_log.md")
	m := NewMemoryLog(MemoryLogDeps{Path: path, Limit: 2, Logger: discardLogger()})
	ctx := context.Background()

	assert.Empty(t, m.Search(ctx, "anything here"), "missing log yields nothing")

	m.Record(ctx, KindTask, "build a flask web server")
	m.Record(ctx, KindTask, "write a sorting algorithm")
	m.Record(ctx, KindTask, "build a command line parser")

	got := m.Search(ctx, "build a command line tool")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "command line parser")
	assert.Contains(t, got[1], "flask web server")

	assert.Empty(t, m.Search(ctx, "a an"), "short words are ignored")
}

func TestMemoryLogUsesIndex(t *testing.T) {
	ctx := context.Background()
	index := &stubIndex{results: []string{"related"}}
	m := NewMemoryLog(MemoryLogDeps{
		Path:     filepath.Join(t.TempDir(), "memory_log.md"),
		Embedder: stubEmbedder{},
		Index:    index,
		Logger:   discardLogger(),
	})

	m.Record(ctx, KindTask, "build")
	assert.Equal(t, []string{"task:build"}, index.stored)

	assert.Equal(t, []string{"related"}, m.Search(ctx, "build"))
	assert.Equal(t, 3, index.gotLimit)
}

func TestMemoryLogSearchFailuresAreEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory_log.md")

	t.Run("embedder error", func(t *testing.T) {
		index := &stubIndex{results: []string{"x"}}
		m := NewMemoryLog(MemoryLogDeps{Path: path, Embedder: stubEmbedder{err: errors.New("offline")}, Index: index, Logger: discardLogger()})
		m.Record(ctx, KindTask, "build")
		assert.Empty(t, index.stored)
		assert.Empty(t, m.Search(ctx, "build"))
	})

	t.Run("index error", func(t *testing.T) {
		index := &stubIndex{searchErr: errors.New("db down")}
		m := NewMemoryLog(MemoryLogDeps{Path: path, Embedder: stubEmbedder{}, Index: index, Logger: discardLogger()})
		got := m.Search(ctx, "build")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
