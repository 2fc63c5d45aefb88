package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

type memoryRow struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// CreateMemory stores one memory entry with its embedding.
func (c *Client) CreateMemory(ctx context.Context, kind, content string, embedding []float32) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE memory CONTENT {
			kind: $kind,
			content: $content,
			embedding: $emb
		}
	`, map[string]any{
		"kind":    kind,
		"content": content,
		"emb":     embedding,
	})
	if err != nil {
		return fmt.Errorf("create memory: %w", wrapQueryError(err))
	}
	return nil
}

// SearchMemories returns the content of the entries most related to query,
// fusing vector and BM25 rankings with RRF.
func (c *Client) SearchMemories(ctx context.Context, query string, embedding []float32, limit int) ([]string, error) {
	// Vector side fetches 2x limit for variety; HNSW ef=40; RRF k=60.
	sql := fmt.Sprintf(`
		SELECT * FROM search::rrf([
			(SELECT id, kind, content FROM memory WHERE embedding <|%d,40|> $emb),
			(SELECT id, kind, content FROM memory WHERE content @0@ $q)
		], $limit, 60)
	`, limit*2)

	results, err := surrealdb.Query[[]memoryRow](ctx, c.db, sql, map[string]any{
		"q":     query,
		"emb":   embedding,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", wrapQueryError(err))
	}

	out := []string{}
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			out = append(out, row.Content)
		}
	}
	return out, nil
}
