package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/agenthands/pulse/internal/model"
)

// VectorMatch is one nearest-neighbor hit from the native vector search.
type VectorMatch struct {
	Event      model.Event
	Similarity float64
}

// SearchSimilar runs a nearest-neighbor query using pgvector's cosine
// distance operator, returning matches with similarity >= minSimilarity in
// descending similarity order. The query vector is bound as a parameter.
func (s *Postgres) SearchSimilar(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) ([]VectorMatch, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, store expects %d", len(vector), s.dimension)
	}

	query := `SELECT ` + eventColumns + `,
			1 - (embeddings <=> $1) AS similarity
		FROM events
		WHERE embeddings IS NOT NULL
		  AND 1 - (embeddings <=> $1) >= $2`
	args := []any{pgvector.NewVector(vector), minSimilarity}

	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(` AND id <> $%d`, len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY embeddings <=> $1 ASC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		m, err := scanVectorMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func scanVectorMatch(rows rowScanner) (*VectorMatch, error) {
	var similarity float64
	e, err := scanEventWithExtra(rows, &similarity)
	if err != nil {
		return nil, err
	}
	return &VectorMatch{Event: *e, Similarity: similarity}, nil
}

// CandidatesWithEmbeddings loads a bounded candidate set for the in-process
// brute-force fallback. The cap keeps the fallback cheap when the table is
// large.
func (s *Postgres) CandidatesWithEmbeddings(ctx context.Context, excludeID string, limit int) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE embeddings IS NOT NULL`
	args := []any{}

	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(` AND id <> $%d`, len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return collectEvents(rows)
}

// EventIDsWithEmbeddings lists every event ID that has a vector, for the
// batch similarity job.
func (s *Postgres) EventIDsWithEmbeddings(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM events WHERE embeddings IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("ids with embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
