// Package vectorindex maintains an optional external vector index alongside
// the Postgres store. When enabled, nearest-neighbor queries can be served
// from the index while Postgres stays the source of truth for event data.
package vectorindex

import (
	"context"

	"github.com/agenthands/pulse/internal/model"
)

// Match is one nearest-neighbor hit, resolved back to an event ID.
type Match struct {
	EventID string
	Score   float64
}

// Index is a remote vector index keyed by event ID.
type Index interface {
	// EnsureCollection creates the backing collection if missing.
	EnsureCollection(ctx context.Context) error
	// Upsert pushes event vectors. Events without embeddings are skipped.
	Upsert(ctx context.Context, events []model.Event) (int, error)
	// Delete removes an event's vector.
	Delete(ctx context.Context, eventID string) error
	// Search returns up to limit matches with score >= minScore,
	// best first.
	Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]Match, error)
	Close() error
}
