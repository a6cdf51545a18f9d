package vectorindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// syncStore is the slice of the event store the syncer needs.
type syncStore interface {
	UnindexedEvents(ctx context.Context, limit int) ([]model.Event, error)
	MarkIndexed(ctx context.Context, ids []string) error
}

// Syncer pushes events that have embeddings but are not yet in the external
// index, in bounded batches.
type Syncer struct {
	store     syncStore
	index     Index
	batchSize int
	logger    *zap.Logger
}

func NewSyncer(store syncStore, index Index, batchSize int, logger *zap.Logger) *Syncer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Syncer{store: store, index: index, batchSize: batchSize, logger: logger}
}

// Run drains the unindexed backlog. Events are marked indexed only after a
// successful upsert, so a failed batch is retried on the next run.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		events, err := s.store.UnindexedEvents(ctx, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("load unindexed events: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		pushed, err := s.index.Upsert(ctx, events)
		if err != nil {
			return total, fmt.Errorf("push batch to index: %w", err)
		}

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		if err := s.store.MarkIndexed(ctx, ids); err != nil {
			return total, fmt.Errorf("mark indexed: %w", err)
		}

		total += pushed
		s.logger.Debug("synced batch to vector index",
			zap.Int("events", len(events)), zap.Int("points", pushed))

		if len(events) < s.batchSize {
			return total, nil
		}
	}
}
