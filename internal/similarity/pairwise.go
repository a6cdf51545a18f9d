package similarity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/embedding"
	"github.com/agenthands/pulse/internal/model"
)

// Pairwise score floors: pairs below storeThreshold are not persisted at
// all; pairs at or above relatedThreshold are recorded as "related" rather
// than merely "similar".
const (
	storeThreshold   = 0.5
	relatedThreshold = 0.8
)

// insertChunk bounds one bulk insert of similarity rows.
const insertChunk = 500

// PairwiseStore is the store surface the batch job needs.
type PairwiseStore interface {
	EventIDsWithEmbeddings(ctx context.Context) ([]string, error)
	EventsByIDs(ctx context.Context, ids []string) ([]model.Event, error)
	InsertSimilarities(ctx context.Context, sims []model.EventSimilarity) (int, error)
}

// PairwiseResult summarizes one batch run.
type PairwiseResult struct {
	EventsCompared int `json:"events_compared"`
	PairsComputed  int `json:"pairs_computed"`
	PairsStored    int `json:"pairs_stored"`
}

// ComputePairwise scores every pair of events that have embeddings and
// persists the pairs above the store threshold. Candidates with a vector
// length different from the first candidate's are skipped with a warning.
func ComputePairwise(ctx context.Context, st PairwiseStore, logger *zap.Logger) (*PairwiseResult, error) {
	ids, err := st.EventIDsWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embedded events: %w", err)
	}

	events := make([]model.Event, 0, len(ids))
	for start := 0; start < len(ids); start += 200 {
		end := start + 200
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := st.EventsByIDs(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("load embedded events: %w", err)
		}
		events = append(events, batch...)
	}

	result := &PairwiseResult{EventsCompared: len(events)}
	var pending []model.EventSimilarity

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := st.InsertSimilarities(ctx, pending)
		if err != nil {
			return fmt.Errorf("store similarity rows: %w", err)
		}
		result.PairsStored += n
		pending = pending[:0]
		return nil
	}

	for i := 0; i < len(events); i++ {
		for j := i + 1; j < len(events); j++ {
			a, b := &events[i], &events[j]
			if len(a.Embeddings) != len(b.Embeddings) {
				logger.Warn("skipping pair with mismatched vector lengths",
					zap.String("event_id_1", a.ID), zap.String("event_id_2", b.ID))
				continue
			}
			result.PairsComputed++

			score := embedding.CosineSimilarity(a.Embeddings, b.Embeddings)
			if score < storeThreshold {
				continue
			}
			relation := model.RelationSimilar
			if score >= relatedThreshold {
				relation = model.RelationRelated
			}
			pending = append(pending, model.EventSimilarity{
				EventID1:         a.ID,
				EventID2:         b.ID,
				SimilarityScore:  score,
				RelationshipType: relation,
			})
			if len(pending) >= insertChunk {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	logger.Info("pairwise similarity computation finished",
		zap.Int("events", result.EventsCompared),
		zap.Int("pairs", result.PairsComputed),
		zap.Int("stored", result.PairsStored))
	return result, nil
}
