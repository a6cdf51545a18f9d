// Package similarity ranks events by likeness to a text query or a seed
// event. The primary path is a nearest-neighbor query against the store's
// vector index; when that errors, a bounded in-process brute-force scan
// takes over. The full by-ID lookup additionally merges curated relations
// and precomputed similarity rows into the ranked answer.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/embedding"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/store"
	"github.com/agenthands/pulse/internal/vectorindex"
)

// ErrEmbeddingUnavailable marks a similarity request that could not obtain a
// query vector. Callers should surface it as a retryable upstream failure,
// distinct from "no results found".
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// PublicResultCap is the fixed result count for the user-facing similarity
// endpoints. Callers may ask for more; they get at most this many. The
// admin debug endpoint is the only surface that honors larger limits.
const PublicResultCap = 5

// AdminResultCap bounds the admin debug endpoint.
const AdminResultCap = 50

// DefaultMinSimilarity is the score floor applied when a request does not
// specify one.
const DefaultMinSimilarity = 0.7

// Store is the slice of the event store the engine reads.
type Store interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	SearchSimilar(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) ([]store.VectorMatch, error)
	CandidatesWithEmbeddings(ctx context.Context, excludeID string, limit int) ([]model.Event, error)
	EventsByIDs(ctx context.Context, ids []string) ([]model.Event, error)
	StoredSimilarities(ctx context.Context, eventID string, limit int) ([]store.StoredSimilarity, error)
}

// Embedder produces query vectors. Implemented by embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the engine.
type Config struct {
	// CandidateCap bounds the brute-force fallback's candidate set.
	CandidateCap int
	// Index, when non-nil, serves the primary nearest-neighbor query
	// instead of the store's native vector search.
	Index vectorindex.Index
}

type Engine struct {
	store        Store
	embedder     Embedder
	index        vectorindex.Index
	candidateCap int
	logger       *zap.Logger
}

func NewEngine(st Store, embedder Embedder, cfg Config, logger *zap.Logger) *Engine {
	candidateCap := cfg.CandidateCap
	if candidateCap <= 0 {
		candidateCap = 500
	}
	return &Engine{
		store:        st,
		embedder:     embedder,
		index:        cfg.Index,
		candidateCap: candidateCap,
		logger:       logger,
	}
}

// ByText embeds the query text and returns the nearest events. An embedding
// failure aborts the request: there is no vector to search with.
func (e *Engine) ByText(ctx context.Context, query string, limit int, minSimilarity float64) (*model.SimilaritySearchResult, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, err)
	}

	matches := e.search(ctx, vector, limit, minSimilarity, "")
	return &model.SimilaritySearchResult{
		SimilarEvents: matches,
		TotalFound:    len(matches),
	}, nil
}

// ByID returns events similar to a stored event. A missing event is a
// NotFound error; an event without an embedding yields an empty result.
// When includeRelated is set, curated related_event_ids and precomputed
// similarity rows are merged in after the vector matches.
func (e *Engine) ByID(ctx context.Context, eventID string, limit int, minSimilarity float64, includeRelated bool) (*model.SimilaritySearchResult, error) {
	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	result := &model.SimilaritySearchResult{QueryEvent: event}
	if len(event.Embeddings) == 0 {
		e.logger.Warn("similarity seed has no embedding", zap.String("event_id", eventID))
		result.SimilarEvents = []model.SimilarEvent{}
		return result, nil
	}

	matches := e.search(ctx, event.Embeddings, limit, minSimilarity, eventID)
	if includeRelated {
		matches = e.mergeSecondary(ctx, event, matches, limit)
	}

	result.SimilarEvents = matches
	result.TotalFound = len(matches)
	return result, nil
}

// search runs the primary nearest-neighbor query, degrading to the
// brute-force scan only when the primary path errors. Zero rows from a
// healthy primary path is a final answer.
func (e *Engine) search(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) []model.SimilarEvent {
	matches, err := e.vectorSearch(ctx, vector, limit, minSimilarity, excludeID)
	if err == nil {
		return matches
	}

	e.logger.Warn("vector search failed, falling back to brute force", zap.Error(err))
	return e.bruteForce(ctx, vector, limit, minSimilarity, excludeID)
}

func (e *Engine) vectorSearch(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) ([]model.SimilarEvent, error) {
	if e.index != nil {
		return e.indexSearch(ctx, vector, limit, minSimilarity, excludeID)
	}

	hits, err := e.store.SearchSimilar(ctx, vector, limit, minSimilarity, excludeID)
	if err != nil {
		return nil, err
	}

	matches := make([]model.SimilarEvent, 0, len(hits))
	for _, h := range hits {
		ev := h.Event
		matches = append(matches, model.SimilarEvent{
			Event:            &ev,
			SimilarityScore:  h.Similarity,
			RelationshipType: model.RelationSimilar,
		})
	}
	return matches, nil
}

// indexSearch queries the external index and resolves hits back to store
// rows. Hits for events since deleted from the store are dropped.
func (e *Engine) indexSearch(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) ([]model.SimilarEvent, error) {
	// Fetch one extra so the excluded seed does not eat a result slot.
	hits, err := e.index.Search(ctx, vector, limit+1, minSimilarity)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		if h.EventID == excludeID {
			continue
		}
		ids = append(ids, h.EventID)
		scores[h.EventID] = h.Score
	}

	events, err := e.store.EventsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Event, len(events))
	for i := range events {
		byID[events[i].ID] = &events[i]
	}

	matches := make([]model.SimilarEvent, 0, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			continue
		}
		matches = append(matches, model.SimilarEvent{
			Event:            ev,
			SimilarityScore:  scores[id],
			RelationshipType: model.RelationSimilar,
		})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// bruteForce scores a bounded candidate set in memory. Any failure here
// yields an empty list; there is nothing further to fall back to.
func (e *Engine) bruteForce(ctx context.Context, vector []float32, limit int, minSimilarity float64, excludeID string) []model.SimilarEvent {
	candidates, err := e.store.CandidatesWithEmbeddings(ctx, excludeID, e.candidateCap)
	if err != nil {
		e.logger.Warn("brute-force candidate load failed", zap.Error(err))
		return []model.SimilarEvent{}
	}

	matches := make([]model.SimilarEvent, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if len(c.Embeddings) != len(vector) {
			e.logger.Warn("skipping candidate with mismatched vector length",
				zap.String("event_id", c.ID),
				zap.Int("candidate_dim", len(c.Embeddings)),
				zap.Int("query_dim", len(vector)))
			continue
		}
		score := embedding.CosineSimilarity(vector, c.Embeddings)
		if score < minSimilarity {
			continue
		}
		matches = append(matches, model.SimilarEvent{
			Event:            c,
			SimilarityScore:  score,
			RelationshipType: model.RelationSimilar,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// mergeSecondary folds curated related events and precomputed similarity
// rows into the vector matches. Dedup key is the candidate event ID,
// first source wins; the final list is re-sorted by score and truncated.
func (e *Engine) mergeSecondary(ctx context.Context, seed *model.Event, matches []model.SimilarEvent, limit int) []model.SimilarEvent {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m.Event.ID] = struct{}{}
	}

	if related := seed.RelatedIDs(); len(related) > 0 {
		missing := make([]string, 0, len(related))
		for _, id := range related {
			if _, ok := seen[id]; !ok {
				missing = append(missing, id)
			}
		}
		events, err := e.store.EventsByIDs(ctx, missing)
		if err != nil {
			e.logger.Warn("loading related events failed",
				zap.String("event_id", seed.ID), zap.Error(err))
		}
		for i := range events {
			ev := &events[i]
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}
			matches = append(matches, model.SimilarEvent{
				Event:            ev,
				SimilarityScore:  1.0,
				RelationshipType: model.RelationRelated,
			})
		}
	}

	stored, err := e.store.StoredSimilarities(ctx, seed.ID, limit)
	if err != nil {
		e.logger.Warn("loading stored similarities failed",
			zap.String("event_id", seed.ID), zap.Error(err))
	}
	for i := range stored {
		ev := stored[i].Event
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		matches = append(matches, model.SimilarEvent{
			Event:            &ev,
			SimilarityScore:  stored[i].Score,
			RelationshipType: stored[i].RelationshipType,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
