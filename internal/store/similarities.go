package store

import (
	"context"
	"fmt"

	"github.com/agenthands/pulse/internal/model"
)

// StoredSimilarity joins a precomputed similarity row with the counterpart
// event, from the perspective of the queried event.
type StoredSimilarity struct {
	Event            model.Event
	Score            float64
	RelationshipType string
}

// InsertSimilarities bulk-inserts precomputed pairwise rows inside one
// transaction. Rows are insert-only; duplicates from recomputation are
// tolerated and deduped at read time.
func (s *Postgres) InsertSimilarities(ctx context.Context, sims []model.EventSimilarity) (int, error) {
	if len(sims) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin similarities tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO event_similarities
		(event_id_1, event_id_2, similarity_score, relationship_type)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return 0, fmt.Errorf("prepare similarity insert: %w", err)
	}
	defer stmt.Close()

	for _, sim := range sims {
		if _, err := stmt.ExecContext(ctx,
			sim.EventID1, sim.EventID2, sim.SimilarityScore, sim.RelationshipType); err != nil {
			return 0, fmt.Errorf("insert similarity %s/%s: %w", sim.EventID1, sim.EventID2, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit similarities tx: %w", err)
	}
	return len(sims), nil
}

// StoredSimilarities returns precomputed rows involving eventID on either
// side, joined with the counterpart event, highest score first.
func (s *Postgres) StoredSimilarities(ctx context.Context, eventID string, limit int) ([]StoredSimilarity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+prefixedEventColumns("e")+`,
			es.similarity_score, es.relationship_type
		FROM event_similarities es
		JOIN events e ON (
			(es.event_id_1 = $1 AND e.id = es.event_id_2) OR
			(es.event_id_2 = $1 AND e.id = es.event_id_1)
		)
		ORDER BY es.similarity_score DESC
		LIMIT $2`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("stored similarities for %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []StoredSimilarity
	for rows.Next() {
		var (
			score float64
			rel   string
		)
		e, err := scanEventWithExtra(rows, &score, &rel)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredSimilarity{Event: *e, Score: score, RelationshipType: rel})
	}
	return out, rows.Err()
}
