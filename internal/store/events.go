package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// ListFilter narrows and pages a ListEvents scan.
type ListFilter struct {
	Skip     int
	Limit    int
	Category string // exact match
	Location string // case-insensitive substring
}

// GetEvent fetches one event by ID, returning ErrNotFound when absent.
func (s *Postgres) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents scans events ordered by start time descending (nulls last),
// applying the filter's category/location narrowing and skip/limit paging.
func (s *Postgres) ListEvents(ctx context.Context, f ListFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	args := []any{}

	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if f.Location != "" {
		args = append(args, "%"+f.Location+"%")
		query += fmt.Sprintf(` AND location ILIKE $%d`, len(args))
	}

	query += ` ORDER BY start_time DESC NULLS LAST`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Skip > 0 {
		args = append(args, f.Skip)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

const upsertEventSQL = `INSERT INTO events (
		id, title, description, category, longitude, latitude,
		city, region, location, start_time, end_time, attendance,
		spend_amount, embeddings, related_event_ids, upstream_updated,
		created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		longitude = EXCLUDED.longitude,
		latitude = EXCLUDED.latitude,
		city = EXCLUDED.city,
		region = EXCLUDED.region,
		location = EXCLUDED.location,
		start_time = EXCLUDED.start_time,
		end_time = EXCLUDED.end_time,
		attendance = EXCLUDED.attendance,
		spend_amount = EXCLUDED.spend_amount,
		embeddings = EXCLUDED.embeddings,
		related_event_ids = EXCLUDED.related_event_ids,
		upstream_updated = EXCLUDED.upstream_updated,
		indexed = FALSE,
		updated_at = now()
	RETURNING (xmax = 0)`

// UpsertEvents writes a batch inside one transaction, committing or rolling
// back the whole batch. Per-row failures roll the batch back; callers batch
// small enough that this is the right granularity. Returns created and
// updated counts.
func (s *Postgres) UpsertEvents(ctx context.Context, events []model.Event) (created, updated int, err error) {
	if len(events) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertEventSQL)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var inserted bool
		err = stmt.QueryRowContext(ctx,
			e.ID, e.Title, e.Description, e.Category, e.Longitude, e.Latitude,
			e.City, e.Region, e.Location, e.Start, e.End, e.Attendance,
			e.SpendAmount, vectorParam(e.Embeddings), e.RelatedEventIDs,
			e.UpstreamUpdated,
		).Scan(&inserted)
		if err != nil {
			return 0, 0, fmt.Errorf("upsert event %s: %w", e.ID, err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert tx: %w", err)
	}

	s.logger.Debug("upserted events batch",
		zap.Int("created", created), zap.Int("updated", updated))
	return created, updated, nil
}

// CreateEvent inserts a single event, failing if the ID exists.
func (s *Postgres) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (
			id, title, description, category, longitude, latitude,
			city, region, location, start_time, end_time, attendance,
			spend_amount, embeddings, related_event_ids, upstream_updated
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.Title, e.Description, e.Category, e.Longitude, e.Latitude,
		e.City, e.Region, e.Location, e.Start, e.End, e.Attendance,
		e.SpendAmount, vectorParam(e.Embeddings), e.RelatedEventIDs, e.UpstreamUpdated)
	if err != nil {
		return fmt.Errorf("create event %s: %w", e.ID, err)
	}
	return nil
}

// UpdateEvent overwrites mutable fields of an existing event.
func (s *Postgres) UpdateEvent(ctx context.Context, e *model.Event) error {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET
			title = $2, description = $3, category = $4, longitude = $5,
			latitude = $6, city = $7, region = $8, location = $9,
			start_time = $10, end_time = $11, attendance = $12,
			spend_amount = $13, embeddings = $14, related_event_ids = $15,
			indexed = FALSE, updated_at = now()
		WHERE id = $1`,
		e.ID, e.Title, e.Description, e.Category, e.Longitude, e.Latitude,
		e.City, e.Region, e.Location, e.Start, e.End, e.Attendance,
		e.SpendAmount, vectorParam(e.Embeddings), e.RelatedEventIDs)
	if err != nil {
		return fmt.Errorf("update event %s: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes an event, returning ErrNotFound when absent.
func (s *Postgres) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DistinctCategories lists non-empty categories in use, sorted.
func (s *Postgres) DistinctCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM events WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("distinct categories: %w", err)
	}
	defer rows.Close()

	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CategoryCount pairs a category with how many events carry it.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats summarizes the events table for the stats endpoint.
type Stats struct {
	TotalEvents         int             `json:"total_events"`
	EventsWithEmbedding int             `json:"events_with_embeddings"`
	UniqueCategories    int             `json:"unique_categories"`
	TopCategories       []CategoryCount `json:"top_categories"`
}

// EventStats computes summary statistics over the events table.
func (s *Postgres) EventStats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
			count(*),
			count(*) FILTER (WHERE embeddings IS NOT NULL),
			count(DISTINCT category)
		FROM events`).Scan(&st.TotalEvents, &st.EventsWithEmbedding, &st.UniqueCategories)
	if err != nil {
		return nil, fmt.Errorf("event stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, count(*)
		FROM events GROUP BY category ORDER BY count(*) DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, err
		}
		st.TopCategories = append(st.TopCategories, cc)
	}
	return &st, rows.Err()
}

// UnindexedEvents returns events with embeddings that have not yet been
// pushed to the external vector index.
func (s *Postgres) UnindexedEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE embeddings IS NOT NULL AND NOT indexed
		 ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("unindexed events: %w", err)
	}
	return collectEvents(rows)
}

// MarkIndexed flags events as pushed to the external index.
func (s *Postgres) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET indexed = TRUE WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return nil
}

// SetRelatedEventIDs overwrites the curated related-events field.
func (s *Postgres) SetRelatedEventIDs(ctx context.Context, id, related string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET related_event_ids = $2, updated_at = now() WHERE id = $1`,
		id, related)
	if err != nil {
		return fmt.Errorf("set related events for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventsByIDs fetches the given IDs in one query; missing IDs are skipped.
func (s *Postgres) EventsByIDs(ctx context.Context, ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("events by ids: %w", err)
	}
	return collectEvents(rows)
}

// EventsForDay returns up to limit events starting inside the UTC calendar
// day, ranked by the popularity heuristic: longest duration first, then
// longest title, then embedded-before-unembedded.
func (s *Postgres) EventsForDay(ctx context.Context, dayStart time.Time, limit int) ([]model.Event, error) {
	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE start_time >= $1 AND start_time < $2
		 ORDER BY
			COALESCE(EXTRACT(EPOCH FROM (end_time - start_time)), 0) DESC,
			length(title) DESC,
			(embeddings IS NOT NULL) DESC
		 LIMIT $3`, dayStart, dayEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("events for day: %w", err)
	}
	return collectEvents(rows)
}
