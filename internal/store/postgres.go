// Package store implements the durable Postgres store for events, their
// embedding vectors (pgvector), and precomputed similarity rows. All
// queries are parameterized; vector expressions bind the query vector as a
// parameter rather than interpolating it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Postgres struct {
	db        *sql.DB
	dimension int
	logger    *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(url string, dimension int, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{db: db, dimension: dimension, logger: logger}, nil
}

func (s *Postgres) Close() error { return s.db.Close() }

// Migrate creates the schema. Idempotent; safe to run at every startup.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'other',
			longitude DOUBLE PRECISION,
			latitude DOUBLE PRECISION,
			city TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ,
			end_time TIMESTAMPTZ,
			attendance INTEGER,
			spend_amount INTEGER,
			embeddings vector(%d),
			related_event_ids TEXT NOT NULL DEFAULT '',
			indexed BOOLEAN NOT NULL DEFAULT FALSE,
			upstream_updated TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_events_category_start ON events (category, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_region ON events (region)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start ON events (start_time DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_embeddings ON events
			USING ivfflat (embeddings vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS event_similarities (
			id BIGSERIAL PRIMARY KEY,
			event_id_1 TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			event_id_2 TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			similarity_score DOUBLE PRECISION NOT NULL,
			relationship_type TEXT NOT NULL DEFAULT 'similar',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_similarities_e1 ON event_similarities (event_id_1)`,
		`CREATE INDEX IF NOT EXISTS idx_event_similarities_e2 ON event_similarities (event_id_2)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// eventColumnList is the canonical column order matched by scanEvent.
var eventColumnList = []string{
	"id", "title", "description", "category", "longitude", "latitude",
	"city", "region", "location", "start_time", "end_time", "attendance",
	"spend_amount", "embeddings", "related_event_ids", "indexed",
	"upstream_updated", "created_at", "updated_at",
}

var eventColumns = strings.Join(eventColumnList, ", ")

// prefixedEventColumns qualifies the column list with a table alias for
// joined queries.
func prefixedEventColumns(alias string) string {
	cols := make([]string, len(eventColumnList))
	for i, c := range eventColumnList {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	return scanEventWithExtra(row)
}

// scanEventWithExtra scans the eventColumns list plus any trailing
// expression columns (e.g. a similarity score) into extra.
func scanEventWithExtra(row rowScanner, extra ...any) (*model.Event, error) {
	var (
		e          model.Event
		lon, lat   sql.NullFloat64
		start, end sql.NullTime
		att, spend sql.NullInt64
		vec        nullVector
		upstream   sql.NullTime
	)

	dest := []any{
		&e.ID, &e.Title, &e.Description, &e.Category, &lon, &lat,
		&e.City, &e.Region, &e.Location, &start, &end, &att, &spend,
		&vec, &e.RelatedEventIDs, &e.Indexed, &upstream, &e.CreatedAt, &e.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if lon.Valid {
		e.Longitude = &lon.Float64
	}
	if lat.Valid {
		e.Latitude = &lat.Float64
	}
	if start.Valid {
		t := start.Time.UTC()
		e.Start = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		e.End = &t
	}
	if att.Valid {
		n := int(att.Int64)
		e.Attendance = &n
	}
	if spend.Valid {
		n := int(spend.Int64)
		e.SpendAmount = &n
	}
	if vec.Valid {
		e.Embeddings = vec.Vector.Slice()
	}
	if upstream.Valid {
		t := upstream.Time.UTC()
		e.UpstreamUpdated = &t
	}
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
