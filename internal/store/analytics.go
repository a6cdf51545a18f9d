package store

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/pulse/internal/model"
)

// RegionTotal aggregates attendance for one region inside a time window.
type RegionTotal struct {
	Region          string
	TotalAttendance int
	EventCount      int
}

// RegionTotals groups events starting inside [since, until) by non-empty
// region, summing attendance, busiest first.
func (s *Postgres) RegionTotals(ctx context.Context, since, until time.Time, limit int) ([]RegionTotal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
			region,
			COALESCE(SUM(attendance), 0),
			count(*)
		FROM events
		WHERE region <> ''
		  AND start_time >= $1 AND start_time < $2
		GROUP BY region
		ORDER BY COALESCE(SUM(attendance), 0) DESC
		LIMIT $3`, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("region totals: %w", err)
	}
	defer rows.Close()

	var totals []RegionTotal
	for rows.Next() {
		var t RegionTotal
		if err := rows.Scan(&t.Region, &t.TotalAttendance, &t.EventCount); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// TopEventsByRegion returns the best-attended events in a region inside the
// window, ties broken by most recent start.
func (s *Postgres) TopEventsByRegion(ctx context.Context, region string, since, until time.Time, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE region = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY attendance DESC NULLS LAST, start_time DESC
		 LIMIT $4`, region, since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("top events for region %s: %w", region, err)
	}
	return collectEvents(rows)
}

// TopEventsByLocation is the fallback for regions whose events were geocoded
// into the free-text location field instead.
func (s *Postgres) TopEventsByLocation(ctx context.Context, substr string, since, until time.Time, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE location ILIKE $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY attendance DESC NULLS LAST, start_time DESC
		 LIMIT $4`, "%"+substr+"%", since, until, limit)
	if err != nil {
		return nil, fmt.Errorf("top events for location %q: %w", substr, err)
	}
	return collectEvents(rows)
}

// CountRegionEvents counts events for one region starting inside [from, to),
// one histogram bucket at a time.
func (s *Postgres) CountRegionEvents(ctx context.Context, region string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM events
		 WHERE region = $1 AND start_time >= $2 AND start_time < $3`,
		region, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count region events: %w", err)
	}
	return n, nil
}
