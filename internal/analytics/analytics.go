// Package analytics computes the aggregate endpoints: busiest cities over a
// trailing window and the most popular events of a day. Results are
// expensive GROUP-BY/rank queries read far more often than the data
// changes, so each is cached for a fixed hour.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/store"
)

const (
	// topEventsPerCity bounds the per-city event list.
	topEventsPerCity = 5
	// histogramBuckets x bucketSpan cover the trailing 24 hours.
	histogramBuckets = 8
	bucketSpan       = 3 * time.Hour
	// popularEventsLimit bounds the daily popularity ranking.
	popularEventsLimit = 10
)

// Store is the aggregate query surface consumed by this package.
type Store interface {
	RegionTotals(ctx context.Context, since, until time.Time, limit int) ([]store.RegionTotal, error)
	TopEventsByRegion(ctx context.Context, region string, since, until time.Time, limit int) ([]model.Event, error)
	TopEventsByLocation(ctx context.Context, substr string, since, until time.Time, limit int) ([]model.Event, error)
	CountRegionEvents(ctx context.Context, region string, from, to time.Time) (int, error)
	EventsForDay(ctx context.Context, dayStart time.Time, limit int) ([]model.Event, error)
}

// PopularEventsResult is the payload of the popular-events-per-day endpoint.
// Attendance figures are synthesized from the ranking heuristic, flagged
// per event and in the top-level note.
type PopularEventsResult struct {
	Date   string           `json:"date"`
	Events []model.TopEvent `json:"events"`
	Note   string           `json:"note"`
}

const simulatedNote = "attendance figures are simulated from a popularity heuristic, not sourced from the feed"

type Service struct {
	store  Store
	cache  *cache.AggregateCache
	logger *zap.Logger

	// now is swapped in tests to pin the aggregation window.
	now func() time.Time
}

func NewService(st Store, c *cache.AggregateCache, logger *zap.Logger) *Service {
	return &Service{store: st, cache: c, logger: logger, now: time.Now}
}

// BusiestCities ranks regions by summed attendance over the trailing
// windowDays, attaching each region's top events and a 24h activity
// histogram. Cached results are returned verbatim.
func (s *Service) BusiestCities(ctx context.Context, windowDays, limit int) ([]model.BusiestCity, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if limit <= 0 {
		limit = 10
	}

	key := cache.BusiestCitiesKey(windowDays, limit)
	var cached []model.BusiestCity
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	totals, err := s.store.RegionTotals(ctx, since, now, limit)
	if err != nil {
		return nil, fmt.Errorf("busiest cities aggregation: %w", err)
	}

	cities := make([]model.BusiestCity, 0, len(totals))
	for _, t := range totals {
		city := model.BusiestCity{
			City:            t.Region,
			TotalAttendance: int64(t.TotalAttendance),
			TopEvents:       s.topEvents(ctx, t.Region, since, now),
			EventCounts:     s.histogram(ctx, t.Region, now),
		}
		cities = append(cities, city)
	}

	s.cache.Set(ctx, key, cities)
	return cities, nil
}

// topEvents tries an exact region match first and falls back to a location
// substring match, covering events geocoded inconsistently upstream.
func (s *Service) topEvents(ctx context.Context, region string, since, until time.Time) []model.TopEvent {
	events, err := s.store.TopEventsByRegion(ctx, region, since, until, topEventsPerCity)
	if err != nil {
		s.logger.Warn("top events by region failed",
			zap.String("region", region), zap.Error(err))
		return []model.TopEvent{}
	}
	if len(events) == 0 {
		events, err = s.store.TopEventsByLocation(ctx, region, since, until, topEventsPerCity)
		if err != nil {
			s.logger.Warn("top events by location fallback failed",
				zap.String("region", region), zap.Error(err))
			return []model.TopEvent{}
		}
	}

	top := make([]model.TopEvent, 0, len(events))
	for _, e := range events {
		top = append(top, model.TopEvent{Event: e})
	}
	return top
}

// histogram counts the region's events in 8 three-hour buckets covering the
// trailing 24 hours, oldest bucket first. A failed bucket query yields a
// zero count for that bucket only.
func (s *Service) histogram(ctx context.Context, region string, now time.Time) []model.EventCountBucket {
	buckets := make([]model.EventCountBucket, 0, histogramBuckets)
	for i := histogramBuckets; i >= 1; i-- {
		from := now.Add(-time.Duration(i) * bucketSpan)
		to := from.Add(bucketSpan)

		count, err := s.store.CountRegionEvents(ctx, region, from, to)
		if err != nil {
			s.logger.Warn("histogram bucket query failed",
				zap.String("region", region), zap.Time("bucket_start", from), zap.Error(err))
			count = 0
		}
		buckets = append(buckets, model.EventCountBucket{
			IntervalStart: from,
			IntervalEnd:   to,
			EventCount:    count,
		})
	}
	return buckets
}

// PopularEventsForDay ranks up to 10 events starting inside the UTC
// calendar day by the popularity heuristic and attaches simulated
// attendance. Cached results are returned verbatim.
func (s *Service) PopularEventsForDay(ctx context.Context, date time.Time) (*PopularEventsResult, error) {
	day := date.UTC().Truncate(24 * time.Hour)

	key := cache.PopularEventsKey(day)
	var cached PopularEventsResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	events, err := s.store.EventsForDay(ctx, day, popularEventsLimit)
	if err != nil {
		return nil, fmt.Errorf("popular events for %s: %w", day.Format("2006-01-02"), err)
	}

	result := &PopularEventsResult{
		Date:   day.Format("2006-01-02"),
		Events: make([]model.TopEvent, 0, len(events)),
		Note:   simulatedNote,
	}
	for i, e := range events {
		rank := i + 1
		attendance := SimulatedAttendance(rank, e.Title, e.Duration())
		e.Attendance = &attendance
		result.Events = append(result.Events, model.TopEvent{
			Event:          e,
			PopularityRank: rank,
			Simulated:      true,
		})
	}

	s.cache.Set(ctx, key, result)
	return result, nil
}

// SimulatedAttendance synthesizes an attendance figure from the 1-based
// popularity rank, the title length, and the event duration. It stands in
// for real attendance, which the feed rarely provides.
func SimulatedAttendance(rank int, title string, duration time.Duration) int {
	titleBoost := 5 * len(title)
	if titleBoost > 200 {
		titleBoost = 200
	}
	durationBoost := int(50 * duration.Hours())
	if durationBoost > 300 {
		durationBoost = 300
	}
	if durationBoost < 0 {
		durationBoost = 0
	}
	return 1000 - 100*rank + titleBoost + durationBoost
}
