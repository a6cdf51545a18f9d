package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/store"
)

type fakeAggStore struct {
	totals        []store.RegionTotal
	totalsCalls   int
	regionEvents  map[string][]model.Event
	locationHits  map[string][]model.Event
	bucketCounts  map[string]int
	failBucketAt  time.Time
	dayEvents     []model.Event
	dayEventCalls int
}

func (f *fakeAggStore) RegionTotals(context.Context, time.Time, time.Time, int) ([]store.RegionTotal, error) {
	f.totalsCalls++
	return f.totals, nil
}

func (f *fakeAggStore) TopEventsByRegion(_ context.Context, region string, _, _ time.Time, _ int) ([]model.Event, error) {
	return f.regionEvents[region], nil
}

func (f *fakeAggStore) TopEventsByLocation(_ context.Context, substr string, _, _ time.Time, _ int) ([]model.Event, error) {
	return f.locationHits[substr], nil
}

func (f *fakeAggStore) CountRegionEvents(_ context.Context, region string, from, _ time.Time) (int, error) {
	if !f.failBucketAt.IsZero() && from.Equal(f.failBucketAt) {
		return 0, errors.New("bucket query timeout")
	}
	return f.bucketCounts[region+from.Format(time.RFC3339)], nil
}

func (f *fakeAggStore) EventsForDay(context.Context, time.Time, int) ([]model.Event, error) {
	f.dayEventCalls++
	return f.dayEvents, nil
}

func newTestService(t *testing.T, st *fakeAggStore) (*Service, time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewService(st, cache.NewAggregateCache(client, zap.NewNop()), zap.NewNop())
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, now
}

func TestBusiestCitiesHistogramShape(t *testing.T) {
	st := &fakeAggStore{
		totals: []store.RegionTotal{{Region: "Berlin", TotalAttendance: 5000, EventCount: 12}},
		regionEvents: map[string][]model.Event{
			"Berlin": {{ID: "e1", Region: "Berlin"}},
		},
		bucketCounts: map[string]int{},
	}
	svc, now := newTestService(t, st)

	// Two buckets with known counts.
	st.bucketCounts["Berlin"+now.Add(-24*time.Hour).Format(time.RFC3339)] = 3
	st.bucketCounts["Berlin"+now.Add(-3*time.Hour).Format(time.RFC3339)] = 2

	cities, err := svc.BusiestCities(context.Background(), 7, 5)
	require.NoError(t, err)
	require.Len(t, cities, 1)

	buckets := cities[0].EventCounts
	require.Len(t, buckets, 8)

	// Oldest to newest, contiguous 3h slices covering 24h.
	assert.Equal(t, now.Add(-24*time.Hour), buckets[0].IntervalStart)
	assert.Equal(t, now, buckets[7].IntervalEnd)
	for i, b := range buckets {
		assert.Equal(t, 3*time.Hour, b.IntervalEnd.Sub(b.IntervalStart))
		assert.GreaterOrEqual(t, b.EventCount, 0)
		if i > 0 {
			assert.Equal(t, buckets[i-1].IntervalEnd, b.IntervalStart)
		}
	}
	assert.Equal(t, 3, buckets[0].EventCount)
	assert.Equal(t, 2, buckets[7].EventCount)
}

func TestBusiestCitiesBucketFailureYieldsZeroNotError(t *testing.T) {
	st := &fakeAggStore{
		totals:       []store.RegionTotal{{Region: "Berlin", TotalAttendance: 100}},
		regionEvents: map[string][]model.Event{"Berlin": {{ID: "e1"}}},
		bucketCounts: map[string]int{},
	}
	svc, now := newTestService(t, st)
	st.failBucketAt = now.Add(-6 * time.Hour)

	cities, err := svc.BusiestCities(context.Background(), 7, 5)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	require.Len(t, cities[0].EventCounts, 8)
	assert.Zero(t, cities[0].EventCounts[6].EventCount)
}

func TestBusiestCitiesLocationFallback(t *testing.T) {
	st := &fakeAggStore{
		totals: []store.RegionTotal{{Region: "Hamburg", TotalAttendance: 900}},
		locationHits: map[string][]model.Event{
			"Hamburg": {{ID: "loc-1", Location: "Hamburg, Germany"}},
		},
		bucketCounts: map[string]int{},
	}
	svc, _ := newTestService(t, st)

	cities, err := svc.BusiestCities(context.Background(), 7, 5)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	require.Len(t, cities[0].TopEvents, 1)
	assert.Equal(t, "loc-1", cities[0].TopEvents[0].ID)
}

func TestBusiestCitiesCacheHitSkipsStore(t *testing.T) {
	st := &fakeAggStore{
		totals:       []store.RegionTotal{{Region: "Berlin", TotalAttendance: 100}},
		regionEvents: map[string][]model.Event{"Berlin": {{ID: "e1"}}},
		bucketCounts: map[string]int{},
	}
	svc, _ := newTestService(t, st)

	first, err := svc.BusiestCities(context.Background(), 7, 5)
	require.NoError(t, err)

	second, err := svc.BusiestCities(context.Background(), 7, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, st.totalsCalls, "second call must hit the cache")
	assert.Equal(t, first[0].City, second[0].City)
	assert.Equal(t, first[0].TotalAttendance, second[0].TotalAttendance)
}

func TestPopularEventsSimulatedAttendance(t *testing.T) {
	start := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	st := &fakeAggStore{
		dayEvents: []model.Event{
			{ID: "top", Title: "Summer Jazz Night", Start: &start, End: &end},
			{ID: "second", Title: "Expo", Start: &start},
		},
	}
	svc, _ := newTestService(t, st)

	res, err := svc.PopularEventsForDay(context.Background(), start)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.NotEmpty(t, res.Note)

	first := res.Events[0]
	assert.Equal(t, 1, first.PopularityRank)
	assert.True(t, first.Simulated)
	// 1000 - 100*1 + 5*len("Summer Jazz Night")=85 + 50*2h=100
	require.NotNil(t, first.Attendance)
	assert.Equal(t, 1085, *first.Attendance)

	second := res.Events[1]
	assert.Equal(t, 2, second.PopularityRank)
	// 1000 - 200 + 5*4 + 0
	require.NotNil(t, second.Attendance)
	assert.Equal(t, 820, *second.Attendance)
}

func TestPopularEventsCachedVerbatim(t *testing.T) {
	start := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	st := &fakeAggStore{dayEvents: []model.Event{{ID: "e1", Title: "Fair", Start: &start}}}
	svc, _ := newTestService(t, st)

	first, err := svc.PopularEventsForDay(context.Background(), start)
	require.NoError(t, err)

	second, err := svc.PopularEventsForDay(context.Background(), start)
	require.NoError(t, err)

	assert.Equal(t, 1, st.dayEventCalls)
	assert.Equal(t, first.Date, second.Date)
	require.Len(t, second.Events, 1)
	assert.Equal(t, *first.Events[0].Attendance, *second.Events[0].Attendance)
}

func TestSimulatedAttendanceCaps(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	// Title boost capped at 200, duration boost capped at 300.
	assert.Equal(t, 1000-100+200+300, SimulatedAttendance(1, string(long), 48*time.Hour))
	// Negative duration contributes nothing.
	assert.Equal(t, 1000-100, SimulatedAttendance(1, "", -time.Hour))
}
