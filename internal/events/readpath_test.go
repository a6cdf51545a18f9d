package events

import (
	"context"
	"fmt"
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

type fakeListStore struct {
	events []model.Event
	calls  int
}

func (f *fakeListStore) ListEvents(_ context.Context, filter store.ListFilter) ([]model.Event, error) {
	f.calls++
	out := f.events
	if filter.Skip > 0 && filter.Skip < len(out) {
		out = out[filter.Skip:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func newTestReadPath(t *testing.T, st *fakeListStore) (*ReadPath, *cache.EventCache, time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewEventCache(client, 24*time.Hour, zap.NewNop())
	rp := NewReadPath(st, c, zap.NewNop())
	now := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	rp.now = func() time.Time { return now }
	return rp, c, now
}

func makeEvents(n int, day time.Time) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		start := day.Add(time.Duration(i) * time.Minute)
		events[i] = model.Event{
			ID:       fmt.Sprintf("evt-%03d", i),
			Title:    fmt.Sprintf("Event %d", i),
			Category: "concerts",
			Location: "Berlin, Germany",
			Start:    &start,
		}
	}
	return events
}

func TestListBelowThresholdFallsBackToStoreAndBackfills(t *testing.T) {
	st := &fakeListStore{events: makeEvents(200, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC))}
	rp, c, now := newTestReadPath(t, st)

	// Seed the cache below the threshold.
	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), makeEvents(50, now)))

	got, err := rp.List(context.Background(), store.ListFilter{Limit: 100})
	require.NoError(t, err)

	assert.Len(t, got, 100)
	assert.Equal(t, 1, st.calls, "store should have served the request")

	cached, ok := c.Get(context.Background(), cache.DailyKey(now))
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(cached), 100, "fetched page should be backfilled")
}

func TestListCacheAuthoritativeAboveThreshold(t *testing.T) {
	st := &fakeListStore{}
	rp, c, now := newTestReadPath(t, st)

	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), makeEvents(150, day)))

	got, err := rp.List(context.Background(), store.ListFilter{Limit: 50})
	require.NoError(t, err)

	assert.Len(t, got, 50)
	assert.Zero(t, st.calls, "store must not be touched")

	// Start descending.
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Start.After(*got[i-1].Start))
	}
}

func TestListUnionsTwoDayWindow(t *testing.T) {
	st := &fakeListStore{}
	rp, c, now := newTestReadPath(t, st)

	today := makeEvents(60, now)
	yesterday := makeEvents(60, now.AddDate(0, 0, -1))
	for i := range yesterday {
		yesterday[i].ID = "prev-" + yesterday[i].ID
	}

	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), today))
	require.True(t, c.Merge(context.Background(), cache.DailyKey(now.AddDate(0, 0, -1)), yesterday))

	got, err := rp.List(context.Background(), store.ListFilter{Limit: 200})
	require.NoError(t, err)

	assert.Len(t, got, 120, "both days together clear the threshold")
	assert.Zero(t, st.calls)
}

func TestListFiltersInMemory(t *testing.T) {
	st := &fakeListStore{}
	rp, c, now := newTestReadPath(t, st)

	events := makeEvents(120, now)
	events[3].Category = "sports"
	events[3].Location = "Madrid, Spain"
	events[7].Category = "sports"
	events[7].Location = "Hamburg, Germany"
	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), events))

	got, err := rp.List(context.Background(), store.ListFilter{Category: "sports"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = rp.List(context.Background(), store.ListFilter{Category: "sports", Location: "madrid"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "evt-003", got[0].ID)
}

func TestListPagingPastEndIsEmptyNotError(t *testing.T) {
	st := &fakeListStore{}
	rp, c, now := newTestReadPath(t, st)

	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), makeEvents(120, now)))

	got, err := rp.List(context.Background(), store.ListFilter{Skip: 500, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListEmptyEverywhereIsEmptyNotError(t *testing.T) {
	st := &fakeListStore{}
	rp, _, _ := newTestReadPath(t, st)

	got, err := rp.List(context.Background(), store.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// Ingesting 150 events for today and listing 50 must serve from the cache
// in start-descending order.
func TestEndToEndCacheServesIngestedDay(t *testing.T) {
	st := &fakeListStore{}
	rp, c, now := newTestReadPath(t, st)

	require.True(t, c.Merge(context.Background(), cache.DailyKey(now), makeEvents(150, now)))

	got, err := rp.List(context.Background(), store.ListFilter{Limit: 50})
	require.NoError(t, err)

	require.Len(t, got, 50)
	assert.Zero(t, st.calls)
	assert.Equal(t, "evt-149", got[0].ID, "latest start first")
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Start.After(*got[i-1].Start))
	}
}
