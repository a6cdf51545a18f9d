package cache

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

	"github.com/agenthands/pulse/internal/model"
)

func newTestCache(t *testing.T) (*EventCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEventCache(client, 24*time.Hour, zap.NewNop()), mr
}

func makeEvents(n int, prefix string) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{
			ID:       fmt.Sprintf("%s-%d", prefix, i),
			Title:    fmt.Sprintf("Event %d", i),
			Category: "concerts",
		}
	}
	return events
}

func TestDailyKeyFormat(t *testing.T) {
	ts := time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "etl_events:2026-08-30", DailyKey(ts))

	// Non-UTC input normalizes to the UTC calendar date.
	loc := time.FixedZone("UTC+9", 9*3600)
	late := time.Date(2026, 8, 31, 5, 0, 0, 0, loc)
	assert.Equal(t, "etl_events:2026-08-30", DailyKey(late))
}

func TestRecentKeysCoverTwoDays(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)
	keys := RecentKeys(now)
	assert.Equal(t, []string{"etl_events:2026-08-30", "etl_events:2026-08-29"}, keys)
}

func TestMergeAndGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := DailyKey(time.Now())

	require.True(t, c.Merge(ctx, key, makeEvents(3, "ev")))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Len(t, got, 3)
	assert.Equal(t, "ev-0", got[0].ID)
}

func TestMergeIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"
	events := makeEvents(5, "dup")

	require.True(t, c.Merge(ctx, key, events))
	require.True(t, c.Merge(ctx, key, events))

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Len(t, got, 5)
}

func TestMergeAppendsOnlyNewIDs(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"

	require.True(t, c.Merge(ctx, key, makeEvents(3, "a")))

	mixed := append(makeEvents(3, "a"), makeEvents(2, "b")...)
	require.True(t, c.Merge(ctx, key, mixed))

	got, _ := c.Get(ctx, key)
	assert.Len(t, got, 5)
}

func TestMergeStripsEmbeddings(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"

	ev := model.Event{ID: "x", Embeddings: []float32{1, 2, 3}}
	require.True(t, c.Merge(ctx, key, []model.Event{ev}))

	got, _ := c.Get(ctx, key)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Embeddings)
}

func TestMergeRefreshesTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"

	require.True(t, c.Merge(ctx, key, makeEvents(1, "a")))
	mr.FastForward(12 * time.Hour)

	require.True(t, c.Merge(ctx, key, makeEvents(1, "b")))

	// TTL resets to the full 24h on every write, not just on creation.
	info := c.Info(ctx, key)
	require.True(t, info.Exists)
	assert.InDelta(t, (24 * time.Hour).Seconds(), float64(info.TTLSeconds), 5)
}

func TestExpiredKeyIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"

	require.True(t, c.Merge(ctx, key, makeEvents(2, "a")))
	mr.FastForward(25 * time.Hour)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestCorruptPayloadIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := "etl_events:2026-08-30"

	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	// And a merge over the corrupt entry starts fresh instead of failing.
	require.True(t, c.Merge(ctx, key, makeEvents(2, "a")))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestInfoClearKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, c.Merge(ctx, "etl_events:2026-08-29", makeEvents(2, "a")))
	require.True(t, c.Merge(ctx, "etl_events:2026-08-30", makeEvents(3, "b")))

	info := c.Info(ctx, "etl_events:2026-08-30")
	require.True(t, info.Exists)
	assert.Equal(t, 3, info.TotalEvents)
	assert.Positive(t, info.SizeBytes)
	require.NotNil(t, info.LastUpdated)

	assert.Equal(t, Info{Exists: false}, c.Info(ctx, "etl_events:1999-01-01"))

	keys := c.Keys(ctx, "")
	assert.Equal(t, []string{"etl_events:2026-08-29", "etl_events:2026-08-30"}, keys)

	assert.True(t, c.Clear(ctx, "etl_events:2026-08-29"))
	assert.False(t, c.Clear(ctx, "etl_events:2026-08-29"))
}

func TestCacheFailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := NewEventCache(client, 24*time.Hour, zap.NewNop())
	mr.Close()

	ctx := context.Background()
	_, ok := c.Get(ctx, "etl_events:2026-08-30")
	assert.False(t, ok)
	assert.False(t, c.Merge(ctx, "etl_events:2026-08-30", makeEvents(1, "a")))
	assert.Nil(t, c.Keys(ctx, ""))
}
