package cache

import (
	"context"
	"sort"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// EventKeyPrefix namespaces the daily event cache keys: etl_events:YYYY-MM-DD.
const EventKeyPrefix = "etl_events:"

// envelope is the stored shape of one daily cache entry.
type envelope struct {
	Events      []model.Event `json:"events"`
	LastUpdated time.Time     `json:"last_updated"`
	TotalEvents int           `json:"total_events"`
}

// Info describes one cache key for the admin surface.
type Info struct {
	Exists      bool       `json:"exists"`
	TTLSeconds  int64      `json:"ttl_seconds,omitempty"`
	TotalEvents int        `json:"total_events,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	SizeBytes   int        `json:"size_bytes,omitempty"`
}

// EventCache is the day-keyed, TTL-bound hot cache of parsed events.
//
// Merge uses read-modify-write with no CAS: two concurrent merges to the
// same key can race and the later write wins on TTL/metadata, possibly
// dropping the earlier writer's additions under heavy contention. That
// window is accepted; the durable store remains the source of truth.
type EventCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewEventCache(client goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *EventCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventCache{client: client, ttl: ttl, logger: logger}
}

// DailyKey derives the cache key for the UTC calendar date of t.
func DailyKey(t time.Time) string {
	return EventKeyPrefix + t.UTC().Format("2006-01-02")
}

// RecentKeys returns today's and yesterday's keys. Querying both gives a
// 2-day sliding window that covers events written just after midnight.
func RecentKeys(now time.Time) []string {
	return []string{
		DailyKey(now),
		DailyKey(now.AddDate(0, 0, -1)),
	}
}

// Get returns the cached events for a key, or (nil, false) when the key is
// absent, expired, or unreadable. Errors degrade to a miss.
func (c *EventCache) Get(ctx context.Context, key string) ([]model.Event, bool) {
	var env envelope
	ok, err := getJSON(ctx, c.client, key, &env)
	if err != nil {
		c.logger.Warn("event cache read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return env.Events, true
}

// Merge appends the events whose IDs are not already cached under key,
// refreshing the TTL and metadata on every successful write. The merge is
// idempotent: replaying the same batch leaves the entry unchanged apart
// from the metadata. Returns false when the write could not be performed.
func (c *EventCache) Merge(ctx context.Context, key string, newEvents []model.Event) bool {
	existing, _ := c.Get(ctx, key)

	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.ID] = struct{}{}
	}

	added := 0
	for _, e := range newEvents {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		// Vectors are served from the store, not the cache; dropping them
		// keeps the entry payload small.
		e.Embeddings = nil
		existing = append(existing, e)
		added++
	}

	env := envelope{
		Events:      existing,
		LastUpdated: time.Now().UTC(),
		TotalEvents: len(existing),
	}

	if err := setJSON(ctx, c.client, key, env, c.ttl); err != nil {
		c.logger.Warn("event cache write failed",
			zap.String("key", key), zap.Error(err))
		return false
	}

	c.logger.Debug("merged events into cache",
		zap.String("key", key), zap.Int("added", added), zap.Int("total", len(existing)))
	return true
}

// Info reports key existence, remaining TTL, and entry metadata.
func (c *EventCache) Info(ctx context.Context, key string) Info {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return Info{Exists: false}
	}
	if err != nil {
		c.logger.Warn("event cache info failed", zap.String("key", key), zap.Error(err))
		return Info{Exists: false}
	}

	info := Info{Exists: true, SizeBytes: len(raw)}

	if ttl, err := c.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		info.TTLSeconds = int64(ttl.Seconds())
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		info.TotalEvents = env.TotalEvents
		if !env.LastUpdated.IsZero() {
			t := env.LastUpdated
			info.LastUpdated = &t
		}
	}
	return info
}

// Clear deletes a key, reporting whether anything was removed.
func (c *EventCache) Clear(ctx context.Context, key string) bool {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		c.logger.Warn("event cache clear failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

// Keys lists cache keys matching pattern (default: all event cache keys),
// sorted for stable output.
func (c *EventCache) Keys(ctx context.Context, pattern string) []string {
	if pattern == "" {
		pattern = EventKeyPrefix + "*"
	}
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		c.logger.Warn("event cache key listing failed", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	sort.Strings(keys)
	return keys
}
