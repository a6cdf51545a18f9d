package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AggregateTTL is the fixed lifetime of computed aggregate results. There
// is no invalidation on underlying writes; staleness up to this bound is
// accepted by design.
const AggregateTTL = time.Hour

// AggregateCache stores fully-computed aggregate query results verbatim.
type AggregateCache struct {
	client goredis.UniversalClient
	logger *zap.Logger
}

func NewAggregateCache(client goredis.UniversalClient, logger *zap.Logger) *AggregateCache {
	return &AggregateCache{client: client, logger: logger}
}

// BusiestCitiesKey derives the cache key for a busiest-cities query.
func BusiestCitiesKey(windowDays, limit int) string {
	return fmt.Sprintf("busiest_cities:%d:%d", windowDays, limit)
}

// PopularEventsKey derives the cache key for a popular-events-per-day query.
func PopularEventsKey(date time.Time) string {
	return "popular_events:" + date.UTC().Format("2006-01-02")
}

// Get decodes a cached aggregate into dst, reporting a hit. Errors degrade
// to a miss.
func (c *AggregateCache) Get(ctx context.Context, key string, dst any) bool {
	ok, err := getJSON(ctx, c.client, key, dst)
	if err != nil {
		c.logger.Warn("aggregate cache read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

// Set stores a computed aggregate with the fixed TTL. Failures are logged
// and swallowed; the caller already has the computed result.
func (c *AggregateCache) Set(ctx context.Context, key string, v any) {
	if err := setJSON(ctx, c.client, key, v, AggregateTTL); err != nil {
		c.logger.Warn("aggregate cache write failed",
			zap.String("key", key), zap.Error(err))
	}
}
