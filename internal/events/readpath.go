// Package events answers filtered event listings from the hot cache when it
// holds enough recent data, falling back to the durable store otherwise.
// Callers get the same response shape either way; only the logs reveal
// which path served a request.
package events

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/store"
)

// CacheThreshold is the minimum number of cached events across the 2-day
// window for the cache to be treated as authoritative. Below it the store
// serves the request and the fetched page is written back.
const CacheThreshold = 100

// listStore is the store surface the read path falls back to.
type listStore interface {
	ListEvents(ctx context.Context, f store.ListFilter) ([]model.Event, error)
}

type ReadPath struct {
	store  listStore
	cache  *cache.EventCache
	logger *zap.Logger

	// now is swapped in tests to pin the cache-key window.
	now func() time.Time
}

func NewReadPath(st listStore, c *cache.EventCache, logger *zap.Logger) *ReadPath {
	return &ReadPath{store: st, cache: c, logger: logger, now: time.Now}
}

// List returns a filtered, paginated event listing ordered by start time
// descending. Empty cache and empty store both yield an empty page.
func (r *ReadPath) List(ctx context.Context, f store.ListFilter) ([]model.Event, error) {
	cached := r.unionRecent(ctx)
	if len(cached) >= CacheThreshold {
		r.logger.Debug("serving event listing from cache", zap.Int("cached", len(cached)))
		return filterPage(cached, f), nil
	}

	r.logger.Debug("cache below threshold, serving from store",
		zap.Int("cached", len(cached)), zap.Int("threshold", CacheThreshold))

	events, err := r.store.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}

	// Best-effort backfill for today's key; a failed merge is already
	// logged by the cache and does not affect the response.
	if len(events) > 0 {
		r.cache.Merge(ctx, cache.DailyKey(r.now()), events)
	}
	return events, nil
}

// unionRecent gathers the 2-day window of cached events, deduped by ID.
func (r *ReadPath) unionRecent(ctx context.Context) []model.Event {
	var union []model.Event
	seen := make(map[string]struct{})
	for _, key := range cache.RecentKeys(r.now()) {
		entry, ok := r.cache.Get(ctx, key)
		if !ok {
			continue
		}
		for _, e := range entry {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			union = append(union, e)
		}
	}
	return union
}

// filterPage applies the listing filter in memory: exact category match,
// case-insensitive location substring, start-descending order, then the
// skip/limit slice. Paging past the end yields an empty page.
func filterPage(events []model.Event, f store.ListFilter) []model.Event {
	filtered := make([]model.Event, 0, len(events))
	for _, e := range events {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Location != "" &&
			!strings.Contains(strings.ToLower(e.Location), strings.ToLower(f.Location)) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		ti, tj := filtered[i].Start, filtered[j].Start
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if f.Skip >= len(filtered) {
		return []model.Event{}
	}
	filtered = filtered[f.Skip:]
	if f.Limit > 0 && f.Limit < len(filtered) {
		filtered = filtered[:f.Limit]
	}
	return filtered
}
