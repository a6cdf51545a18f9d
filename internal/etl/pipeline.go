// Package etl runs the ingestion pipeline: fetch events from the upstream
// feed, embed their text, write them to the store in per-batch
// transactions, and merge the parsed records into the daily cache. Runs
// are tracked through the jobs store and polled by ID.
package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/embedding"
	"github.com/agenthands/pulse/internal/jobs"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/predicthq"
	"github.com/agenthands/pulse/internal/similarity"
)

// Params configures one pipeline run.
type Params struct {
	MaxEvents           int
	Filter              predicthq.FetchFilter
	ComputeSimilarities bool
	UseCache            bool
}

// feed is the upstream client surface the pipeline consumes.
type feed interface {
	FetchAll(ctx context.Context, maxEvents int, filter predicthq.FetchFilter) []predicthq.RawEvent
	ParseAll(raws []predicthq.RawEvent) []model.Event
}

// batchEmbedder embeds event texts with the sentinel zero-vector fallback;
// a provider outage degrades individual vectors, never the batch.
type batchEmbedder interface {
	EmbedBatchOrZero(ctx context.Context, texts []string) [][]float32
}

// upsertStore writes one batch transactionally.
type upsertStore interface {
	UpsertEvents(ctx context.Context, events []model.Event) (created, updated int, err error)
}

// PairwiseFunc runs the post-ingest similarity computation. Injected so the
// pipeline does not depend on the engine's store wiring.
type PairwiseFunc func(ctx context.Context) (*similarity.PairwiseResult, error)

type Pipeline struct {
	feed      feed
	embedder  batchEmbedder
	store     upsertStore
	cache     *cache.EventCache
	jobs      jobs.Store
	pairwise  PairwiseFunc
	batchSize int
	logger    *zap.Logger

	now func() time.Time
}

func NewPipeline(f feed, embedder batchEmbedder, st upsertStore, c *cache.EventCache, jobStore jobs.Store, pairwise PairwiseFunc, batchSize int, logger *zap.Logger) *Pipeline {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Pipeline{
		feed:      f,
		embedder:  embedder,
		store:     st,
		cache:     c,
		jobs:      jobStore,
		pairwise:  pairwise,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Trigger records a running job and starts the pipeline in the background.
// The returned record is a point-in-time snapshot for the trigger response;
// the running job mutates its own copy, so progress is read through the
// job store, never through the returned struct.
func (p *Pipeline) Trigger(ctx context.Context, params Params) (*jobs.Record, error) {
	rec := jobs.NewRecord("etl")
	if err := p.jobs.Set(ctx, rec); err != nil {
		return nil, fmt.Errorf("record etl job: %w", err)
	}

	// Snapshot before the goroutine starts; after that only the run may
	// touch rec.
	snapshot := rec.Clone()

	go func() {
		// The request context ends when the trigger response is sent; the
		// job keeps its own deadline.
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		p.Run(runCtx, rec, params)
	}()

	return snapshot, nil
}

// Run executes the pipeline synchronously, updating the job record as it
// goes. A failed batch is logged and skipped; the run only fails outright
// when nothing could be fetched or every write failed.
func (p *Pipeline) Run(ctx context.Context, rec *jobs.Record, params Params) {
	started := p.now()

	raws := p.feed.FetchAll(ctx, params.MaxEvents, params.Filter)
	if len(raws) == 0 {
		rec.Complete("no events returned by the feed")
		p.saveRecord(ctx, rec)
		return
	}

	events := p.feed.ParseAll(raws)
	rec.Message = fmt.Sprintf("processing %d events", len(events))
	rec.Counters["fetched"] = len(events)
	p.saveRecord(ctx, rec)

	// Only events whose batch committed may reach the cache; a cached
	// event absent from the store would resurface on every read until
	// the next backfill.
	stored := make([]model.Event, 0, len(events))
	created, updated, failedBatches := 0, 0, 0
	for start := 0; start < len(events); start += p.batchSize {
		end := start + p.batchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[start:end]

		p.embedBatch(ctx, batch)

		c, u, err := p.store.UpsertEvents(ctx, batch)
		if err != nil {
			failedBatches++
			p.logger.Error("etl batch write failed, continuing with next batch",
				zap.Int("offset", start), zap.Int("size", len(batch)), zap.Error(err))
			continue
		}
		stored = append(stored, batch...)
		created += c
		updated += u

		rec.Counters["processed"] = len(stored)
		rec.Counters["created"] = created
		rec.Counters["updated"] = updated
		p.saveRecord(ctx, rec)
	}
	processed := len(stored)

	if params.UseCache && processed > 0 {
		key := p.cacheKey(params)
		if p.cache.Merge(ctx, key, stored) {
			rec.Counters["cached"] = processed
		}
	}

	if params.ComputeSimilarities && p.pairwise != nil && processed > 0 {
		res, err := p.pairwise(ctx)
		if err != nil {
			p.logger.Error("post-ingest similarity computation failed", zap.Error(err))
		} else {
			rec.Counters["similarity_pairs"] = res.PairsStored
		}
	}

	elapsed := p.now().Sub(started).Round(time.Millisecond)
	if processed == 0 {
		rec.Fail(fmt.Sprintf("all %d batches failed", failedBatches))
	} else {
		rec.Complete(fmt.Sprintf("processed %d events (%d created, %d updated) in %s",
			processed, created, updated, elapsed))
	}
	p.saveRecord(ctx, rec)
}

// embedBatch fills in missing embeddings for one batch. Events that
// already carry a vector (unchanged records from a previous run) keep it.
func (p *Pipeline) embedBatch(ctx context.Context, batch []model.Event) {
	texts := make([]string, 0, len(batch))
	targets := make([]int, 0, len(batch))
	for i := range batch {
		if len(batch[i].Embeddings) > 0 {
			continue
		}
		texts = append(texts, embedding.PrepareEventText(batch[i].Title, batch[i].Description))
		targets = append(targets, i)
	}
	if len(texts) == 0 {
		return
	}

	vectors := p.embedder.EmbedBatchOrZero(ctx, texts)
	for i, target := range targets {
		batch[target].Embeddings = vectors[i]
	}
}

// cacheKey picks the daily key: the filter's start date when given,
// otherwise today.
func (p *Pipeline) cacheKey(params Params) string {
	if params.Filter.StartDate != "" {
		if t, err := time.Parse("2006-01-02", params.Filter.StartDate); err == nil {
			return cache.DailyKey(t)
		}
		if t, err := time.Parse(time.RFC3339, params.Filter.StartDate); err == nil {
			return cache.DailyKey(t)
		}
	}
	return cache.DailyKey(p.now())
}

func (p *Pipeline) saveRecord(ctx context.Context, rec *jobs.Record) {
	if err := p.jobs.Set(ctx, rec); err != nil {
		p.logger.Warn("persisting job status failed",
			zap.String("job_id", rec.ID), zap.Error(err))
	}
}
