package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/analytics"
	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/config"
	"github.com/agenthands/pulse/internal/embedding"
	"github.com/agenthands/pulse/internal/etl"
	"github.com/agenthands/pulse/internal/events"
	"github.com/agenthands/pulse/internal/jobs"
	"github.com/agenthands/pulse/internal/predicthq"
	"github.com/agenthands/pulse/internal/server"
	"github.com/agenthands/pulse/internal/similarity"
	"github.com/agenthands/pulse/internal/store"
	"github.com/agenthands/pulse/internal/vectorindex"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("configuration invalid", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store.
	pg, err := store.Open(cfg.Database.URL, cfg.Embedding.Dimension, logger)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer func() { _ = pg.Close() }()
	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Cache.
	redisClient, err := cache.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	eventCache := cache.NewEventCache(redisClient,
		time.Duration(cfg.Redis.EventTTLSeconds)*time.Second, logger)
	aggregateCache := cache.NewAggregateCache(redisClient, logger)

	// Embeddings.
	embClient, err := embedding.NewClient(ctx, cfg.Embedding)
	if err != nil {
		logger.Fatal("embedding client init failed", zap.Error(err))
	}
	embedder := embedding.NewService(embClient, cfg.Embedding.Dimension, logger)

	// Optional external vector index.
	var index vectorindex.Index
	if cfg.Similarity.Backend == "qdrant" {
		qdrant, err := vectorindex.NewQdrant(vectorindex.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Embedding.Dimension,
		}, logger)
		if err != nil {
			logger.Fatal("qdrant client init failed", zap.Error(err))
		}
		defer func() { _ = qdrant.Close() }()
		if err := qdrant.EnsureCollection(ctx); err != nil {
			logger.Fatal("qdrant collection init failed", zap.Error(err))
		}
		index = qdrant
	}

	// Services.
	engine := similarity.NewEngine(pg, embedder, similarity.Config{
		CandidateCap: cfg.Similarity.CandidateCap,
		Index:        index,
	}, logger)

	pairwise := func(ctx context.Context) (*similarity.PairwiseResult, error) {
		return similarity.ComputePairwise(ctx, pg, logger)
	}

	readPath := events.NewReadPath(pg, eventCache, logger)
	analyticsService := analytics.NewService(pg, aggregateCache, logger)
	jobStore := jobs.NewRedisStore(redisClient)
	feed := predicthq.NewClient(cfg.Feed.BaseURL, cfg.Feed.Token, logger)
	pipeline := etl.NewPipeline(feed, embedder, pg, eventCache, jobStore,
		pairwise, cfg.ETL.BatchSize, logger)

	// Background schedules.
	var syncer *vectorindex.Syncer
	if index != nil {
		syncer = vectorindex.NewSyncer(pg, index, 100, logger)
	}
	scheduler := etl.NewScheduler(pipeline, func(ctx context.Context) (int, error) {
		if syncer == nil {
			return 0, nil
		}
		return syncer.Run(ctx)
	}, logger)
	if cfg.ETL.HourlySchedule {
		if err := scheduler.EnableHourlyETL(1000); err != nil {
			logger.Fatal("scheduling hourly etl failed", zap.Error(err))
		}
	}
	if cfg.ETL.IndexSync && index != nil {
		if err := scheduler.EnableIndexSync(); err != nil {
			logger.Fatal("scheduling index sync failed", zap.Error(err))
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP.
	srv := server.New(server.Deps{
		Store:      pg,
		Lister:     readPath,
		Similarity: engine,
		Analytics:  analyticsService,
		ETL:        pipeline,
		Feed:       feed,
		Embedder:   embedder,
		Jobs:       jobStore,
		EventCache: eventCache,
		Pairwise:   pairwise,
		Index:      index,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.SetupRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
}
