// Package server wires the HTTP API. Handlers are thin: bind the request,
// call one service, map errors onto the status code taxonomy.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/analytics"
	"github.com/agenthands/pulse/internal/cache"
	"github.com/agenthands/pulse/internal/etl"
	"github.com/agenthands/pulse/internal/jobs"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/similarity"
	"github.com/agenthands/pulse/internal/store"
	"github.com/agenthands/pulse/internal/vectorindex"
)

// EventStore is the store surface the CRUD and catalog handlers use.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	CreateEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) error
	DistinctCategories(ctx context.Context) ([]string, error)
	EventStats(ctx context.Context) (*store.Stats, error)
}

// Lister serves the filtered event listing (cache or store).
type Lister interface {
	List(ctx context.Context, f store.ListFilter) ([]model.Event, error)
}

// SimilaritySearcher is the engine surface used by the similarity handlers.
type SimilaritySearcher interface {
	ByText(ctx context.Context, query string, limit int, minSimilarity float64) (*model.SimilaritySearchResult, error)
	ByID(ctx context.Context, eventID string, limit int, minSimilarity float64, includeRelated bool) (*model.SimilaritySearchResult, error)
}

// Analytics serves the aggregate endpoints.
type Analytics interface {
	BusiestCities(ctx context.Context, windowDays, limit int) ([]model.BusiestCity, error)
	PopularEventsForDay(ctx context.Context, date time.Time) (*analytics.PopularEventsResult, error)
}

// ETLTrigger starts a pipeline run and returns its job record.
type ETLTrigger interface {
	Trigger(ctx context.Context, params etl.Params) (*jobs.Record, error)
}

// FeedChecker verifies upstream feed connectivity.
type FeedChecker interface {
	CheckConnection(ctx context.Context) error
}

// Embedder embeds event text for the CRUD handlers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps carries everything the server needs. Index is optional.
type Deps struct {
	Store      EventStore
	Lister     Lister
	Similarity SimilaritySearcher
	Analytics  Analytics
	ETL        ETLTrigger
	Feed       FeedChecker
	Embedder   Embedder
	Jobs       jobs.Store
	EventCache *cache.EventCache
	Pairwise   etl.PairwiseFunc
	Index      vectorindex.Index
	Logger     *zap.Logger
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func New(deps Deps) *Server {
	return &Server{deps: deps, log: deps.Logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.Health)

	v1 := r.Group("/api/v1")
	{
		events := v1.Group("/events")
		{
			events.GET("", s.ListEvents)
			events.POST("", s.CreateEvent)
			events.POST("/search/similar", s.SearchSimilar)
			events.GET("/busiest-cities", s.BusiestCities)
			events.GET("/popular/daily", s.PopularEventsDaily)
			events.GET("/categories", s.Categories)
			events.GET("/stats", s.Stats)
			events.GET("/:id", s.GetEvent)
			events.PUT("/:id", s.UpdateEvent)
			events.DELETE("/:id", s.DeleteEvent)
			events.GET("/:id/similar", s.SimilarByID)
		}

		etlGroup := v1.Group("/etl")
		{
			etlGroup.POST("/trigger", s.TriggerETL)
			etlGroup.GET("/status/:job_id", s.JobStatus)
			etlGroup.POST("/similarities", s.TriggerSimilarities)
			etlGroup.GET("/feed-check", s.FeedCheck)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/events/:id/similar", s.AdminSimilarByID)
			admin.GET("/cache", s.CacheKeys)
			admin.GET("/cache/:key", s.CacheInfo)
			admin.DELETE("/cache/:key", s.CacheClear)
		}
	}

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps the error taxonomy onto status codes: NotFound → 404,
// embedding outage → 503 (retryable), everything else → 500.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, similarity.ErrEmbeddingUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "embedding provider unavailable, retry later"})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
