package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/etl"
	"github.com/agenthands/pulse/internal/jobs"
	"github.com/agenthands/pulse/internal/predicthq"
)

func (s *Server) TriggerETL(c *gin.Context) {
	params := etl.Params{
		MaxEvents: intQuery(c, "max_events", 1000),
		Filter: predicthq.FetchFilter{
			Category:  c.Query("category"),
			Location:  c.Query("location"),
			StartDate: c.Query("start_date"),
			EndDate:   c.Query("end_date"),
		},
		ComputeSimilarities: c.DefaultQuery("similarities", "true") == "true",
		UseCache:            c.DefaultQuery("use_cache", "true") == "true",
	}

	rec, err := s.deps.ETL.Trigger(c.Request.Context(), params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  rec.ID,
		"status":  rec.Status,
		"message": "etl started",
	})
}

func (s *Server) JobStatus(c *gin.Context) {
	rec, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// TriggerSimilarities starts the pairwise similarity computation as a
// polled background job.
func (s *Server) TriggerSimilarities(c *gin.Context) {
	rec := jobs.NewRecord("similarity")
	if err := s.deps.Jobs.Set(c.Request.Context(), rec); err != nil {
		s.respondError(c, err)
		return
	}

	// The goroutine gets its own copy; rec stays handler-owned so the
	// response below does not read a struct the job is mutating.
	job := rec.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		res, err := s.deps.Pairwise(ctx)
		if err != nil {
			job.Fail(err.Error())
		} else {
			job.Counters["events_compared"] = res.EventsCompared
			job.Counters["pairs_computed"] = res.PairsComputed
			job.Counters["pairs_stored"] = res.PairsStored
			job.Complete("similarity computation finished")
		}
		if err := s.deps.Jobs.Set(ctx, job); err != nil {
			s.log.Warn("persisting similarity job status failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job_id": rec.ID, "status": rec.Status})
}

func (s *Server) FeedCheck(c *gin.Context) {
	if err := s.deps.Feed.CheckConnection(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
