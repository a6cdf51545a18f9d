package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/embedding"
	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/store"
)

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) ListEvents(c *gin.Context) {
	filter := store.ListFilter{
		Skip:     intQuery(c, "skip", 0),
		Limit:    intQuery(c, "limit", 100),
		Category: c.Query("category"),
		Location: c.Query("location"),
	}

	events, err := s.deps.Lister.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

type eventRequest struct {
	ID          string   `json:"id"`
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Longitude   *float64 `json:"longitude"`
	Latitude    *float64 `json:"latitude"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	Location    string   `json:"location"`
	Start       *string  `json:"start"`
	End         *string  `json:"end"`
	Attendance  *int     `json:"attendance"`
	Related     string   `json:"related_event_ids"`
}

func (r *eventRequest) apply(e *model.Event) error {
	e.Title = r.Title
	e.Description = r.Description
	e.Category = r.Category
	if e.Category == "" {
		e.Category = "other"
	}
	e.Longitude = r.Longitude
	e.Latitude = r.Latitude
	e.City = r.City
	e.Region = r.Region
	e.Location = r.Location
	e.Attendance = r.Attendance
	e.RelatedEventIDs = r.Related

	var err error
	if e.Start, err = parseTimePtr(r.Start); err != nil {
		return err
	}
	if e.End, err = parseTimePtr(r.End); err != nil {
		return err
	}
	return nil
}

func (s *Server) CreateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	e := &model.Event{ID: req.ID}
	if e.ID == "" {
		e.ID = newEventID()
	}
	if err := req.apply(e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.embedEvent(c, e)

	if err := s.deps.Store.CreateEvent(c.Request.Context(), e); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) GetEvent(c *gin.Context) {
	e, err := s.deps.Store.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) UpdateEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	e, err := s.deps.Store.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	textChanged := e.Title != req.Title || e.Description != req.Description
	if err := req.apply(e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if textChanged {
		s.embedEvent(c, e)
	}

	if err := s.deps.Store.UpdateEvent(c.Request.Context(), e); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) DeleteEvent(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Store.DeleteEvent(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}

	if s.deps.Index != nil {
		if err := s.deps.Index.Delete(c.Request.Context(), id); err != nil {
			s.log.Warn("removing event from vector index failed",
				zap.String("event_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) Categories(c *gin.Context) {
	categories, err := s.deps.Store.DistinctCategories(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(categories))
	for _, cat := range categories {
		out = append(out, gin.H{"category": cat, "color": model.CategoryColor(cat)})
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (s *Server) Stats(c *gin.Context) {
	stats, err := s.deps.Store.EventStats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// embedEvent attaches an embedding to the event. An embedding outage does
// not block a write: the event is stored without a vector and picked up by
// a later recompute.
func (s *Server) embedEvent(c *gin.Context, e *model.Event) {
	vec, err := s.deps.Embedder.Embed(c.Request.Context(),
		embedding.PrepareEventText(e.Title, e.Description))
	if err != nil {
		s.log.Warn("embedding failed, storing event without vector",
			zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	e.Embeddings = vec
}
