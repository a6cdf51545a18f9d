package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/pulse/internal/model"
	"github.com/agenthands/pulse/internal/similarity"
)

type similarSearchRequest struct {
	QueryText     string   `json:"query_text"`
	EventID       string   `json:"event_id"`
	MinSimilarity *float64 `json:"min_similarity"`
}

func minSimilarityOrDefault(v *float64) float64 {
	if v == nil || *v < 0 || *v > 1 {
		return similarity.DefaultMinSimilarity
	}
	return *v
}

// SearchSimilar is the public similarity search. The result count is fixed
// at 5 regardless of any caller-supplied limit; that cap is a product
// decision, not a default.
func (s *Server) SearchSimilar(c *gin.Context) {
	var req similarSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.QueryText == "" && req.EventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query_text or event_id is required"})
		return
	}

	minSim := minSimilarityOrDefault(req.MinSimilarity)

	var (
		result *model.SimilaritySearchResult
		err    error
	)
	if req.QueryText != "" {
		result, err = s.deps.Similarity.ByText(
			c.Request.Context(), req.QueryText, similarity.PublicResultCap, minSim)
	} else {
		result, err = s.deps.Similarity.ByID(
			c.Request.Context(), req.EventID, similarity.PublicResultCap, minSim, false)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SimilarByID is the public by-ID lookup, capped at 5 results.
func (s *Server) SimilarByID(c *gin.Context) {
	minSim := parseMinSimilarity(c)
	includeRelated := c.DefaultQuery("include_related", "true") == "true"

	result, err := s.deps.Similarity.ByID(
		c.Request.Context(), c.Param("id"), similarity.PublicResultCap, minSim, includeRelated)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdminSimilarByID is the debug surface: honors the caller's limit up to 50
// and always runs the full three-source merge.
func (s *Server) AdminSimilarByID(c *gin.Context) {
	limit := intQuery(c, "limit", similarity.PublicResultCap)
	if limit > similarity.AdminResultCap {
		limit = similarity.AdminResultCap
	}
	minSim := parseMinSimilarity(c)

	result, err := s.deps.Similarity.ByID(
		c.Request.Context(), c.Param("id"), limit, minSim, true)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseMinSimilarity(c *gin.Context) float64 {
	if v := c.Query("min_similarity"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return minSimilarityOrDefault(&f)
		}
	}
	return similarity.DefaultMinSimilarity
}
