package model

import (
	"strings"
	"time"
)

// Event is one record from the upstream events feed, enriched with an
// embedding vector for similarity search. The ID is the upstream identifier
// and never changes; everything else may be overwritten by a later ETL run.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`

	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Location  string   `json:"location,omitempty"`

	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	Attendance  *int `json:"attendance,omitempty"`
	SpendAmount *int `json:"spend_amount,omitempty"`

	// Embeddings is nil until the ETL path has embedded the event text.
	Embeddings []float32 `json:"embeddings,omitempty"`

	// RelatedEventIDs is a comma-separated set of curated event IDs.
	RelatedEventIDs string `json:"related_event_ids,omitempty"`

	// Indexed reports whether the vector has been pushed to the external
	// vector index (only meaningful when one is configured).
	Indexed bool `json:"indexed"`

	UpstreamUpdated *time.Time `json:"upstream_updated,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RelatedIDs parses the comma-separated related_event_ids field.
// Blank segments are dropped.
func (e *Event) RelatedIDs() []string {
	if e.RelatedEventIDs == "" {
		return nil
	}
	parts := strings.Split(e.RelatedEventIDs, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// Duration returns end - start, or zero when either endpoint is missing.
func (e *Event) Duration() time.Duration {
	if e.Start == nil || e.End == nil {
		return 0
	}
	return e.End.Sub(*e.Start)
}

// RelationSimilar and friends are the relationship_type values carried by
// EventSimilarity rows and similarity responses.
const (
	RelationSimilar   = "similar"
	RelationRelated   = "related"
	RelationDuplicate = "duplicate"
)

// EventSimilarity is a precomputed pairwise similarity row produced by the
// batch similarity job. Rows are insert-only; recomputation inserts fresh
// rows and readers dedupe, so treat the table as at-least-once.
type EventSimilarity struct {
	ID               int64     `json:"id"`
	EventID1         string    `json:"event_id_1"`
	EventID2         string    `json:"event_id_2"`
	SimilarityScore  float64   `json:"similarity_score"`
	RelationshipType string    `json:"relationship_type"`
	CreatedAt        time.Time `json:"created_at"`
}

// SimilarEvent pairs an event with the score and provenance of the match.
type SimilarEvent struct {
	Event            *Event  `json:"event"`
	SimilarityScore  float64 `json:"similarity_score"`
	RelationshipType string  `json:"relationship_type"`
}

// SimilaritySearchResult is the uniform shape for every similarity endpoint.
type SimilaritySearchResult struct {
	QueryEvent    *Event         `json:"query_event,omitempty"`
	SimilarEvents []SimilarEvent `json:"similar_events"`
	TotalFound    int            `json:"total_found"`
}

// TopEvent is an event annotated with attendance and rank for the
// analytics endpoints. Simulated marks attendance figures synthesized by
// the popularity heuristic rather than sourced from the feed.
type TopEvent struct {
	Event
	PopularityRank int  `json:"popularity_rank,omitempty"`
	Simulated      bool `json:"simulated"`
}

// EventCountBucket is one 3-hour slice of a city's 24h activity histogram.
type EventCountBucket struct {
	IntervalStart time.Time `json:"interval_start"`
	IntervalEnd   time.Time `json:"interval_end"`
	EventCount    int       `json:"event_count"`
}

// BusiestCity aggregates one city's activity inside the query window.
type BusiestCity struct {
	City            string             `json:"city"`
	TotalAttendance int64              `json:"total_attendance"`
	TopEvents       []TopEvent         `json:"top_events"`
	EventCounts     []EventCountBucket `json:"event_counts"`
}
