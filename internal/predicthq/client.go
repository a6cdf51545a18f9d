// Package predicthq fetches event records from the upstream events feed and
// parses them into the internal event shape.
package predicthq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/agenthands/pulse/internal/model"
)

// pageSize is the feed page size used by the paginated fetch.
const pageSize = 100

// FetchFilter narrows the upstream query.
type FetchFilter struct {
	Category  string
	Location  string
	StartDate string // start.gte, ISO date
	EndDate   string // end.lte, ISO date
}

// RawEvent is one record as returned by the feed.
type RawEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Location    []float64 `json:"location"`
	Geo         struct {
		Address struct {
			FormattedAddress string `json:"formatted_address"`
			Locality         string `json:"locality"`
			Region           string `json:"region"`
		} `json:"address"`
	} `json:"geo"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Updated        string `json:"updated"`
	PHQAttendance  *int   `json:"phq_attendance"`
	PredictedSpend *int   `json:"predicted_event_spend"`
}

type eventsPage struct {
	Results []RawEvent `json:"results"`
	Count   int        `json:"count"`
}

// Client talks to the events feed API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
}

// FetchPage fetches one page of active events sorted by start time.
func (c *Client) FetchPage(ctx context.Context, limit, offset int, filter FetchFilter) ([]RawEvent, error) {
	if limit > 1000 {
		limit = 1000
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("sort", "start")
	if filter.Category != "" {
		params.Set("category", filter.Category)
	}
	if filter.Location != "" {
		params.Set("location", filter.Location)
	}
	if filter.StartDate != "" {
		params.Set("start.gte", filter.StartDate)
	}
	if filter.EndDate != "" {
		params.Set("end.lte", filter.EndDate)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/events/?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, body)
	}

	var page eventsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode events page: %w", err)
	}
	return page.Results, nil
}

// FetchAll pages through the feed until it runs dry, a short page signals
// the end, or maxEvents is reached. A mid-pagination error ends the fetch
// with whatever was already collected.
func (c *Client) FetchAll(ctx context.Context, maxEvents int, filter FetchFilter) []RawEvent {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	var all []RawEvent
	pages := maxEvents/pageSize + 1
	for page := 0; page < pages; page++ {
		offset := page * pageSize
		results, err := c.FetchPage(ctx, pageSize, offset, filter)
		if err != nil {
			c.logger.Error("feed pagination aborted",
				zap.Int("offset", offset), zap.Error(err))
			break
		}
		if len(results) == 0 {
			break
		}

		all = append(all, results...)
		c.logger.Debug("fetched feed page",
			zap.Int("offset", offset), zap.Int("events", len(results)))

		if len(results) < pageSize {
			break
		}
	}

	c.logger.Info("feed fetch complete", zap.Int("total", len(all)))
	return all
}

// CheckConnection fetches a single event to verify credentials and
// reachability.
func (c *Client) CheckConnection(ctx context.Context) error {
	results, err := c.FetchPage(ctx, 1, 0, FetchFilter{})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("feed reachable but returned no events")
	}
	return nil
}

// Parse converts a raw feed record into the internal event shape. Missing
// titles and categories get defaults; unparsable timestamps are dropped
// with a warning rather than failing the record.
func (c *Client) Parse(raw RawEvent) model.Event {
	e := model.Event{
		ID:          raw.ID,
		Title:       cleanTitle(raw.Title),
		Description: stripBoilerplate(raw.Description),
		Category:    cleanCategory(raw.Category),
		City:        raw.Geo.Address.Locality,
		Region:      raw.Geo.Address.Region,
		Location:    raw.Geo.Address.FormattedAddress,
	}

	if len(raw.Location) >= 2 {
		lon, lat := raw.Location[0], raw.Location[1]
		e.Longitude = &lon
		e.Latitude = &lat
	}

	e.Start = c.parseTime(raw.ID, "start", raw.Start)
	e.End = c.parseTime(raw.ID, "end", raw.End)

	if updated := c.parseTime(raw.ID, "updated", raw.Updated); updated != nil {
		e.UpstreamUpdated = updated
	} else {
		now := time.Now().UTC()
		e.UpstreamUpdated = &now
	}

	attendance := 0
	if raw.PHQAttendance != nil {
		attendance = *raw.PHQAttendance
	}
	e.Attendance = &attendance

	spend := 0
	if raw.PredictedSpend != nil {
		spend = *raw.PredictedSpend
	}
	e.SpendAmount = &spend

	return e
}

// ParseAll parses a raw batch, keeping every record (per-record defaults
// absorb bad fields).
func (c *Client) ParseAll(raws []RawEvent) []model.Event {
	events := make([]model.Event, 0, len(raws))
	for _, raw := range raws {
		events = append(events, c.Parse(raw))
	}
	return events
}

func (c *Client) parseTime(id, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		// The feed sometimes emits dates without a time component.
		if d, derr := time.Parse("2006-01-02", value); derr == nil {
			d = d.UTC()
			return &d
		}
		c.logger.Warn("unparsable feed timestamp",
			zap.String("event_id", id), zap.String("field", field), zap.String("value", value))
		return nil
	}
	t = t.UTC()
	return &t
}
