package predicthq

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func feedServer(t *testing.T, totalEvents int) (*httptest.Server, *int) {
	t.Helper()
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var results []RawEvent
		for i := offset; i < offset+limit && i < totalEvents; i++ {
			results = append(results, RawEvent{
				ID:       fmt.Sprintf("evt-%04d", i),
				Title:    fmt.Sprintf("Event %d", i),
				Category: "concerts",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count":   totalEvents,
			"results": results,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func testClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "test-token", zap.NewNop())
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	srv, requests := feedServer(t, 150)
	c := testClient(srv)

	events := c.FetchAll(context.Background(), 1000, FetchFilter{})

	assert.Len(t, events, 150)
	// Page 1 full (100), page 2 short (50) ends the fetch.
	assert.Equal(t, 2, *requests)
}

func TestFetchAllBoundedByMaxEvents(t *testing.T) {
	srv, _ := feedServer(t, 5000)
	c := testClient(srv)

	events := c.FetchAll(context.Background(), 200, FetchFilter{})
	assert.Len(t, events, 300, "fetch runs whole pages up to the max bound")
}

func TestFetchAllEmptyFeed(t *testing.T) {
	srv, _ := feedServer(t, 0)
	c := testClient(srv)

	events := c.FetchAll(context.Background(), 1000, FetchFilter{})
	assert.Empty(t, events)
}

func TestFetchAllStopsOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var results []RawEvent
		for i := 0; i < 100; i++ {
			results = append(results, RawEvent{ID: fmt.Sprintf("evt-%04d", i)})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv)
	events := c.FetchAll(context.Background(), 1000, FetchFilter{})
	assert.Len(t, events, 100, "events before the error are kept")
}

func TestFetchPagePassesFilters(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []RawEvent{}})
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv)
	_, err := c.FetchPage(context.Background(), 50, 10, FetchFilter{
		Category:  "sports",
		Location:  "Berlin",
		StartDate: "2026-08-01",
		EndDate:   "2026-08-31",
	})
	require.NoError(t, err)

	assert.Equal(t, "50", gotQuery["limit"])
	assert.Equal(t, "10", gotQuery["offset"])
	assert.Equal(t, "true", gotQuery["active"])
	assert.Equal(t, "start", gotQuery["sort"])
	assert.Equal(t, "sports", gotQuery["category"])
	assert.Equal(t, "Berlin", gotQuery["location"])
	assert.Equal(t, "2026-08-01", gotQuery["start.gte"])
	assert.Equal(t, "2026-08-31", gotQuery["end.lte"])
}

func TestCheckConnection(t *testing.T) {
	srv, _ := feedServer(t, 10)
	require.NoError(t, testClient(srv).CheckConnection(context.Background()))

	empty, _ := feedServer(t, 0)
	assert.Error(t, testClient(empty).CheckConnection(context.Background()))
}

func TestParseDefaultsAndCleaning(t *testing.T) {
	c := NewClient("", "", zap.NewNop())

	att := 1200
	raw := RawEvent{
		ID:            "evt-1",
		Title:         "   ",
		Description:   "Open-air concert. Sourced from predicthq.com",
		Category:      "",
		Location:      []float64{13.4, 52.52},
		Start:         "2026-08-30T18:00:00Z",
		End:           "2026-08-30",
		Updated:       "not-a-date",
		PHQAttendance: &att,
	}
	raw.Geo.Address.FormattedAddress = "Berlin, Germany"
	raw.Geo.Address.Locality = "Berlin"
	raw.Geo.Address.Region = "Berlin"

	e := c.Parse(raw)

	assert.Equal(t, "Untitled Event", e.Title)
	assert.Equal(t, "Open-air concert.", e.Description)
	assert.Equal(t, "other", e.Category)
	require.NotNil(t, e.Longitude)
	assert.Equal(t, 13.4, *e.Longitude)
	require.NotNil(t, e.Latitude)
	assert.Equal(t, 52.52, *e.Latitude)
	assert.Equal(t, "Berlin", e.City)

	require.NotNil(t, e.Start)
	assert.Equal(t, 18, e.Start.Hour())
	require.NotNil(t, e.End, "date-only timestamps are accepted")

	// Unparsable updated falls back to now.
	require.NotNil(t, e.UpstreamUpdated)

	require.NotNil(t, e.Attendance)
	assert.Equal(t, 1200, *e.Attendance)
	require.NotNil(t, e.SpendAmount)
	assert.Zero(t, *e.SpendAmount)
}

func TestParseMissingCoordinates(t *testing.T) {
	c := NewClient("", "", zap.NewNop())
	e := c.Parse(RawEvent{ID: "evt-2", Title: "Fair"})

	assert.Nil(t, e.Longitude)
	assert.Nil(t, e.Latitude)
	assert.Nil(t, e.Start)
}
