package listings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `{
  "nbHits": 2,
  "nbPages": 1,
  "page": 0,
  "hits": [
    {
      "id": 7001,
      "externalID": "8812345",
      "title": "Marina View 2BR",
      "price": 2150000,
      "rooms": 2,
      "baths": "3",
      "area": 120.5,
      "location": [{"level": 0, "name": "UAE"}, {"level": 1, "name": "Dubai"}, {"level": 2, "name": "Dubai Marina"}],
      "category": [{"level": 0, "slug": "residential"}, {"level": 1, "slug": "apartments"}],
      "geography": {"lat": 25.08, "lng": 55.14},
      "coverPhoto": {"id": 1, "url": "https://img.example/1.jpg"},
      "purpose": "for-sale"
    },
    {
      "id": 7002,
      "title": "Studio in JVC",
      "rooms": "studio",
      "baths": null
    }
  ]
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPage_SendsQueryAndHeaders(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/properties/list", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, "bayut.test", r.Header.Get("X-RapidAPI-Host"))

		q := r.URL.Query()
		assert.Equal(t, "5002", q.Get("locationExternalIDs"))
		assert.Equal(t, "for-rent", q.Get("purpose"))
		assert.Equal(t, "10", q.Get("hitsPerPage"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "en", q.Get("lang"))
		assert.Equal(t, "date-desc", q.Get("sort"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	})

	c := NewClient("secret", WithBaseURL(srv.URL), WithHost("bayut.test"), WithRateLimit(100))
	page, err := c.FetchPage(context.Background(), Query{
		LocationExternalID: "5002",
		Purpose:            "for-rent",
		HitsPerPage:        10,
		Page:               2,
	})
	require.NoError(t, err)

	require.Len(t, page.Hits, 2)
	assert.Equal(t, 1, page.NbPages)

	first := page.Hits[0]
	assert.Equal(t, "8812345", first.Identity())
	assert.Equal(t, FlexString("2"), first.Rooms)
	assert.Equal(t, FlexString("3"), first.Baths)
	assert.Equal(t, "https://img.example/1.jpg", first.CoverPhoto.URL)
	assert.Len(t, first.Location, 3)

	second := page.Hits[1]
	assert.Equal(t, "7002", second.Identity())
	assert.Equal(t, FlexString("studio"), second.Rooms)
	assert.Equal(t, FlexString(""), second.Baths)
	assert.Nil(t, second.CoverPhoto)
}

func TestFetchPage_MissingAPIKey(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	})

	c := NewClient("", WithBaseURL(srv.URL))
	_, err := c.FetchPage(context.Background(), Query{LocationExternalID: "5002"})

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.False(t, c.HasAPIKey())
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestFetchPage_UpstreamError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad location"}`))
	})

	c := NewClient("secret", WithBaseURL(srv.URL), WithRateLimit(100))
	_, err := c.FetchPage(context.Background(), Query{LocationExternalID: "x"})
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "bad location")

	// client errors do not count against the upstream
	isOpen, failures, _ := c.Breaker().GetStatus()
	assert.False(t, isOpen)
	assert.Equal(t, 0, failures)
}

func TestFetchPage_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	c := NewClient("secret",
		WithBaseURL(srv.URL),
		WithRateLimit(100),
		WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)),
	)

	for i := 0; i < 2; i++ {
		_, err := c.FetchPage(context.Background(), Query{LocationExternalID: "5002"})
		var upstream *UpstreamError
		require.True(t, errors.As(err, &upstream))
	}

	_, err := c.FetchPage(context.Background(), Query{LocationExternalID: "5002"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("secret", WithBaseURL(srv.URL))
	_, err := c.FetchPage(ctx, Query{LocationExternalID: "5002"})
	assert.Error(t, err)
}

func TestCircuitBreaker_ResetsAfterTimeout(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(3, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure(http.StatusTooManyRequests)
	assert.True(t, cb.CanProceed())
	cb.RecordFailure(http.StatusTooManyRequests)
	assert.False(t, cb.CanProceed())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.CanProceed())

	isOpen, failures, total := cb.GetStatus()
	assert.False(t, isOpen)
	assert.Zero(t, failures)
	assert.Zero(t, total)
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FlexString
	}{
		{"number", `{"v": 4}`, "4"},
		{"string", `{"v": "7+"}`, "7+"},
		{"null", `{"v": null}`, ""},
		{"missing", `{}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				V FlexString `json:"v"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.input), &out))
			assert.Equal(t, tt.want, out.V)
		})
	}
}
