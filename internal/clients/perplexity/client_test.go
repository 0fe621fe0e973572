package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newFixtureClient(t *testing.T, handler http.HandlerFunc, limiter *rate.Limiter) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", limiter, zerolog.Nop())
	c.baseURL = srv.URL
	return c
}

func TestSearch(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	c := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"choices":[{"message":{"content":"AAPL closed up 1.2% today."}}],"citations":["https://example.com/a"]}`))
	}, rate.NewLimiter(rate.Inf, 1))

	res, err := c.Search(context.Background(), "AAPL today", SearchOptions{
		MaxTokens:     300,
		RecencyFilter: "day",
		DomainFilter:  []string{"reuters.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, 300, gotReq.MaxTokens)
	assert.Equal(t, "day", gotReq.SearchRecencyFilter)
	assert.Equal(t, []string{"reuters.com"}, gotReq.SearchDomainFilter)
	assert.Equal(t, "AAPL closed up 1.2% today.", res.Answer)
	assert.Equal(t, []string{"https://example.com/a"}, res.Sources)
}

func TestSearch_EmptyAnswer(t *testing.T) {
	c := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}, rate.NewLimiter(rate.Inf, 1))

	_, err := c.Search(context.Background(), "anything", SearchOptions{})
	assert.Error(t, err)
}

func TestSearch_CancelledWhileQueued(t *testing.T) {
	called := false
	// A zero-burst limiter can never admit the call
	c := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, rate.NewLimiter(rate.Every(time.Hour), 1))

	// Drain the single burst token
	require.NoError(t, c.limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, "anything", SearchOptions{})
	assert.Error(t, err)
	assert.False(t, called, "the API must not be called when the limiter never admits")
}
