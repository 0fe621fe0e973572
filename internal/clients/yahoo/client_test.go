package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartFixture = `{
	"chart": {
		"result": [{
			"meta": {
				"symbol": "AAPL",
				"regularMarketPrice": 150.25,
				"chartPreviousClose": 148.50,
				"regularMarketDayHigh": 151.00,
				"regularMarketDayLow": 147.80,
				"regularMarketVolume": 52000000,
				"regularMarketTime": 1700000000
			},
			"indicators": {
				"quote": [{"close": [148.1, null, 149.3, 150.25]}]
			}
		}],
		"error": null
	}
}`

func newFixtureClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(zerolog.Nop())
	c.baseURL = srv.URL
	return c, srv
}

func TestGetQuote(t *testing.T) {
	c, _ := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartFixture))
	})

	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 150.25, q.Price)
	assert.InDelta(t, (150.25-148.50)/148.50*100, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(52000000), q.Volume)
	assert.Equal(t, 151.00, q.DayHigh)
	assert.Equal(t, 147.80, q.DayLow)
}

func TestGetHistory_SkipsNullCloses(t *testing.T) {
	c, _ := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartFixture))
	})

	closes, err := c.GetHistory(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.Equal(t, []float64{148.1, 149.3, 150.25}, closes)
}

func TestGetQuote_APIError(t *testing.T) {
	c, _ := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})

	_, err := c.GetQuote(context.Background(), "ZZZZZ")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestGetQuote_HTTPError(t *testing.T) {
	c, _ := newFixtureClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetQuote(context.Background(), "AAPL")
	assert.Error(t, err)
}
