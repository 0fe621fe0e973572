package stooq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixtureClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(zerolog.Nop())
	c.baseURL = srv.URL
	return c
}

func TestGetQuote(t *testing.T) {
	c := newFixtureClient(t, "Symbol,Date,Time,Open,High,Low,Close,Volume\nAAPL.US,2024-03-01,22:00:00,148.00,151.00,147.80,150.25,52000000\n")

	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 150.25, q.Price)
	assert.InDelta(t, (150.25-148.00)/148.00*100, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(52000000), q.Volume)
	assert.Equal(t, 151.00, q.DayHigh)
	assert.Equal(t, 147.80, q.DayLow)
}

func TestGetQuote_UnknownSymbol(t *testing.T) {
	c := newFixtureClient(t, "Symbol,Date,Time,Open,High,Low,Close,Volume\nZZZZZ.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n")

	_, err := c.GetQuote(context.Background(), "ZZZZZ")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestGetQuote_MalformedCSV(t *testing.T) {
	c := newFixtureClient(t, "Symbol,Date\nAAPL.US,2024-03-01\n")

	_, err := c.GetQuote(context.Background(), "AAPL")
	assert.Error(t, err)
}
