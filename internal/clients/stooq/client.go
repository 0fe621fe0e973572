// Package stooq provides a client for stooq.com's CSV quote endpoint,
// used as the secondary direct data source when Yahoo fails.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://stooq.com/q/l/"

// Quote is a single symbol's snapshot from the CSV endpoint.
type Quote struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	Volume        int64
	DayHigh       float64
	DayLow        float64
	Timestamp     time.Time
}

// Client is the stooq CSV quote client.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a stooq client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log.With().Str("client", "stooq").Logger(),
	}
}

// GetQuote fetches the latest daily quote for a US symbol.
// Format: symbol,date,time,open,high,low,close,volume.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	url := fmt.Sprintf("%s?s=%s.us&f=sd2t2ohlcv&h&e=csv", c.baseURL, strings.ToLower(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API returned status %d for %s", resp.StatusCode, symbol)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV response: %w", err)
	}
	if len(records) < 2 || len(records[1]) < 8 {
		return nil, fmt.Errorf("unexpected CSV shape for %s", symbol)
	}

	q, err := parseRow(symbol, records[1])
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", q.Price).
		Msg("Fetched fallback quote")
	return q, nil
}

// parseRow converts one CSV data row. Stooq reports "N/D" for every
// field of an unknown symbol.
func parseRow(symbol string, row []string) (*Quote, error) {
	if strings.EqualFold(row[3], "N/D") || strings.EqualFold(row[6], "N/D") {
		return nil, fmt.Errorf("no data for %s", symbol)
	}

	open, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return nil, fmt.Errorf("bad open for %s: %w", symbol, err)
	}
	high, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return nil, fmt.Errorf("bad high for %s: %w", symbol, err)
	}
	low, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return nil, fmt.Errorf("bad low for %s: %w", symbol, err)
	}
	closePx, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return nil, fmt.Errorf("bad close for %s: %w", symbol, err)
	}

	var volume int64
	if v, err := strconv.ParseInt(row[7], 10, 64); err == nil {
		volume = v
	}

	change := 0.0
	if open > 0 {
		change = (closePx - open) / open * 100
	}

	ts := time.Now()
	if t, err := time.Parse("2006-01-02 15:04:05", row[1]+" "+row[2]); err == nil {
		ts = t
	}

	return &Quote{
		Symbol:        symbol,
		Price:         closePx,
		ChangePercent: change,
		Volume:        volume,
		DayHigh:       high,
		DayLow:        low,
		Timestamp:     ts,
	}, nil
}
