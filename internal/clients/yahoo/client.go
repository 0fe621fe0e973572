// Package yahoo provides a client for Yahoo Finance's chart API, used
// as the direct low-latency market-data source for quotes and daily
// close history.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Quote is a single symbol's market snapshot.
type Quote struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	Volume        int64
	DayHigh       float64
	DayLow        float64
	Timestamp     time.Time
}

// Client is the Yahoo Finance chart API client.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse covers the fields we read from the chart endpoint.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string  `json:"symbol"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote fetches the current market snapshot for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	body, err := c.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, err
	}

	meta := body.Chart.Result[0].Meta
	change := 0.0
	if meta.ChartPreviousClose > 0 {
		change = (meta.RegularMarketPrice - meta.ChartPreviousClose) / meta.ChartPreviousClose * 100
	}

	q := &Quote{
		Symbol:        symbol,
		Price:         meta.RegularMarketPrice,
		ChangePercent: change,
		Volume:        meta.RegularMarketVolume,
		DayHigh:       meta.RegularMarketDayHigh,
		DayLow:        meta.RegularMarketDayLow,
		Timestamp:     time.Unix(meta.RegularMarketTime, 0),
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", q.Price).
		Float64("change_pct", q.ChangePercent).
		Msg("Fetched quote")
	return q, nil
}

// GetHistory fetches daily closes for chart rendering, oldest first.
// Null closes (market holidays, partial sessions) are skipped.
func (c *Client) GetHistory(ctx context.Context, symbol string, days int) ([]float64, error) {
	rng := fmt.Sprintf("%dd", days)
	body, err := c.fetchChart(ctx, symbol, rng, "1d")
	if err != nil {
		return nil, err
	}

	quotes := body.Chart.Result[0].Indicators.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no close series for %s", symbol)
	}

	closes := make([]float64, 0, len(quotes[0].Close))
	for _, p := range quotes[0].Close {
		if p != nil {
			closes = append(closes, *p)
		}
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("empty close series for %s", symbol)
	}
	return closes, nil
}

func (c *Client) fetchChart(ctx context.Context, symbol, rng, interval string) (*chartResponse, error) {
	url := fmt.Sprintf("%s/%s?range=%s&interval=%s", c.baseURL, symbol, rng, interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	// Yahoo rejects requests without a browser-ish user agent
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; finsight/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart API returned status %d for %s", resp.StatusCode, symbol)
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}
	if body.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error for %s: %s", symbol, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart result for %s", symbol)
	}
	return &body, nil
}
