package yahoo

import (
	"context"

	"github.com/aristath/finsight/internal/domain"
)

// Adapter converts Yahoo quotes into the domain market-data shape
// consumed by the pipeline.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a Yahoo client.
func NewAdapter(c *Client) *Adapter {
	return &Adapter{client: c}
}

// Quote fetches and converts a market snapshot.
func (a *Adapter) Quote(ctx context.Context, symbol string) (domain.MarketData, error) {
	q, err := a.client.GetQuote(ctx, symbol)
	if err != nil {
		return domain.MarketData{}, err
	}
	return domain.MarketData{
		Symbol:        q.Symbol,
		Price:         q.Price,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		DayHigh:       q.DayHigh,
		DayLow:        q.DayLow,
		Timestamp:     q.Timestamp,
		Source:        "yahoo",
	}, nil
}

// History fetches daily closes for chart rendering.
func (a *Adapter) History(ctx context.Context, symbol string, days int) ([]float64, error) {
	return a.client.GetHistory(ctx, symbol, days)
}
