package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/finsight/internal/clients/perplexity"
	"github.com/aristath/finsight/internal/domain"
	"golang.org/x/sync/errgroup"
)

// fetchAll fetches market data for every symbol in parallel chunks.
// Individual failures degrade to per-symbol placeholders; the second
// return value reports whether any placeholder was produced. The only
// error it returns is contamination, which must abort the query.
func (o *Orchestrator) fetchAll(ctx context.Context, query string, u domain.Understanding) (map[string]domain.MarketData, bool, error) {
	timeout := o.cfg.AnalysisTimeout
	if u.QueryType == domain.QueryTypePrice {
		timeout = o.cfg.PriceTimeout
	}

	// A single-symbol price query earns the direct low-latency path
	// before the heavier search pipeline.
	directFirst := u.QueryType == domain.QueryTypePrice && len(u.Symbols) == 1

	data := make(map[string]domain.MarketData, len(u.Symbols))
	degraded := false
	var mu sync.Mutex

	chunkSize := o.cfg.ChunkSize
	if chunkSize < 1 {
		chunkSize = 1
	}

	for start := 0; start < len(u.Symbols); start += chunkSize {
		end := start + chunkSize
		if end > len(u.Symbols) {
			end = len(u.Symbols)
		}

		g := new(errgroup.Group)
		for _, sym := range u.Symbols[start:end] {
			sym := sym
			g.Go(func() error {
				md, err := o.fetchOne(ctx, query, sym, u, timeout, directFirst)
				if err != nil {
					return err
				}
				mu.Lock()
				data[sym] = md
				if md.Degraded {
					degraded = true
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, false, err
		}
	}

	return data, degraded, nil
}

// fetchOne walks the source chain for one symbol: direct (for simple
// price queries), search-augmented, direct again, secondary direct,
// then a clearly-marked placeholder. Ordinary failures never fail the
// query; a contamination marker in fetched content does.
func (o *Orchestrator) fetchOne(ctx context.Context, query, sym string, u domain.Understanding, timeout time.Duration, directFirst bool) (domain.MarketData, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if directFirst {
		if md, err := o.directQuote(ctx, o.deps.Primary, sym); err == nil {
			return md, nil
		} else if err != errNoProvider {
			o.log.Warn().Err(err).Str("symbol", sym).Msg("Direct fetch failed, trying search path")
		}
	}

	if md, err := o.searchQuote(ctx, query, sym, u); err == nil {
		return md, nil
	} else if errors.Is(err, errContaminated) {
		// Tainted content is never a fallback case. Abort so every
		// cache tier gets flushed before anything is served.
		return domain.MarketData{}, err
	} else if err != errNoProvider {
		o.log.Warn().Err(err).Str("symbol", sym).Msg("Search fetch failed")
	}

	if !directFirst {
		if md, err := o.directQuote(ctx, o.deps.Primary, sym); err == nil {
			return md, nil
		}
	}

	if md, err := o.directQuote(ctx, o.deps.Secondary, sym); err == nil {
		o.log.Info().Str("symbol", sym).Msg("Served from secondary data source")
		return md, nil
	}

	o.log.Warn().Str("symbol", sym).Msg("All data sources failed, returning placeholder")
	return domain.MarketData{
		Symbol:    sym,
		Source:    "placeholder",
		Degraded:  true,
		Note:      "data temporarily unavailable",
		Timestamp: time.Now(),
	}, nil
}

var (
	errNoProvider   = errors.New("provider not configured")
	errContaminated = errors.New("contamination marker in fetched content")
)

func (o *Orchestrator) directQuote(ctx context.Context, provider MarketDataProvider, sym string) (domain.MarketData, error) {
	if provider == nil {
		return domain.MarketData{}, errNoProvider
	}
	md, err := provider.Quote(ctx, sym)
	if err != nil {
		return domain.MarketData{}, err
	}
	if md.Price <= 0 {
		return domain.MarketData{}, fmt.Errorf("suspicious quote for %s: price %.4f", sym, md.Price)
	}
	return md, nil
}

func (o *Orchestrator) searchQuote(ctx context.Context, query, sym string, u domain.Understanding) (domain.MarketData, error) {
	if o.deps.Search == nil {
		return domain.MarketData{}, errNoProvider
	}

	prompt := fmt.Sprintf("Current market data and context for %s relevant to: %s", sym, query)
	maxTokens := 500
	if u.QueryType == domain.QueryTypePrice {
		prompt = fmt.Sprintf("Current price, percent change and volume for %s today", sym)
		maxTokens = 300
	}

	res, err := o.deps.Search.Search(ctx, prompt, perplexity.SearchOptions{
		MaxTokens:     maxTokens,
		RecencyFilter: "day",
	})
	if err != nil {
		return domain.MarketData{}, err
	}
	if isContaminated(res.Answer) {
		return domain.MarketData{}, fmt.Errorf("search answer for %s: %w", sym, errContaminated)
	}

	return domain.MarketData{
		Symbol:    sym,
		Source:    "search",
		Summary:   res.Answer,
		Timestamp: time.Now(),
	}, nil
}
