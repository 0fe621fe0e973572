package orchestrator

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aristath/finsight/internal/domain"
	"github.com/markcheno/go-talib"
)

const historyDays = 90

// chartRule is one row of the ordered chart-decision table. The first
// matching rule wins; explicit keywords outrank intent rules, which
// outrank the no-symbols default.
type chartRule struct {
	name    string
	matches func(query string, r *domain.PipelineResult) (bool, bool) // applies, show
}

var explicitChartWords = regexp.MustCompile(`(?i)\b(chart|graph|plot|visuali[sz]e|candlestick)\b`)

var chartRules = []chartRule{
	{
		name: "explicit_keyword",
		matches: func(query string, r *domain.PipelineResult) (bool, bool) {
			if explicitChartWords.MatchString(query) {
				return true, len(r.Symbols) > 0
			}
			return false, false
		},
	},
	{
		name: "no_symbols",
		matches: func(_ string, r *domain.PipelineResult) (bool, bool) {
			if len(r.Symbols) == 0 {
				return true, false
			}
			return false, false
		},
	},
	{
		name: "intent",
		matches: func(_ string, r *domain.PipelineResult) (bool, bool) {
			switch r.Understanding.QueryType {
			case domain.QueryTypePrice, domain.QueryTypeComparison, domain.QueryTypeAnalysis:
				return true, len(r.Data) > 0
			}
			return false, false
		},
	},
}

// assemble fills in the presentation fields: chart decision and data,
// suggestions. Chart failures degrade to no chart.
func (o *Orchestrator) assemble(ctx context.Context, r *domain.PipelineResult, query string) {
	for _, rule := range chartRules {
		applies, show := rule.matches(query, r)
		if applies {
			r.ShowChart = show
			break
		}
	}

	if r.ShowChart {
		r.ChartData = o.buildChartData(ctx, r.Symbols[0])
		if r.ChartData == nil {
			r.ShowChart = false
		}
	}

	r.Suggestions = suggestions(r.Understanding, r.Symbols)
}

// buildChartData fetches close history and computes indicator overlays.
// Returns nil when history is unavailable or too short to chart.
func (o *Orchestrator) buildChartData(ctx context.Context, symbol string) *domain.ChartData {
	if o.deps.History == nil {
		return nil
	}

	closes, err := o.deps.History.History(ctx, symbol, historyDays)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("History fetch failed, skipping chart")
		return nil
	}
	if len(closes) < 2 {
		return nil
	}

	chart := &domain.ChartData{Symbol: symbol, Closes: closes}
	if len(closes) >= 20 {
		chart.SMA20 = talib.Sma(closes, 20)
	}
	if len(closes) >= 50 {
		chart.EMA50 = talib.Ema(closes, 50)
	}
	return chart
}

// suggestions proposes follow-up queries based on what was just asked.
func suggestions(u domain.Understanding, syms []string) []string {
	if len(syms) == 0 {
		return []string{
			"What's the price of AAPL?",
			"Latest news about NVDA",
			"Compare MSFT and GOOGL",
		}
	}

	sym := syms[0]
	switch u.QueryType {
	case domain.QueryTypePrice:
		return []string{
			fmt.Sprintf("Latest news about %s", sym),
			fmt.Sprintf("Analyze %s", sym),
			fmt.Sprintf("Show me a chart of %s", sym),
		}
	case domain.QueryTypeNews:
		return []string{
			fmt.Sprintf("%s price", sym),
			fmt.Sprintf("Should I be watching %s?", sym),
		}
	case domain.QueryTypeComparison:
		return []string{
			fmt.Sprintf("Analyze %s", sym),
			fmt.Sprintf("Latest news about %s", sym),
		}
	default:
		return []string{
			fmt.Sprintf("%s price", sym),
			fmt.Sprintf("Latest news about %s", sym),
		}
	}
}
