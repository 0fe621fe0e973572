package cost

import (
	"github.com/aristath/finsight/internal/domain"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for cost accounting.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base BPE encoding.
// Falls back to a characters/4 estimate when the encoding is
// unavailable (e.g. offline environments).
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter. Never fails: a nil encoding
// just switches to the heuristic estimate.
func NewTokenCounter() *TiktokenCounter {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TiktokenCounter{}
	}
	return &TiktokenCounter{encoding: encoding}
}

// Count returns the token count for a text.
func (c *TiktokenCounter) Count(text string) int {
	if c.encoding == nil {
		return estimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// estimateTokens approximates ~4 characters per token for English text.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// Pricing holds per-million-token provider rates in USD. Point
// estimates derived from published provider pricing; business tunables,
// not protocol.
type Pricing struct {
	QuickInputPerMTok  float64
	QuickOutputPerMTok float64
	FullInputPerMTok   float64
	FullOutputPerMTok  float64
	SearchFee          float64 // Flat per-request search API fee
}

// DefaultPricing returns current published rates for the quick
// (gpt-4o-mini class) and full (gpt-4o class) models.
func DefaultPricing(searchFee float64) Pricing {
	return Pricing{
		QuickInputPerMTok:  0.15,
		QuickOutputPerMTok: 0.60,
		FullInputPerMTok:   2.50,
		FullOutputPerMTok:  10.00,
		SearchFee:          searchFee,
	}
}

// Fixed token point-estimates per route.
const (
	quickTokensIn  = 200
	quickTokensOut = 150
	fullTokensIn   = 800
	fullTokensOut  = 600
)

// EstimateRoute returns the point-estimate cost of executing a route.
func (p Pricing) EstimateRoute(route domain.Route) float64 {
	quick := tokenCost(quickTokensIn, quickTokensOut, p.QuickInputPerMTok, p.QuickOutputPerMTok)
	full := tokenCost(fullTokensIn, fullTokensOut, p.FullInputPerMTok, p.FullOutputPerMTok)

	switch route {
	case domain.RouteCacheHit:
		return 0
	case domain.RouteQuickModel:
		return quick
	case domain.RouteSearchAugmented:
		return quick + p.SearchFee
	case domain.RouteFullPipeline:
		return full + p.SearchFee
	case domain.RouteBatchQueue:
		// Averaged token load plus the batch search discount
		avg := tokenCost(
			(quickTokensIn+fullTokensIn)/2,
			(quickTokensOut+fullTokensOut)/2,
			p.QuickInputPerMTok, p.QuickOutputPerMTok,
		)
		return avg + 0.7*p.SearchFee
	default:
		return full + p.SearchFee
	}
}

// ActualCost computes the true cost of a completed request from
// reported token counts.
func (p Pricing) ActualCost(route domain.Route, usage domain.TokenUsage) float64 {
	var inRate, outRate float64
	switch route {
	case domain.RouteQuickModel, domain.RouteBatchQueue:
		inRate, outRate = p.QuickInputPerMTok, p.QuickOutputPerMTok
	default:
		inRate, outRate = p.FullInputPerMTok, p.FullOutputPerMTok
	}

	cost := tokenCost(usage.PromptTokens, usage.CompletionTokens, inRate, outRate)

	switch route {
	case domain.RouteSearchAugmented, domain.RouteFullPipeline:
		cost += p.SearchFee
	case domain.RouteBatchQueue:
		cost += 0.7 * p.SearchFee
	}
	return cost
}

func tokenCost(tokensIn, tokensOut int, inPerMTok, outPerMTok float64) float64 {
	return float64(tokensIn)*inPerMTok/1e6 + float64(tokensOut)*outPerMTok/1e6
}
