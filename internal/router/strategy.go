package router

import (
	"context"
	"strings"

	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/utils"
)

// Input carries everything a routing strategy may consult.
type Input struct {
	Query      string
	Normalized string
	SessionID  string
	Recent     []string // Most recent queries, newest first
	Load       string   // System load digest for the model prompt
}

// Strategy produces a route decision for a query. The boolean reports
// whether the strategy was conclusive; an inconclusive strategy defers
// to the next one in the cascade.
type Strategy interface {
	Decide(ctx context.Context, in Input) (domain.RouteDecision, bool)
}

// RuleBasedRouter decides from the fixed pattern-family table alone.
type RuleBasedRouter struct{}

// Decide matches the query against the pattern families. Inconclusive
// when no family matches.
func (RuleBasedRouter) Decide(_ context.Context, in Input) (domain.RouteDecision, bool) {
	f, ok := matchFamily(in.Query)
	if !ok {
		return domain.RouteDecision{}, false
	}
	return domain.RouteDecision{
		Route:      f.route,
		Reasoning:  "matched pattern family " + f.name,
		Confidence: f.confidence,
		Method:     domain.MethodPattern,
	}, true
}

// heuristicDecision is the last-resort length/punctuation rule: short
// queries go to the quick model, short question-shaped queries to the
// search path, everything else to the full pipeline.
func heuristicDecision(query string, method domain.RouteMethod) domain.RouteDecision {
	words := len(utils.Words(query))
	switch {
	case words < 6:
		return domain.RouteDecision{
			Route:      domain.RouteQuickModel,
			Reasoning:  "short query",
			Confidence: 0.6,
			Method:     method,
		}
	case words < 12 && strings.Contains(query, "?"):
		return domain.RouteDecision{
			Route:      domain.RouteSearchAugmented,
			Reasoning:  "short question-shaped query",
			Confidence: 0.55,
			Method:     method,
		}
	default:
		return domain.RouteDecision{
			Route:      domain.RouteFullPipeline,
			Reasoning:  "long or open-ended query",
			Confidence: 0.5,
			Method:     method,
		}
	}
}
