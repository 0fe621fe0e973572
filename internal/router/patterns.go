package router

import (
	"regexp"

	"github.com/aristath/finsight/internal/domain"
)

// patternFamily is one fixed rule family: a set of regexes that map a
// query shape to a route with a fixed confidence. Families are ordered;
// the first family with a matching regex wins.
type patternFamily struct {
	name       string
	route      domain.Route
	confidence float64
	patterns   []*regexp.Regexp
}

var patternFamilies = []patternFamily{
	{
		name:       "simple_price",
		route:      domain.RouteQuickModel,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\$?[a-z]{1,5}\s+(price|quote)\??$`),
			regexp.MustCompile(`(?i)^(price|quote)\s+(of|for)\s+\$?[a-z]{1,5}\??$`),
			regexp.MustCompile(`(?i)^what('?s| is)\s+\$?[a-z]{1,5}\s+(trading at|at|worth)\??$`),
			regexp.MustCompile(`(?i)^how much is\s+\$?[a-z]{1,5}( worth| stock)?\??$`),
		},
	},
	{
		name:       "basic_info",
		route:      domain.RouteQuickModel,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(what|who) is\s+\$?[a-z]{1,5}\??$`),
			regexp.MustCompile(`(?i)^tell me about\s+\$?[a-z]{1,5}$`),
			regexp.MustCompile(`(?i)\b(market cap|ticker symbol|what sector|what industry)\b`),
			regexp.MustCompile(`(?i)^(what does|explain)\s+.{1,40}\s+(mean|do)\??$`),
		},
	},
	{
		name:       "research",
		route:      domain.RouteSearchAugmented,
		confidence: 0.85,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(news|latest|recent|today'?s)\b.*\b(about|on|for)\b`),
			regexp.MustCompile(`(?i)\b(announce|announcement|headline|press release)\b`),
			regexp.MustCompile(`(?i)\b(earnings|quarterly report|guidance)\b`),
			regexp.MustCompile(`(?i)\bwhat('?s| is) happening (with|to)\b`),
		},
	},
	{
		name:       "complex_analysis",
		route:      domain.RouteFullPipeline,
		confidence: 0.9,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(analy[sz]e|analysis|deep dive|thorough)\b`),
			regexp.MustCompile(`(?i)\bshould i (buy|sell|hold)\b`),
			regexp.MustCompile(`(?i)\b(compare|versus|vs\.?)\b`),
			regexp.MustCompile(`(?i)\b(outlook|forecast|predict|projection|valuation)\b`),
			regexp.MustCompile(`(?i)\b(portfolio|diversif|allocation|rebalance)\b`),
		},
	},
	{
		name:       "batchable",
		route:      domain.RouteBatchQueue,
		confidence: 0.7,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(\$?[a-z]{1,5}\s*,\s*)+\$?[a-z]{1,5}\s+(price|quote)s?\??$`),
			regexp.MustCompile(`(?i)^(price|quote)s?\s+(of|for)\s+(\$?[a-z]{1,5}\s*,?\s*(and\s+)?)+\??$`),
		},
	},
}

// matchFamily returns the first pattern family matching the query.
func matchFamily(query string) (patternFamily, bool) {
	for _, f := range patternFamilies {
		for _, p := range f.patterns {
			if p.MatchString(query) {
				return f, true
			}
		}
	}
	return patternFamily{}, false
}
