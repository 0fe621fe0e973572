// Package symbols provides ticker recognition, validation and
// query-type classification for natural-language financial queries.
package symbols

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aristath/finsight/internal/utils"
)

// tickerPattern matches candidate ticker tokens: 1-5 uppercase letters,
// optionally prefixed with $.
var tickerPattern = regexp.MustCompile(`\$?\b[A-Z]{1,5}\b`)

// knownSymbols is the built-in recognition set. Deployments extend it
// through configuration (FINSIGHT_EXTRA_SYMBOLS).
var knownSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "META", "NVDA", "TSLA",
	"AMD", "INTC", "NFLX", "DIS", "BA", "JPM", "BAC", "GS", "WFC",
	"V", "MA", "PYPL", "SQ", "COIN", "NIO", "RIVN", "LCID", "F", "GM",
	"T", "VZ", "KO", "PEP", "MCD", "SBUX", "NKE", "WMT", "TGT", "COST",
	"XOM", "CVX", "PFE", "JNJ", "MRNA", "UNH", "CRM", "ORCL", "IBM",
	"ADBE", "SHOP", "UBER", "LYFT", "ABNB", "PLTR", "SNOW", "SPOT",
	"SPY", "QQQ", "DIA", "IWM", "VTI", "VOO", "GLD", "SLV", "BTC", "ETH",
}

// aliases maps common company names to tickers. Lookup is on
// normalized query words.
var aliases = map[string]string{
	"apple":      "AAPL",
	"microsoft":  "MSFT",
	"google":     "GOOGL",
	"alphabet":   "GOOGL",
	"amazon":     "AMZN",
	"facebook":   "META",
	"meta":       "META",
	"nvidia":     "NVDA",
	"tesla":      "TSLA",
	"netflix":    "NFLX",
	"disney":     "DIS",
	"boeing":     "BA",
	"visa":       "V",
	"mastercard": "MA",
	"paypal":     "PYPL",
	"coinbase":   "COIN",
	"ford":       "F",
	"walmart":    "WMT",
	"costco":     "COST",
	"exxon":      "XOM",
	"pfizer":     "PFE",
	"moderna":    "MRNA",
	"salesforce": "CRM",
	"oracle":     "ORCL",
	"adobe":      "ADBE",
	"shopify":    "SHOP",
	"uber":       "UBER",
	"airbnb":     "ABNB",
	"palantir":   "PLTR",
	"spotify":    "SPOT",
	"bitcoin":    "BTC",
	"ethereum":   "ETH",
	"starbucks":  "SBUX",
	"nike":       "NKE",
	"intel":      "INTC",
	"amd":        "AMD",
}

// commonWords are uppercase-looking tokens that are never tickers.
// Without this filter, queries like "WHAT IS A GOOD ETF" extract noise.
var commonWords = map[string]bool{
	"A": true, "I": true, "IS": true, "IT": true, "THE": true, "AND": true,
	"OR": true, "TO": true, "OF": true, "IN": true, "ON": true, "AT": true,
	"FOR": true, "WITH": true, "HOW": true, "WHAT": true, "WHY": true,
	"WHO": true, "WHEN": true, "DO": true, "DOES": true, "CAN": true,
	"MY": true, "ME": true, "US": true, "VS": true, "ETF": true,
	"USD": true, "CEO": true, "IPO": true, "PE": true, "EPS": true,
	"AI": true, "UP": true, "NOW": true, "BUY": true, "SELL": true,
	"GOOD": true, "BAD": true, "NEWS": true, "STOCK": true, "PRICE": true,
}

// Registry recognizes and validates ticker symbols.
type Registry struct {
	known   map[string]bool
	aliases map[string]string
}

// NewRegistry creates a registry from the built-in symbol set plus any
// configured extras.
func NewRegistry(extra ...string) *Registry {
	known := make(map[string]bool, len(knownSymbols)+len(extra))
	for _, s := range knownSymbols {
		known[s] = true
	}
	for _, s := range extra {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			known[s] = true
		}
	}

	return &Registry{known: known, aliases: aliases}
}

// IsKnown reports whether a symbol is in the recognition set.
func (r *Registry) IsKnown(symbol string) bool {
	return r.known[strings.ToUpper(symbol)]
}

// Extract returns recognized symbols in discovery order: explicit ticker
// tokens first, then company-name aliases. Duplicates are removed.
func (r *Registry) Extract(query string) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(sym string) {
		if !seen[sym] {
			seen[sym] = true
			result = append(result, sym)
		}
	}

	for _, token := range tickerPattern.FindAllString(query, -1) {
		candidate := strings.TrimPrefix(token, "$")
		if commonWords[candidate] && !strings.HasPrefix(token, "$") {
			continue
		}
		if r.known[candidate] {
			add(candidate)
		}
	}

	for _, word := range utils.Words(query) {
		if sym, ok := r.aliases[word]; ok {
			add(sym)
		}
	}

	return result
}

// ExtractCandidates returns ticker-shaped tokens that are NOT in the
// recognition set. Used to reject unknown symbols early, before any
// provider budget is spent.
func (r *Registry) ExtractCandidates(query string) []string {
	var unknown []string
	for _, token := range tickerPattern.FindAllString(query, -1) {
		if !strings.HasPrefix(token, "$") {
			continue // Only $-prefixed tokens are unambiguous claims
		}
		candidate := strings.TrimPrefix(token, "$")
		if !r.known[candidate] {
			unknown = append(unknown, candidate)
		}
	}
	return unknown
}

// Validate splits symbols into recognized and unrecognized sets.
func (r *Registry) Validate(symbols []string) (valid, invalid []string) {
	for _, s := range symbols {
		if r.IsKnown(s) {
			valid = append(valid, strings.ToUpper(s))
		} else {
			invalid = append(invalid, s)
		}
	}
	return valid, invalid
}

// SortedKey returns a deterministic key fragment for a symbol set.
func SortedKey(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
