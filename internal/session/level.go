package session

import (
	"regexp"
	"strings"

	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/utils"
)

var (
	expertTerms = regexp.MustCompile(`(?i)\b(p/e|pe ratio|ebitda|dcf|discounted cash flow|beta|implied volatility|options? chain|derivatives?|yield curve|sharpe|rsi|macd|moving average|market cap|free cash flow|margin expansion|duration risk)\b`)

	beginnerTerms = regexp.MustCompile(`(?i)\b(what is a|what are|how do i|how does|explain|beginner|new to|simple terms|for dummies|getting started)\b`)

	// A bare 1-5 letter token, optionally with trailing punctuation
	bareSymbolQuery = regexp.MustCompile(`^\$?[A-Za-z]{1,5}[?!.]*$`)
)

// levelRank orders expertise for the monotonic-upgrade rule.
var levelRank = map[domain.UserLevel]int{
	domain.LevelBeginner:     1,
	domain.LevelIntermediate: 2,
	domain.LevelExpert:       3,
}

// inferUserLevel re-infers the user level from one query. The level only
// upgrades over a session's lifetime, except when the query is an
// unambiguous beginner-style question.
func inferUserLevel(query string, prior domain.UserLevel) domain.UserLevel {
	inferred := classifyQueryLevel(query)

	if prior == "" {
		return inferred
	}

	// Unambiguous beginner phrasing overrides the monotonic upgrade
	if inferred == domain.LevelBeginner && beginnerTerms.MatchString(query) {
		return domain.LevelBeginner
	}

	if levelRank[inferred] > levelRank[prior] {
		return inferred
	}
	return prior
}

func classifyQueryLevel(query string) domain.UserLevel {
	trimmed := strings.TrimSpace(query)

	// Expert terms beat beginner terms
	if expertTerms.MatchString(trimmed) {
		return domain.LevelExpert
	}
	if len(trimmed) > 100 || len(utils.Words(trimmed)) > 15 {
		return domain.LevelExpert
	}
	if beginnerTerms.MatchString(trimmed) {
		return domain.LevelBeginner
	}
	if len(trimmed) < 20 || bareSymbolQuery.MatchString(trimmed) {
		return domain.LevelBeginner
	}
	return domain.LevelIntermediate
}
