package cache

import "regexp"

// patternTemplate is one row of the ordered template table for the
// pattern tier. First matching template wins.
type patternTemplate struct {
	id      string
	pattern *regexp.Regexp
}

var patternTemplates = []patternTemplate{
	{"price_of", regexp.MustCompile(`(?i)^(?:what(?:'s| is) )?(?:the )?price of \$?\w+\??$`)},
	{"sym_price", regexp.MustCompile(`(?i)^\$?\w+ (?:stock )?price\??$`)},
	{"about", regexp.MustCompile(`(?i)^(?:tell me )?about \$?\w+\??$`)},
	{"compare", regexp.MustCompile(`(?i)^compare \$?\w+ (?:and|with|to|vs\.?) \$?\w+\??$`)},
	{"how_doing", regexp.MustCompile(`(?i)^how(?:'s| is) \$?\w+ doing(?: today)?\??$`)},
}

// matchPattern classifies a query into one of the fixed templates.
func matchPattern(query string) (string, bool) {
	for _, t := range patternTemplates {
		if t.pattern.MatchString(query) {
			return t.id, true
		}
	}
	return "", false
}
