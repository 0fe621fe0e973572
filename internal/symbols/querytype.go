package symbols

import (
	"regexp"

	"github.com/aristath/finsight/internal/domain"
)

// queryTypeRule is one row of the ordered classification table.
// First matching rule wins.
type queryTypeRule struct {
	pattern *regexp.Regexp
	qtype   domain.QueryType
}

var queryTypeRules = []queryTypeRule{
	{regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|against|better than)\b`), domain.QueryTypeComparison},
	{regexp.MustCompile(`(?i)\b(news|headline|announcement|earnings report|report(ed)?)\b`), domain.QueryTypeNews},
	{regexp.MustCompile(`(?i)\b(prices?|quotes?|trading at|worth|cost(ing)?|how much)\b`), domain.QueryTypePrice},
	{regexp.MustCompile(`(?i)\b(analy[sz]e|analysis|outlook|forecast|should i (buy|sell)|valuation|fundamentals|deep dive)\b`), domain.QueryTypeAnalysis},
}

// ClassifyQueryType classifies a query via the ordered rule table.
// Queries matching no rule are general.
func ClassifyQueryType(query string) domain.QueryType {
	for _, rule := range queryTypeRules {
		if rule.pattern.MatchString(query) {
			return rule.qtype
		}
	}
	return domain.QueryTypeGeneral
}

// IsBatchable reports whether a query type tolerates batched, delayed
// execution. Price lookups and news digests batch well; analysis and
// comparisons do not.
func IsBatchable(qtype domain.QueryType) bool {
	return qtype == domain.QueryTypePrice || qtype == domain.QueryTypeNews
}
