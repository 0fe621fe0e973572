package symbols

import (
	"testing"

	"github.com/aristath/finsight/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestExtract_Tickers(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"AAPL"}, r.Extract("What is the AAPL price?"))
	assert.Equal(t, []string{"TSLA", "NIO"}, r.Extract("compare TSLA and NIO"))
	assert.Equal(t, []string{"NVDA"}, r.Extract("$NVDA earnings"))
}

func TestExtract_Aliases(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"AAPL"}, r.Extract("how is apple doing today"))
	assert.Equal(t, []string{"TSLA"}, r.Extract("tell me about Tesla"))
}

func TestExtract_IgnoresCommonWords(t *testing.T) {
	r := NewRegistry()

	assert.Empty(t, r.Extract("WHAT IS A GOOD STOCK TO BUY NOW"))
}

func TestExtract_Deduplicates(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, []string{"AAPL"}, r.Extract("AAPL AAPL apple"))
}

func TestNewRegistry_ExtraSymbols(t *testing.T) {
	r := NewRegistry("brk.b", " IONQ ", "")

	assert.True(t, r.IsKnown("BRK.B"))
	assert.True(t, r.IsKnown("IONQ"))
	assert.True(t, r.IsKnown("AAPL"), "built-in set survives extras")
	assert.False(t, NewRegistry().IsKnown("IONQ"))
}

func TestValidate(t *testing.T) {
	r := NewRegistry()

	valid, invalid := r.Validate([]string{"aapl", "ZZZZZ", "TSLA"})
	assert.Equal(t, []string{"AAPL", "TSLA"}, valid)
	assert.Equal(t, []string{"ZZZZZ"}, invalid)
}

func TestClassifyQueryType(t *testing.T) {
	tests := []struct {
		query string
		want  domain.QueryType
	}{
		{"AAPL price", domain.QueryTypePrice},
		{"how much is tesla worth", domain.QueryTypePrice},
		{"compare AAPL and MSFT", domain.QueryTypeComparison},
		{"TSLA vs NIO", domain.QueryTypeComparison},
		{"latest news on NVDA", domain.QueryTypeNews},
		{"should I buy AMZN", domain.QueryTypeAnalysis},
		{"deep dive on META fundamentals", domain.QueryTypeAnalysis},
		{"hello there", domain.QueryTypeGeneral},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyQueryType(tt.query), tt.query)
	}
}

func TestIsBatchable(t *testing.T) {
	assert.True(t, IsBatchable(domain.QueryTypePrice))
	assert.True(t, IsBatchable(domain.QueryTypeNews))
	assert.False(t, IsBatchable(domain.QueryTypeAnalysis))
	assert.False(t, IsBatchable(domain.QueryTypeComparison))
	assert.False(t, IsBatchable(domain.QueryTypeGeneral))
}

func TestSortedKey(t *testing.T) {
	assert.Equal(t, "AAPL,TSLA", SortedKey([]string{"TSLA", "AAPL"}))
	assert.Equal(t, "", SortedKey(nil))
}
