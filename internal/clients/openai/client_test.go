package openai

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewClient(t *testing.T) {
	c := NewClient("test-key", "gpt-4o", "gpt-4o-mini", zerolog.Nop())

	assert.NotNil(t, c)
	assert.Equal(t, "gpt-4o", c.model)
	assert.Equal(t, "gpt-4o-mini", c.quickModel)
	assert.Equal(t, 2, c.maxRetries)
}

func TestParseSymbolList(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"plain list", "AAPL, MSFT, TSLA", []string{"AAPL", "MSFT", "TSLA"}},
		{"none sentinel", "NONE", nil},
		{"empty", "   ", nil},
		{"dollar prefixes", "$NVDA, $AMD", []string{"NVDA", "AMD"}},
		{"lowercase normalized", "aapl, msft", []string{"AAPL", "MSFT"}},
		{"junk dropped", "AAPL, the company, TOOLONGG", []string{"AAPL"}},
		{"duplicates collapsed", "AAPL, AAPL, MSFT", []string{"AAPL", "MSFT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSymbolList(tt.content))
		})
	}
}
