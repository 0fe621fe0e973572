package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:           30 * time.Minute,
		SweepInterval: 5 * time.Minute,
		MaxSymbols:    10,
		MaxHistory:    5,
	}
}

func testManager(cfg config.SessionConfig) *Manager {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewManager(cfg, log)
}

func TestGetOrCreate_Lazy(t *testing.T) {
	m := testManager(testConfig())

	assert.Equal(t, 0, m.Count())
	ctx := m.GetOrCreate("s1")
	assert.Equal(t, "s1", ctx.ID)
	assert.Empty(t, ctx.Symbols)
	assert.Equal(t, 1, m.Count())
}

func TestUpdateFromQuery_SymbolRecords(t *testing.T) {
	m := testManager(testConfig())

	u := domain.Understanding{Intent: "price", Symbols: []string{"AAPL"}}
	data := map[string]domain.MarketData{
		"AAPL": {Symbol: "AAPL", Price: 150.0},
	}

	m.UpdateFromQuery("s1", "AAPL price", u, data)
	m.UpdateFromQuery("s1", "AAPL again", u, data)

	ctx := m.GetOrCreate("s1")
	assert.Len(t, ctx.Symbols, 1)
	assert.Equal(t, "AAPL", ctx.Symbols[0].Symbol)
	assert.Equal(t, 2, ctx.Symbols[0].Frequency)
	assert.Equal(t, 150.0, ctx.Symbols[0].LastPrice)
	assert.Equal(t, "AAPL again", ctx.Symbols[0].LastQuery)
}

func TestUpdateFromQuery_SymbolCapMostRecentFirst(t *testing.T) {
	m := testManager(testConfig())

	for i := 0; i < 12; i++ {
		sym := fmt.Sprintf("SYM%d", i)
		u := domain.Understanding{Symbols: []string{sym}}
		m.UpdateFromQuery("s1", sym+" price", u, nil)
		time.Sleep(time.Millisecond)
	}

	ctx := m.GetOrCreate("s1")
	assert.Len(t, ctx.Symbols, 10)
	assert.Equal(t, "SYM11", ctx.Symbols[0].Symbol)
	assert.Equal(t, "SYM2", ctx.Symbols[9].Symbol)
}

func TestUpdateFromQuery_HistoryCap(t *testing.T) {
	m := testManager(testConfig())

	for i := 0; i < 7; i++ {
		q := fmt.Sprintf("query %d", i)
		m.UpdateFromQuery("s1", q, domain.Understanding{Intent: "general"}, nil)
	}

	ctx := m.GetOrCreate("s1")
	assert.Len(t, ctx.History, 5)
	assert.Equal(t, "query 6", ctx.History[0].Query)
	assert.Equal(t, "query 2", ctx.History[4].Query)
}

func TestResolvePronouns(t *testing.T) {
	m := testManager(testConfig())

	m.UpdateFromQuery("s1", "TSLA price", domain.Understanding{Symbols: []string{"TSLA"}}, nil)

	resolved := m.ResolvePronouns("s1", "compare it with NIO")
	assert.Contains(t, resolved, "TSLA")
	assert.NotContains(t, resolved, "it ")

	resolved = m.ResolvePronouns("s1", "how is this stock doing")
	assert.Equal(t, "how is TSLA doing", resolved)
}

func TestResolvePronouns_NoHistory(t *testing.T) {
	m := testManager(testConfig())

	assert.Equal(t, "compare it with NIO", m.ResolvePronouns("fresh", "compare it with NIO"))
}

func TestResolvePronouns_NoPronoun(t *testing.T) {
	m := testManager(testConfig())

	m.UpdateFromQuery("s1", "TSLA price", domain.Understanding{Symbols: []string{"TSLA"}}, nil)
	assert.Equal(t, "AAPL price", m.ResolvePronouns("s1", "AAPL price"))
}

func TestUserLevel_Monotonic(t *testing.T) {
	m := testManager(testConfig())

	m.UpdateFromQuery("s1", "what is the EBITDA margin and free cash flow yield for AAPL", domain.Understanding{}, nil)
	ctx := m.GetOrCreate("s1")
	assert.Equal(t, domain.LevelExpert, ctx.UserLevel)

	// A short query does not downgrade an expert
	m.UpdateFromQuery("s1", "TSLA?", domain.Understanding{}, nil)
	ctx = m.GetOrCreate("s1")
	assert.Equal(t, domain.LevelExpert, ctx.UserLevel)

	// An unambiguous beginner-style question does
	m.UpdateFromQuery("s1", "how do I read a stock chart, explain in simple terms", domain.Understanding{}, nil)
	ctx = m.GetOrCreate("s1")
	assert.Equal(t, domain.LevelBeginner, ctx.UserLevel)
}

func TestContextPrompt(t *testing.T) {
	m := testManager(testConfig())

	assert.Equal(t, "", m.ContextPrompt("fresh"))

	u := domain.Understanding{Intent: "price", Symbols: []string{"AAPL"}}
	m.UpdateFromQuery("s1", "AAPL price", u, nil)
	m.UpdateFromQuery("s1", "AAPL outlook", u, nil)
	m.UpdateFromQuery("s1", "AAPL news", u, nil)

	prompt := m.ContextPrompt("s1")
	assert.Contains(t, prompt, "AAPL")
	assert.Contains(t, prompt, "Most discussed: AAPL")
	assert.Contains(t, prompt, `Previous query: "AAPL news"`)
}

func TestSessionEviction(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 20 * time.Millisecond
	m := testManager(cfg)

	m.GetOrCreate("doomed")
	assert.Equal(t, 1, m.Count())

	// Touch a second session just before its TTL; it must survive the sweep
	m.GetOrCreate("survivor")
	time.Sleep(15 * time.Millisecond)
	m.GetOrCreate("survivor")

	time.Sleep(10 * time.Millisecond)
	m.SweepNow()

	assert.Equal(t, 1, m.Count())
	assert.Equal(t, "", m.MostRecentSymbol("doomed")) // Recreated empty
}
