package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/symbols"
	"github.com/aristath/finsight/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		ExactTTL:            30 * time.Second,
		ExactMax:            1000,
		SemanticTTL:         60 * time.Second,
		SemanticMax:         500,
		SymbolTTL:           30 * time.Second,
		SymbolMax:           2000,
		PatternTTL:          300 * time.Second,
		PatternMax:          300,
		SimilarityThreshold: 0.85,
		SemanticScanLimit:   50,
		SweepInterval:       60 * time.Second,
	}
}

// testClock lets tests advance virtual time instead of sleeping.
type testClock struct {
	current time.Time
}

func (tc *testClock) advance(d time.Duration) { tc.current = tc.current.Add(d) }

func newTestCache(cfg config.CacheConfig) (*Cache, *testClock) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	c := New(cfg, symbols.NewRegistry(), log)
	clock := &testClock{current: time.Now()}
	c.now = func() time.Time { return clock.current }
	return c, clock
}

func resultWith(response string, syms ...string) domain.PipelineResult {
	return domain.PipelineResult{Response: response, Symbols: syms}
}

func TestExactTier_HitAndKeyIsolation(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1", UserTier: domain.TierFree}

	c.Set("AAPL price", resultWith("AAPL is trading at $150", "AAPL"), qctx)

	e, tier, ok := c.Get("AAPL price", qctx)
	require.True(t, ok)
	assert.Equal(t, TierExact, tier)
	assert.Equal(t, "AAPL is trading at $150", e.Result.Response)

	// A different session must not hit the exact tier with this key
	other := domain.QueryContext{SessionID: "s2", UserTier: domain.TierFree}
	_, tier, ok = c.Get("AAPL price", other)
	if ok {
		assert.NotEqual(t, TierExact, tier)
	}
}

func TestTTLInvariant_AllTiers(t *testing.T) {
	cfg := testCacheConfig()
	tests := []struct {
		name  string
		query string
		ttl   time.Duration
	}{
		// A long natural query lands in exact+semantic; ticker queries land
		// in exact+symbol+pattern. Expiring past the LONGEST applicable TTL
		// must make every tier miss.
		{"natural", "what do you think about the tech sector today", cfg.SemanticTTL},
		{"ticker", "price of AAPL", cfg.PatternTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock := newTestCache(cfg)
			qctx := domain.QueryContext{SessionID: "s1"}

			c.Set(tt.query, resultWith("a response body long enough to qualify for the pattern tier"), qctx)

			_, _, ok := c.Get(tt.query, qctx)
			require.True(t, ok, "should hit before TTL")

			clock.advance(tt.ttl + time.Millisecond)
			_, _, ok = c.Get(tt.query, qctx)
			assert.False(t, ok, "must miss after TTL + epsilon")
		})
	}
}

func TestTTLInvariant_TierExpiryIsIndependent(t *testing.T) {
	cfg := testCacheConfig()
	c, clock := newTestCache(cfg)
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("price of AAPL", resultWith("AAPL is trading at $150 right now, up slightly today", "AAPL"), qctx)

	// Past exact (30s), symbol (30s) and semantic (60s) but within
	// pattern (300s): the lookup should fall through to the pattern tier.
	clock.advance(cfg.SemanticTTL + time.Second)
	_, tier, ok := c.Get("price of AAPL", qctx)
	require.True(t, ok)
	assert.Equal(t, TierPattern, tier)
}

func TestSemanticTier_SimilarityAndContext(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1", UserTier: domain.TierFree, Symbols: []string{"AAPL"}}

	c.Set("what is the price of AAPL today", resultWith("$150", "AAPL"), qctx)

	// Near-identical wording from another session, compatible context
	similar := domain.QueryContext{SessionID: "s2", UserTier: domain.TierFree, Symbols: []string{"AAPL"}}
	_, tier, ok := c.Get("what is the price of AAPL now today", similar)
	require.True(t, ok)
	assert.Equal(t, TierSemantic, tier)

	// Disjoint symbol sets are incompatible; falls through to symbol tier
	disjoint := domain.QueryContext{SessionID: "s3", UserTier: domain.TierFree, Symbols: []string{"TSLA"}}
	_, tier, ok = c.Get("what is the price of AAPL now today", disjoint)
	if ok {
		assert.NotEqual(t, TierSemantic, tier)
	}

	// Dissimilar wording misses the semantic tier entirely
	_, tier, ok = c.Get("tell me something interesting about markets", similar)
	if ok {
		assert.NotEqual(t, TierSemantic, tier)
	}
}

func TestSymbolTier_HitByQueryType(t *testing.T) {
	c, clock := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("AAPL price", resultWith("$150", "AAPL"), qctx)

	// Different phrasing, same symbol and query type, different session.
	// Exact misses (different normalized key), semantic misses (too short),
	// symbol tier hits on AAPL_price.
	other := domain.QueryContext{SessionID: "s2"}
	clock.advance(time.Second)
	_, tier, ok := c.Get("how much is AAPL worth", other)
	require.True(t, ok)
	assert.Equal(t, TierSymbol, tier)

	// An analysis query for the same symbol has a different symbol key
	_, tier, ok = c.Get("should I buy AAPL", other)
	if ok {
		assert.NotEqual(t, TierSymbol, tier)
	}
}

func TestPatternTier_SymbolSubstitution(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("price of AAPL", resultWith("AAPL is currently trading at $150.25, up 1.2% on the day", "AAPL"), qctx)

	_, _, ok := c.Get("price of MSFT", domain.QueryContext{SessionID: "s2"})
	require.True(t, ok)

	e, tier, ok := c.Get("price of MSFT", domain.QueryContext{SessionID: "s3"})
	require.True(t, ok)
	assert.Equal(t, TierPattern, tier)
	assert.Contains(t, e.Result.Response, "MSFT")
	assert.NotContains(t, e.Result.Response, "AAPL")
	assert.Equal(t, []string{"MSFT"}, e.Symbols)
}

func TestPatternTier_ResponseLengthGate(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	// Too short for the pattern tier
	c.Set("price of AAPL", resultWith("$150", "AAPL"), qctx)

	_, tier, ok := c.Get("price of MSFT", domain.QueryContext{SessionID: "s2"})
	if ok {
		assert.NotEqual(t, TierPattern, tier)
	}
}

func TestTierIndependence(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	// Qualifies for exact, semantic and symbol tiers
	c.Set("what is the price of AAPL today", resultWith("$150", "AAPL"), qctx)

	stats := c.GetStats()
	require.Equal(t, 1, stats.ExactSize)
	require.Equal(t, 1, stats.SemanticSize)
	require.Equal(t, 1, stats.SymbolSize)

	// Deleting from the exact tier must not touch the others
	c.mu.Lock()
	for k := range c.exact {
		delete(c.exact, k)
	}
	c.mu.Unlock()

	stats = c.GetStats()
	assert.Equal(t, 0, stats.ExactSize)
	assert.Equal(t, 1, stats.SemanticSize)
	assert.Equal(t, 1, stats.SymbolSize)
}

func TestEviction_OldestTenPercent(t *testing.T) {
	cfg := testCacheConfig()
	cfg.ExactMax = 10
	c, clock := newTestCache(cfg)

	for i := 0; i < 10; i++ {
		qctx := domain.QueryContext{SessionID: fmt.Sprintf("s%d", i)}
		c.Set("hello", resultWith("hi"), qctx)
		clock.advance(time.Millisecond)
	}
	require.Equal(t, 10, c.GetStats().ExactSize)

	// At capacity: the next insert evicts the oldest entry first
	c.Set("hello", resultWith("hi"), domain.QueryContext{SessionID: "s10"})
	stats := c.GetStats()
	assert.Equal(t, 10, stats.ExactSize)

	_, _, ok := c.Get("hello", domain.QueryContext{SessionID: "s0"})
	assert.False(t, ok, "oldest entry should have been evicted")
	_, _, ok = c.Get("hello", domain.QueryContext{SessionID: "s10"})
	assert.True(t, ok)
}

func TestFlush_EmptiesAllTiers(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("price of AAPL", resultWith("AAPL is currently trading at $150.25, up 1.2% on the day", "AAPL"), qctx)
	c.Set("what is the outlook for TSLA this quarter", resultWith("mixed"), qctx)

	c.Flush()

	stats := c.GetStats()
	assert.Equal(t, 0, stats.ExactSize)
	assert.Equal(t, 0, stats.SemanticSize)
	assert.Equal(t, 0, stats.SymbolSize)
	assert.Equal(t, 0, stats.PatternSize)
	assert.Equal(t, int64(1), stats.Flushes)
}

func TestSweep_RemovesExpiredOnly(t *testing.T) {
	cfg := testCacheConfig()
	c, clock := newTestCache(cfg)
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("AAPL price", resultWith("$150", "AAPL"), qctx)
	clock.advance(cfg.ExactTTL + time.Second) // Past exact+symbol, not semantic
	c.Set("what is the price of TSLA today", resultWith("$240", "TSLA"), qctx)

	c.Sweep()

	stats := c.GetStats()
	assert.Equal(t, 1, stats.ExactSize)    // Only the TSLA entry survives
	assert.Equal(t, 1, stats.SymbolSize)   // Expired AAPL_price removed
	assert.Equal(t, 1, stats.SemanticSize) // TSLA query qualifies
}

func TestSemanticGate_ShortAndBareQueriesExcluded(t *testing.T) {
	c, _ := newTestCache(testCacheConfig())
	qctx := domain.QueryContext{SessionID: "s1"}

	c.Set("AAPL?", resultWith("$150", "AAPL"), qctx)
	c.Set("hi", resultWith("hello"), qctx)

	assert.Equal(t, 0, c.GetStats().SemanticSize)
}
