package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// One in-memory database per test; closed (and dropped) on cleanup
	name := strings.ReplaceAll(t.Name(), "/", "_")
	s, err := NewStore("file:"+name+"?mode=memory&cache=shared", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, Record{QueryID: "q1", SessionID: "s1", QueryType: "price", Route: "QUICK_MODEL", Method: "pattern", Confidence: 0.9, Cost: 0.001, LatencyMs: 800})
	s.Record(ctx, Record{QueryID: "q2", SessionID: "s1", QueryType: "price", Route: "CACHE_HIT", Method: "cache", Confidence: 0.95, Cost: 0, LatencyMs: 40, CacheTier: "exact"})
	s.Record(ctx, Record{QueryID: "q3", SessionID: "s2", QueryType: "analysis", Route: "FULL_PIPELINE", Method: "llm", Confidence: 0.8, Cost: 0.013, LatencyMs: 5100, Degraded: true})

	sum, err := s.GetSummary(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), sum.TotalQueries)
	assert.InDelta(t, 0.014, sum.TotalCost, 1e-9)
	assert.Equal(t, int64(1), sum.CacheHits)
	assert.Equal(t, int64(1), sum.Degraded)
	assert.Equal(t, int64(1), sum.ByRoute["QUICK_MODEL"])
	assert.InDelta(t, float64(800+40+5100)/3, sum.AvgLatencyMs, 1e-6)
}

func TestRecord_DuplicateIDIsSwallowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, Record{QueryID: "dup", SessionID: "s1", QueryType: "price", Route: "QUICK_MODEL", Method: "pattern"})
	s.Record(ctx, Record{QueryID: "dup", SessionID: "s1", QueryType: "price", Route: "QUICK_MODEL", Method: "pattern"})

	sum, err := s.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalQueries)
}

func TestPurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	s.Record(ctx, Record{QueryID: "old", SessionID: "s1", QueryType: "price", Route: "QUICK_MODEL", Method: "pattern", CreatedAt: old})
	s.Record(ctx, Record{QueryID: "new", SessionID: "s1", QueryType: "price", Route: "QUICK_MODEL", Method: "pattern"})

	purged, err := s.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	sum, err := s.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalQueries)
}
