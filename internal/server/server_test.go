package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finsight/internal/analytics"
	"github.com/aristath/finsight/internal/cache"
	"github.com/aristath/finsight/internal/cost"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/router"
)

type stubHandler struct {
	lastQuery   string
	lastSession string
	lastTier    domain.UserTier
	result      domain.PipelineResult
}

func (h *stubHandler) Handle(_ context.Context, query, sessionID string, tier domain.UserTier) domain.PipelineResult {
	h.lastQuery = query
	h.lastSession = sessionID
	h.lastTier = tier
	return h.result
}

type stubCacheStats struct{}

func (stubCacheStats) GetStats() cache.Stats { return cache.Stats{} }

type stubRouterStats struct{}

func (stubRouterStats) GetStats() router.StatsSummary {
	return router.StatsSummary{Decisions: 7}
}

type stubBudgetStats struct{}

func (stubBudgetStats) GetSummary() cost.Summary { return cost.Summary{} }

type stubQuerySummary struct {
	summary analytics.Summary
	err     error
}

func (s stubQuerySummary) GetSummary(context.Context) (analytics.Summary, error) {
	return s.summary, s.err
}

type stubSessions struct{ n int }

func (s stubSessions) Count() int { return s.n }

type stubLoad struct{}

func (stubLoad) Snapshot() router.LoadSnapshot {
	return router.LoadSnapshot{Load1: 0.5, Load5: 0.4, MemUsedPercent: 42}
}

func newTestServer(h *stubHandler, summary stubQuerySummary) *Server {
	return New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		Handler:   h,
		Cache:     stubCacheStats{},
		Router:    stubRouterStats{},
		Budget:    stubBudgetStats{},
		Analytics: summary,
		Sessions:  stubSessions{n: 3},
		Load:      stubLoad{},
	})
}

func TestHandleQuery(t *testing.T) {
	h := &stubHandler{result: domain.PipelineResult{
		Response: "AAPL is at $150.00 (+1.20% today).",
		Route:    domain.RouteQuickModel,
		Symbols:  []string{"AAPL"},
	}}
	s := newTestServer(h, stubQuerySummary{})

	body := `{"query":"AAPL price","session_id":"sess-1","tier":"premium"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL price", h.lastQuery)
	assert.Equal(t, "sess-1", h.lastSession)
	assert.Equal(t, domain.TierPremium, h.lastTier)

	var result domain.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "AAPL is at $150.00 (+1.20% today).", result.Response)
	assert.Equal(t, domain.RouteQuickModel, result.Route)
}

func TestHandleQueryGeneratesSessionID(t *testing.T) {
	h := &stubHandler{}
	s := newTestServer(h, stubQuerySummary{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"TSLA price"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, h.lastSession, "server should mint a session id when none is given")
	assert.Equal(t, domain.TierFree, h.lastTier, "missing tier defaults to free")
}

func TestHandleQueryValidation(t *testing.T) {
	h := &stubHandler{}
	s := newTestServer(h, stubQuerySummary{})

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"blank query", `{"query":"   "}`},
		{"bad json", `{"query":`},
		{"unknown tier", `{"query":"AAPL price","tier":"platinum"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, h.lastQuery, "handler must not run on invalid input")
		})
	}
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(&stubHandler{}, stubQuerySummary{
		summary: analytics.Summary{TotalQueries: 12},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "cache")
	assert.Contains(t, payload, "router")
	assert.Contains(t, payload, "budget")
	assert.Contains(t, payload, "sessions")
	assert.Contains(t, payload, "queries")
}

func TestHandleStatsSurvivesStoreError(t *testing.T) {
	s := newTestServer(&stubHandler{}, stubQuerySummary{
		err: fmt.Errorf("database is locked"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "cache")
	assert.NotContains(t, payload, "queries", "failed rollup section should be omitted")
}

func TestHandleSystem(t *testing.T) {
	s := newTestServer(&stubHandler{}, stubQuerySummary{})

	req := httptest.NewRequest(http.MethodGet, "/api/system", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.InDelta(t, 0.5, payload["load_1"], 0.001)
	assert.InDelta(t, 42, payload["mem_used_percent"], 0.001)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&stubHandler{}, stubQuerySummary{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
