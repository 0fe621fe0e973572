// Package router classifies incoming queries into execution routes.
// The cascade is fixed: pattern families, then cache potential against
// the rolling query window, then batch potential, then a model-assisted
// verdict, then a length/punctuation heuristic. One transition per
// query, no retries; a wrong route only affects cost and latency.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/symbols"
	"github.com/aristath/finsight/internal/utils"
	"github.com/rs/zerolog"
)

// CostEstimator is the slice of the cost optimizer the router needs.
type CostEstimator interface {
	EstimateRoute(route domain.Route) float64
}

// Point-estimate latencies per route, used for decision metadata and
// the saved-versus-full-pipeline statistics.
var routeLatencyMs = map[domain.Route]int64{
	domain.RouteCacheHit:        50,
	domain.RouteQuickModel:      800,
	domain.RouteSearchAugmented: 2500,
	domain.RouteFullPipeline:    5200,
	domain.RouteBatchQueue:      1500,
}

// windowEntry is one recent query in the rolling window.
type windowEntry struct {
	normalized string
	sessionID  string
	route      domain.Route
	at         time.Time
}

// Router decides the execution route for each query.
type Router struct {
	mu        sync.Mutex
	cfg       config.RouterConfig
	estimator CostEstimator
	rules     RuleBasedRouter
	model     Strategy // nil when model-assisted routing is disabled
	probe     *LoadProbe
	window    []windowEntry
	stats     routeStats
	log       zerolog.Logger

	// Injectable clock so tests can advance virtual time
	now func() time.Time
}

// New creates a router. model may be nil to disable the model-assisted
// step entirely.
func New(cfg config.RouterConfig, estimator CostEstimator, model Strategy, probe *LoadProbe, log zerolog.Logger) *Router {
	if !cfg.ModelAssistedEnabled {
		model = nil
	}
	return &Router{
		cfg:       cfg,
		estimator: estimator,
		model:     model,
		probe:     probe,
		stats:     newRouteStats(),
		log:       log.With().Str("component", "router").Logger(),
		now:       time.Now,
	}
}

// Decide classifies the query. Exactly one decision per call; the
// decision is recorded into the rolling window and statistics before
// it is returned.
func (r *Router) Decide(ctx context.Context, query, sessionID string) domain.RouteDecision {
	normalized := utils.Normalize(query)

	// 1-2. Pattern families; a confident match short-circuits.
	if d, ok := r.rules.Decide(ctx, Input{Query: query}); ok && d.Confidence > 0.8 {
		return r.finish(d, normalized, sessionID)
	}

	// 3. Cache potential against the rolling window.
	if d, ok := r.cachePotential(normalized, sessionID); ok {
		return r.finish(d, normalized, sessionID)
	}

	// 4. Batch potential: a batch entry landed within the window, or
	// the query type is inherently batchable.
	if d, ok := r.batchPotential(query); ok {
		return r.finish(d, normalized, sessionID)
	}

	// 5. Model-assisted verdict with heuristic fallback.
	if r.model != nil {
		in := Input{
			Query:      query,
			Normalized: normalized,
			SessionID:  sessionID,
			Recent:     r.recentQueries(3),
			Load:       r.loadDigest(),
		}
		if d, ok := r.model.Decide(ctx, in); ok {
			return r.finish(d, normalized, sessionID)
		}
		return r.finish(heuristicDecision(query, domain.MethodFallback), normalized, sessionID)
	}

	return r.finish(heuristicDecision(query, domain.MethodHeuristic), normalized, sessionID)
}

// cachePotential reports CACHE_HIT when the same session repeated the
// exact normalized query recently, or any session asked something very
// similar within the larger window.
func (r *Router) cachePotential(normalized, sessionID string) (domain.RouteDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := len(r.window) - 1; i >= 0; i-- {
		w := r.window[i]
		age := now.Sub(w.at)
		if age > r.cfg.CacheSimilarWindow {
			break // Window is append-ordered; everything earlier is older
		}

		if w.sessionID == sessionID && w.normalized == normalized && age <= r.cfg.CacheRepeatWindow {
			return domain.RouteDecision{
				Route:      domain.RouteCacheHit,
				Reasoning:  "exact repeat from same session",
				Confidence: 0.95,
				Method:     domain.MethodCache,
			}, true
		}
		if utils.LevenshteinSimilarity(normalized, w.normalized) > r.cfg.SimilarityThreshold {
			return domain.RouteDecision{
				Route:      domain.RouteCacheHit,
				Reasoning:  "similar to a recent query",
				Confidence: 0.85,
				Method:     domain.MethodCache,
			}, true
		}
	}
	return domain.RouteDecision{}, false
}

// batchPotential reports BATCH_QUEUE when another batch decision landed
// within the batch window, or the query's detected type is batchable.
func (r *Router) batchPotential(query string) (domain.RouteDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := len(r.window) - 1; i >= 0; i-- {
		w := r.window[i]
		if now.Sub(w.at) > r.cfg.BatchWindow {
			break
		}
		if w.route == domain.RouteBatchQueue {
			return domain.RouteDecision{
				Route:      domain.RouteBatchQueue,
				Reasoning:  "joins an in-flight batch",
				Confidence: 0.75,
				Method:     domain.MethodBatch,
			}, true
		}
	}

	if symbols.IsBatchable(symbols.ClassifyQueryType(query)) {
		return domain.RouteDecision{
			Route:      domain.RouteBatchQueue,
			Reasoning:  "inherently batchable query type",
			Confidence: 0.7,
			Method:     domain.MethodBatch,
		}, true
	}
	return domain.RouteDecision{}, false
}

// finish stamps cost/latency estimates, records the decision into the
// window and statistics, and returns it.
func (r *Router) finish(d domain.RouteDecision, normalized, sessionID string) domain.RouteDecision {
	d.EstimatedCost = r.estimator.EstimateRoute(d.Route)
	d.EstimatedLatencyMs = routeLatencyMs[d.Route]

	r.mu.Lock()
	defer r.mu.Unlock()

	r.window = append(r.window, windowEntry{
		normalized: normalized,
		sessionID:  sessionID,
		route:      d.Route,
		at:         r.now(),
	})
	if len(r.window) > r.cfg.WindowSize {
		r.window = append(r.window[:0:0], r.window[len(r.window)-r.cfg.WindowSize:]...)
	}

	fullCost := r.estimator.EstimateRoute(domain.RouteFullPipeline)
	r.stats.record(d, fullCost, routeLatencyMs[domain.RouteFullPipeline])

	r.log.Debug().
		Str("route", string(d.Route)).
		Str("method", string(d.Method)).
		Float64("confidence", d.Confidence).
		Msg("Route decided")
	return d
}

// recentQueries returns up to n normalized window queries, newest first.
func (r *Router) recentQueries(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, n)
	for i := len(r.window) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.window[i].normalized)
	}
	return out
}

func (r *Router) loadDigest() string {
	if r.probe == nil {
		return ""
	}
	return r.probe.Snapshot().Digest()
}

// GetStats returns a snapshot of routing statistics.
func (r *Router) GetStats() StatsSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats.summary(len(r.window))
}
