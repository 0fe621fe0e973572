// Package orchestrator drives the query pipeline: pronoun resolution,
// routing, budget enforcement, parallel understanding and data
// preparation, rate-limited fetching with fallbacks, synthesis with a
// contamination circuit breaker, and result assembly. Every query
// returns a Pipeline Result; the pipeline never crashes outward.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/finsight/internal/analytics"
	"github.com/aristath/finsight/internal/cache"
	"github.com/aristath/finsight/internal/clients/perplexity"
	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/cost"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/session"
	"github.com/aristath/finsight/internal/symbols"
	"github.com/aristath/finsight/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LLMProvider is the understanding/synthesis provider. Empty output
// means "could not determine", never "determined to be empty".
type LLMProvider interface {
	Classify(ctx context.Context, query string, history []string) (string, error)
	ExtractSymbols(ctx context.Context, query string, history []string) ([]string, error)
	CompletePrompt(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, domain.TokenUsage, error)
}

// SearchProvider is the search-augmented data provider. Implementations
// own the shared rate limiter.
type SearchProvider interface {
	Search(ctx context.Context, prompt string, opts perplexity.SearchOptions) (*perplexity.SearchResult, error)
}

// MarketDataProvider is a direct market-data source.
type MarketDataProvider interface {
	Quote(ctx context.Context, symbol string) (domain.MarketData, error)
}

// HistoryProvider supplies daily closes for chart rendering.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, days int) ([]float64, error)
}

// RouteDecider chooses the execution route for a query.
type RouteDecider interface {
	Decide(ctx context.Context, query, sessionID string) domain.RouteDecision
}

// BudgetKeeper approves spend before external calls and records actual
// cost after completion.
type BudgetKeeper interface {
	CheckBudgetAndEstimate(route domain.Route, tier domain.UserTier, sessionID string) cost.Decision
	RecordActual(route domain.Route, usage domain.TokenUsage, promptText, responseText, sessionID string, tier domain.UserTier) float64
}

// Recorder persists per-query analytics. Failures never fail a query.
type Recorder interface {
	Record(ctx context.Context, rec analytics.Record)
}

// Deps are the collaborators the orchestrator drives. Sessions, Cache,
// Registry, Router and Budget are required; the providers and the
// recorder may be nil, degrading the affected stage.
type Deps struct {
	Sessions *session.Manager
	Cache    *cache.Cache
	Registry *symbols.Registry
	Router   RouteDecider
	Budget   BudgetKeeper

	LLM       LLMProvider
	Search    SearchProvider
	Primary   MarketDataProvider
	Secondary MarketDataProvider
	History   HistoryProvider
	Analytics Recorder
}

// Orchestrator executes queries end to end.
type Orchestrator struct {
	cfg  config.FetchConfig
	deps Deps
	log  zerolog.Logger
}

// New creates an orchestrator.
func New(cfg config.FetchConfig, deps Deps, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("component", "orchestrator").Logger(),
	}
}

const (
	staticErrorMessage        = "Sorry, I couldn't process that request. Please try again."
	contaminationRetryMessage = "Something looked off with that answer, so it was discarded. Please ask again."
)

// Handle runs one query through the pipeline. It always returns a
// Pipeline Result: failures become best-effort natural-language
// messages carrying whatever symbols were already known.
func (o *Orchestrator) Handle(ctx context.Context, query, sessionID string, tier domain.UserTier) (result domain.PipelineResult) {
	queryID := uuid.NewString()
	timer := utils.NewStageTimer()

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("query_id", queryID).Msg("Pipeline panic recovered")
			result = o.errorResult(ctx, queryID, query, timer)
		}
	}()

	// Invalid input short-circuits before any provider budget is spent.
	if strings.TrimSpace(query) == "" {
		return o.localResult(queryID, "Please enter a question about a stock or the market.", nil, timer)
	}
	if unknown := o.deps.Registry.ExtractCandidates(query); len(unknown) > 0 {
		msg := fmt.Sprintf("I don't recognize the symbol %s. Double-check the ticker and try again.",
			strings.Join(unknown, ", "))
		return o.localResult(queryID, msg, nil, timer)
	}

	sess := o.deps.Sessions.GetOrCreate(sessionID)
	qctx := domain.QueryContext{
		SessionID: sessionID,
		UserTier:  tier,
		Symbols:   recentSymbols(sess),
	}

	// Pronoun resolution precedes every keyed step: caching "how is it
	// doing" under the pronoun text would let a later identical query
	// return the previous referent's answer.
	resolved := o.deps.Sessions.ResolvePronouns(sessionID, query)

	// Cache probe: a hit skips the entire pipeline and credits savings.
	if entry, tierName, ok := o.deps.Cache.Get(resolved, qctx); ok {
		res := entry.Result
		res.QueryID = queryID
		res.Route = domain.RouteCacheHit
		res.CacheTier = tierName
		res.Performance.TotalMs = timer.TotalMs()

		o.deps.Budget.RecordActual(domain.RouteCacheHit, domain.TokenUsage{}, "", "", sessionID, tier)
		o.recordAnalytics(ctx, queryID, sessionID, res, domain.RouteDecision{
			Route:  domain.RouteCacheHit,
			Method: domain.MethodCache,
		}, 0)
		return res
	}

	decision := o.deps.Router.Decide(ctx, resolved, sessionID)

	// The probe above already missed, so a predicted cache serve cannot
	// happen. Gate and account the query as the route the pipeline will
	// actually execute, never as a free hit.
	if decision.Route == domain.RouteCacheHit {
		decision = downgradeCacheMiss(decision, resolved)
	}

	// Budget gate: a rejection is a hard stop before any external call.
	budget := o.deps.Budget.CheckBudgetAndEstimate(decision.Route, tier, sessionID)
	if !budget.Allowed {
		o.log.Warn().
			Str("reason", budget.Reason).
			Str("session", sessionID).
			Msg("Query rejected by budget check")
		msg := "This request was declined to stay within the current usage budget. Please try again later."
		res := o.localResult(queryID, msg, nil, timer)
		res.Route = decision.Route
		return res
	}

	// Parallel dual-task: understanding is fatal, preparation is not.
	merged, err := o.understandAndPrepare(ctx, resolved, sess)
	understandingMs := timer.Lap()
	if err != nil {
		o.log.Error().Err(err).Str("query_id", queryID).Msg("Understanding failed")
		return o.errorResult(ctx, queryID, resolved, timer)
	}

	var data map[string]domain.MarketData
	degraded := false
	if !merged.SkipFetch && len(merged.Symbols) > 0 {
		var fetchErr error
		data, degraded, fetchErr = o.fetchAll(ctx, resolved, merged)
		if fetchErr != nil {
			// Only contamination propagates out of the fetch chain; it
			// gets the same full flush as contaminated synthesis.
			o.log.Error().Err(fetchErr).Str("query_id", queryID).Msg("Contamination marker in fetched data, flushing caches")
			o.deps.Cache.Flush()
			return o.localResult(queryID, contaminationRetryMessage, merged.Symbols, timer)
		}
	}
	fetchMs := timer.Lap()

	o.deps.Sessions.UpdateFromQuery(sessionID, resolved, merged, data)

	response, usage, synthDegraded := o.synthesize(ctx, resolved, sessionID, merged, data)
	synthesisMs := timer.Lap()

	// Contamination circuit breaker: flush everything, return a safe
	// retry message, never cache.
	if isContaminated(response) {
		o.log.Error().Str("query_id", queryID).Msg("Contamination marker in synthesized response, flushing caches")
		o.deps.Cache.Flush()
		return o.localResult(queryID, contaminationRetryMessage, merged.Symbols, timer)
	}

	result = domain.PipelineResult{
		QueryID:       queryID,
		Response:      response,
		Understanding: merged,
		Data:          data,
		Symbols:       merged.Symbols,
		Route:         decision.Route,
		Degraded:      degraded || synthDegraded,
		Performance: domain.Performance{
			UnderstandingMs: understandingMs,
			DataFetchingMs:  fetchMs,
			SynthesisMs:     synthesisMs,
			TotalMs:         timer.TotalMs(),
		},
	}
	o.assemble(ctx, &result, resolved)

	spent := o.deps.Budget.RecordActual(decision.Route, usage, resolved, response, sessionID, tier)
	if shouldCache(result) {
		o.deps.Cache.Set(resolved, result, qctx)
	}
	o.recordAnalytics(ctx, queryID, sessionID, result, decision, spent)

	return result
}

// downgradeCacheMiss rewrites a cache-hit prediction whose entry was
// not found into the concrete route the pipeline is about to execute,
// so the budget gate and the cost ledger see real spend.
func downgradeCacheMiss(d domain.RouteDecision, query string) domain.RouteDecision {
	out := d
	out.Method = domain.MethodHeuristic
	out.Reasoning = "cache predicted but no entry found"
	switch symbols.ClassifyQueryType(query) {
	case domain.QueryTypeNews:
		out.Route = domain.RouteSearchAugmented
	case domain.QueryTypeAnalysis, domain.QueryTypeComparison:
		out.Route = domain.RouteFullPipeline
	default:
		out.Route = domain.RouteQuickModel
	}
	return out
}

// shouldCache reports whether a result is worth serving again. Results
// made of degraded placeholders alone would outlive source recovery.
func shouldCache(r domain.PipelineResult) bool {
	if !r.Degraded {
		return true
	}
	for _, md := range r.Data {
		if !md.Degraded {
			return true
		}
	}
	return false
}

// localResult builds a response produced without any external call.
func (o *Orchestrator) localResult(queryID, message string, syms []string, timer *utils.StageTimer) domain.PipelineResult {
	return domain.PipelineResult{
		QueryID:  queryID,
		Response: message,
		Symbols:  syms,
		Understanding: domain.Understanding{
			Status:  domain.StatusDegraded,
			Symbols: syms,
		},
		Performance: domain.Performance{TotalMs: timer.TotalMs()},
	}
}

// errorResult is the terminal failure path: a best-effort model-written
// apology with a static fallback, still carrying known symbols.
func (o *Orchestrator) errorResult(ctx context.Context, queryID, query string, timer *utils.StageTimer) domain.PipelineResult {
	syms := o.deps.Registry.Extract(query)
	message := staticErrorMessage

	if o.deps.LLM != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		apology, _, err := o.deps.LLM.CompletePrompt(ctx,
			"Write one short, friendly sentence apologizing that a financial query failed and inviting a retry.",
			query, 0.7, 60)
		if err == nil && strings.TrimSpace(apology) != "" {
			message = strings.TrimSpace(apology)
		}
	}

	res := o.localResult(queryID, message, syms, timer)
	res.Understanding.Status = domain.StatusFailed
	return res
}

// understandAndPrepare launches understanding and local data
// preparation together and joins them. Understanding failure fails the
// query; preparation failure degrades to understanding alone.
func (o *Orchestrator) understandAndPrepare(ctx context.Context, query string, sess session.Context) (domain.Understanding, error) {
	var understanding, prep domain.Understanding
	var prepErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		understanding, err = o.understand(gctx, query, sess)
		return err
	})
	g.Go(func() error {
		// Preparation errors are captured, not propagated: they must not
		// cancel the understanding branch.
		prep, prepErr = o.prepare(query)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Understanding{}, err
	}
	if prepErr != nil {
		o.log.Warn().Err(prepErr).Msg("Data preparation failed, using understanding alone")
		return understanding, nil
	}

	return mergeUnderstanding(understanding, prep), nil
}

func recentSymbols(sess session.Context) []string {
	out := make([]string, 0, len(sess.Symbols))
	for _, rec := range sess.Symbols {
		out = append(out, rec.Symbol)
	}
	return out
}

func (o *Orchestrator) recordAnalytics(ctx context.Context, queryID, sessionID string, res domain.PipelineResult, decision domain.RouteDecision, spent float64) {
	if o.deps.Analytics == nil {
		return
	}
	o.deps.Analytics.Record(ctx, analytics.Record{
		QueryID:    queryID,
		SessionID:  sessionID,
		QueryType:  string(res.Understanding.QueryType),
		Route:      string(res.Route),
		Method:     string(decision.Method),
		Confidence: decision.Confidence,
		Cost:       spent,
		LatencyMs:  res.Performance.TotalMs,
		CacheTier:  res.CacheTier,
		Degraded:   res.Degraded,
	})
}
