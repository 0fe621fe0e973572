// Package domain contains the core types shared across the query pipeline.
// The domain layer is pure: no infrastructure dependencies.
package domain

import "time"

// Route is the chosen execution strategy for a query.
type Route string

const (
	RouteCacheHit        Route = "CACHE_HIT"
	RouteQuickModel      Route = "QUICK_MODEL"
	RouteSearchAugmented Route = "SEARCH_AUGMENTED"
	RouteFullPipeline    Route = "FULL_PIPELINE"
	RouteBatchQueue      Route = "BATCH_QUEUE"
)

// KnownRoutes lists every valid route value. Used to validate
// model-assisted routing decisions before they are trusted.
var KnownRoutes = map[Route]bool{
	RouteCacheHit:        true,
	RouteQuickModel:      true,
	RouteSearchAugmented: true,
	RouteFullPipeline:    true,
	RouteBatchQueue:      true,
}

// RouteMethod records which mechanism produced a route decision.
type RouteMethod string

const (
	MethodPattern   RouteMethod = "pattern"
	MethodCache     RouteMethod = "cache"
	MethodBatch     RouteMethod = "batch"
	MethodLLM       RouteMethod = "llm"
	MethodHeuristic RouteMethod = "heuristic"
	MethodFallback  RouteMethod = "fallback"
)

// RouteDecision is immutable once produced and consumed exactly once
// by the orchestrator.
type RouteDecision struct {
	Route              Route       `json:"route"`
	Reasoning          string      `json:"reasoning"`
	Confidence         float64     `json:"confidence"`
	EstimatedCost      float64     `json:"estimated_cost"`
	EstimatedLatencyMs int64       `json:"estimated_latency_ms"`
	Method             RouteMethod `json:"method"`
}

// QueryType classifies what a query is asking for.
type QueryType string

const (
	QueryTypePrice      QueryType = "price"
	QueryTypeAnalysis   QueryType = "analysis"
	QueryTypeComparison QueryType = "comparison"
	QueryTypeNews       QueryType = "news"
	QueryTypeGeneral    QueryType = "general"
)

// UserTier determines per-session budget ceilings.
type UserTier string

const (
	TierFree       UserTier = "free"
	TierPremium    UserTier = "premium"
	TierEnterprise UserTier = "enterprise"
)

// UserLevel is the inferred expertise of the user behind a session.
type UserLevel string

const (
	LevelBeginner     UserLevel = "beginner"
	LevelIntermediate UserLevel = "intermediate"
	LevelExpert       UserLevel = "expert"
)

// UnderstandingStatus tags an Understanding so consumers must handle
// the degraded and failed cases explicitly.
type UnderstandingStatus string

const (
	StatusUnderstood UnderstandingStatus = "understood"
	StatusDegraded   UnderstandingStatus = "degraded"
	StatusFailed     UnderstandingStatus = "failed"
)

// Understanding is the extracted intent and entities for a query.
// An empty Intent or Symbols slice means "could not determine",
// never "determined to be empty".
type Understanding struct {
	Status         UnderstandingStatus `json:"status"`
	Intent         string              `json:"intent"`
	QueryType      QueryType           `json:"query_type"`
	Symbols        []string            `json:"symbols"`
	InvalidSymbols []string            `json:"invalid_symbols,omitempty"`
	NeedsRealtime  bool                `json:"needs_realtime"`
	SkipFetch      bool                `json:"skip_fetch"` // Simple-case optimization hint
}

// MarketData is a single symbol's fetched market snapshot.
// Degraded entries are clearly-marked placeholders produced when every
// data source for the symbol failed; they never fail the whole query.
type MarketData struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	DayHigh       float64   `json:"day_high"`
	DayLow        float64   `json:"day_low"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"` // yahoo, search, stooq, placeholder
	Summary       string    `json:"summary,omitempty"`
	Degraded      bool      `json:"degraded"`
	Note          string    `json:"note,omitempty"`
}

// ChartData carries daily closes plus indicator overlays for rendering.
// The core does not know how charts are rendered.
type ChartData struct {
	Symbol string    `json:"symbol"`
	Closes []float64 `json:"closes"`
	SMA20  []float64 `json:"sma20,omitempty"`
	EMA50  []float64 `json:"ema50,omitempty"`
}

// Performance holds per-stage pipeline timings in milliseconds.
type Performance struct {
	UnderstandingMs int64 `json:"understanding_ms"`
	DataFetchingMs  int64 `json:"data_fetching_ms"`
	SynthesisMs     int64 `json:"synthesis_ms"`
	TotalMs         int64 `json:"total_ms"`
}

// PipelineResult is produced once per query and not retained beyond
// the call that returns it.
type PipelineResult struct {
	QueryID       string                `json:"query_id"`
	Response      string                `json:"response"`
	Understanding Understanding         `json:"understanding"`
	Data          map[string]MarketData `json:"data,omitempty"`
	ChartData     *ChartData            `json:"chart_data,omitempty"`
	Symbols       []string              `json:"symbols"`
	ShowChart     bool                  `json:"show_chart"`
	Suggestions   []string              `json:"suggestions,omitempty"`
	Performance   Performance           `json:"performance"`
	Route         Route                 `json:"route"`
	CacheTier     string                `json:"cache_tier,omitempty"`
	Degraded      bool                  `json:"degraded,omitempty"`
}

// QueryContext identifies who is asking, for cache keying and budgets.
type QueryContext struct {
	SessionID string
	UserTier  UserTier
	Symbols   []string // Symbols recently active in the session
}

// TokenUsage reports provider token counts for cost accounting.
// Zero values mean the provider did not report usage.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
