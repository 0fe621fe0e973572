// Package cost tracks spend per time window and per session, approves
// or rejects requests against budget ceilings before any paid call is
// made, and records actual cost after completion.
package cost

import (
	"sync"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	"github.com/rs/zerolog"
)

// Rejection reasons surfaced in Decision.Reason.
const (
	ReasonGlobalBudgetExceeded = "global_budget_exceeded"
	ReasonUserBudgetExceeded   = "user_budget_exceeded"
)

// Decision is the outcome of a pre-flight budget check.
type Decision struct {
	Allowed  bool    `json:"allowed"`
	Estimate float64 `json:"estimate"`
	Reason   string  `json:"reason,omitempty"`
	Details  string  `json:"details,omitempty"`
	Status   Status  `json:"budget_status"`
}

// Status is a snapshot of the relevant counters at decision time.
type Status struct {
	HourlySpent  float64 `json:"hourly_spent"`
	HourlyLimit  float64 `json:"hourly_limit"`
	DailySpent   float64 `json:"daily_spent"`
	DailyLimit   float64 `json:"daily_limit"`
	Requests     int     `json:"requests"`
	RequestLimit int     `json:"request_limit"`
}

// counter is one spend window. Values are monotonically non-decreasing
// between resets; a reset zeroes the value and stamps a new reset time.
type counter struct {
	hourly      float64
	daily       float64
	requests    int
	hourlyReset time.Time
	dailyReset  time.Time
}

// sessionLedger tracks one session's spend plus staleness.
type sessionLedger struct {
	counter
	lastSeen time.Time
}

// tierLimits are the per-session ceilings for one user tier.
type tierLimits struct {
	hourly     float64
	daily      float64
	perRequest float64
}

// Optimizer enforces budgets and accounts for actual spend.
type Optimizer struct {
	mu       sync.Mutex
	cfg      config.BudgetConfig
	pricing  Pricing
	tokens   TokenCounter
	global   counter
	sessions map[string]*sessionLedger
	services map[string]float64 // Spend per provider route
	saved    float64            // Counterfactual savings from cache hits
	log      zerolog.Logger

	// Injectable clock so tests can advance virtual time
	now func() time.Time
}

// NewOptimizer creates a cost optimizer.
func NewOptimizer(cfg config.BudgetConfig, tokens TokenCounter, log zerolog.Logger) *Optimizer {
	now := time.Now()
	return &Optimizer{
		cfg:      cfg,
		pricing:  DefaultPricing(cfg.SearchFee),
		tokens:   tokens,
		global:   counter{hourlyReset: now, dailyReset: now},
		sessions: make(map[string]*sessionLedger),
		services: make(map[string]float64),
		log:      log.With().Str("component", "cost").Logger(),
		now:      time.Now,
	}
}

// CheckBudgetAndEstimate approves or rejects a request before it is
// issued. On any internal error it fails open with a minimal fallback
// estimate: availability over strict enforcement.
func (o *Optimizer) CheckBudgetAndEstimate(route domain.Route, tier domain.UserTier, sessionID string) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("Budget check failed, failing open")
			decision = Decision{Allowed: true, Estimate: o.pricing.EstimateRoute(domain.RouteQuickModel)}
		}
	}()

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.maybeResetLocked(now)

	estimate := o.pricing.EstimateRoute(route)

	status := Status{
		HourlySpent:  o.global.hourly,
		HourlyLimit:  o.cfg.GlobalHourly,
		DailySpent:   o.global.daily,
		DailyLimit:   o.cfg.GlobalDaily,
		Requests:     o.global.requests,
		RequestLimit: o.cfg.GlobalRequests,
	}

	// (a) Global ceilings
	switch {
	case o.global.hourly+estimate > o.cfg.GlobalHourly:
		return Decision{Reason: ReasonGlobalBudgetExceeded, Details: "hourly ceiling reached", Estimate: estimate, Status: status}
	case o.global.daily+estimate > o.cfg.GlobalDaily:
		return Decision{Reason: ReasonGlobalBudgetExceeded, Details: "daily ceiling reached", Estimate: estimate, Status: status}
	case o.global.requests+1 > o.cfg.GlobalRequests:
		return Decision{Reason: ReasonGlobalBudgetExceeded, Details: "request ceiling reached", Estimate: estimate, Status: status}
	}

	// (b) Per-session ceilings scaled by user tier
	limits := o.limitsForTier(tier)
	ledger := o.sessionLocked(sessionID, now)

	switch {
	case estimate > limits.perRequest:
		return Decision{Reason: ReasonUserBudgetExceeded, Details: "single request exceeds per-request cap", Estimate: estimate, Status: status}
	case ledger.hourly+estimate > limits.hourly:
		return Decision{Reason: ReasonUserBudgetExceeded, Details: "session hourly ceiling reached", Estimate: estimate, Status: status}
	case ledger.daily+estimate > limits.daily:
		return Decision{Reason: ReasonUserBudgetExceeded, Details: "session daily ceiling reached", Estimate: estimate, Status: status}
	}

	return Decision{Allowed: true, Estimate: estimate, Status: status}
}

// RecordActual adds a completed request's true cost to the global,
// per-service and per-session counters. A cache hit spends nothing and
// instead credits the counterfactual full-pipeline cost to savings.
// When the provider reported no token counts, the prompt and response
// texts are tokenized locally; if those are empty too, the route's
// estimate stands in.
func (o *Optimizer) RecordActual(route domain.Route, usage domain.TokenUsage, promptText, responseText, sessionID string, tier domain.UserTier) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	o.maybeResetLocked(now)

	if route == domain.RouteCacheHit {
		saving := o.pricing.EstimateRoute(domain.RouteFullPipeline)
		o.saved += saving
		o.log.Debug().Float64("saved", saving).Msg("Cache hit credited to savings")
		return 0
	}

	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		if promptText != "" || responseText != "" {
			usage = domain.TokenUsage{
				PromptTokens:     o.tokens.Count(promptText),
				CompletionTokens: o.tokens.Count(responseText),
			}
		}
	}

	var actual float64
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		actual = o.pricing.EstimateRoute(route)
	} else {
		actual = o.pricing.ActualCost(route, usage)
	}

	o.global.hourly += actual
	o.global.daily += actual
	o.global.requests++
	o.services[string(route)] += actual

	ledger := o.sessionLocked(sessionID, now)
	ledger.hourly += actual
	ledger.daily += actual
	ledger.requests++
	ledger.lastSeen = now

	o.log.Debug().
		Str("route", string(route)).
		Float64("cost", actual).
		Str("session", sessionID).
		Msg("Recorded actual cost")

	return actual
}

// ResetCheck applies hourly/daily window resets that are due. Called by
// the maintenance scheduler every few minutes; resets are also applied
// lazily on every check and record.
func (o *Optimizer) ResetCheck() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maybeResetLocked(o.now())
}

// PurgeStaleSessions drops per-session records idle for more than 24h.
// Called by the daily maintenance job.
func (o *Optimizer) PurgeStaleSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-24 * time.Hour)
	purged := 0
	for id, ledger := range o.sessions {
		if ledger.lastSeen.Before(cutoff) {
			delete(o.sessions, id)
			purged++
		}
	}

	if purged > 0 {
		o.log.Info().Int("purged", purged).Msg("Purged stale session cost records")
	}
	return purged
}

// Summary is a stats snapshot for the API surface.
type Summary struct {
	HourlySpent   float64            `json:"hourly_spent"`
	DailySpent    float64            `json:"daily_spent"`
	Requests      int                `json:"requests"`
	Saved         float64            `json:"saved"`
	ByService     map[string]float64 `json:"by_service"`
	ActiveLedgers int                `json:"active_ledgers"`
}

// GetSummary returns current spend totals.
func (o *Optimizer) GetSummary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	services := make(map[string]float64, len(o.services))
	for k, v := range o.services {
		services[k] = v
	}

	return Summary{
		HourlySpent:   o.global.hourly,
		DailySpent:    o.global.daily,
		Requests:      o.global.requests,
		Saved:         o.saved,
		ByService:     services,
		ActiveLedgers: len(o.sessions),
	}
}

// EstimateRoute exposes the pricing table for the router's decisions.
func (o *Optimizer) EstimateRoute(route domain.Route) float64 {
	return o.pricing.EstimateRoute(route)
}

func (o *Optimizer) limitsForTier(tier domain.UserTier) tierLimits {
	switch tier {
	case domain.TierPremium:
		return tierLimits{o.cfg.PremiumHourly, o.cfg.PremiumDaily, o.cfg.PremiumPerRequest}
	case domain.TierEnterprise:
		return tierLimits{o.cfg.EnterpriseHourly, o.cfg.EnterpriseDaily, o.cfg.EnterprisePerRequest}
	default:
		return tierLimits{o.cfg.FreeHourly, o.cfg.FreeDaily, o.cfg.FreePerRequest}
	}
}

// sessionLocked fetches or creates a session ledger. Caller holds mu.
func (o *Optimizer) sessionLocked(sessionID string, now time.Time) *sessionLedger {
	ledger, ok := o.sessions[sessionID]
	if !ok {
		ledger = &sessionLedger{
			counter:  counter{hourlyReset: now, dailyReset: now},
			lastSeen: now,
		}
		o.sessions[sessionID] = ledger
	}
	return ledger
}

// maybeResetLocked zeroes any counter whose window boundary has been
// crossed and stamps the new reset time. Caller holds mu.
func (o *Optimizer) maybeResetLocked(now time.Time) {
	resetCounter(&o.global, now)
	for _, ledger := range o.sessions {
		resetCounter(&ledger.counter, now)
	}
}

func resetCounter(c *counter, now time.Time) {
	if now.Sub(c.hourlyReset) >= time.Hour {
		c.hourly = 0
		c.requests = 0
		c.hourlyReset = now
	}
	if now.Sub(c.dailyReset) >= 24*time.Hour {
		c.daily = 0
		c.dailyReset = now
	}
}
