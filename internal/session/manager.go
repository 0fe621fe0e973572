// Package session provides per-conversation memory: recently mentioned
// symbols, inferred user expertise, bounded query history and pronoun
// resolution. Sessions are created lazily, never persisted, and evicted
// after an idle TTL by the store's background janitor.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// SymbolRecord tracks one symbol's activity within a session.
type SymbolRecord struct {
	Symbol    string    `json:"symbol"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Frequency int       `json:"frequency"`
	LastQuery string    `json:"last_query"`
	LastPrice float64   `json:"last_price"`
}

// QueryRecord is one entry of the bounded query history,
// most-recent-first.
type QueryRecord struct {
	Query     string    `json:"query"`
	Intent    string    `json:"intent"`
	Symbols   []string  `json:"symbols"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the memory for one conversation session.
type Context struct {
	ID           string           `json:"id"`
	Symbols      []SymbolRecord   `json:"symbols"` // Most-recent-first, capped
	UserLevel    domain.UserLevel `json:"user_level"`
	History      []QueryRecord    `json:"history"` // Most-recent-first, capped
	LastActivity time.Time        `json:"last_activity"`
}

// Manager owns the session store. All mutation goes through the manager
// so read-modify-write sequences stay atomic; public accessors return
// copies.
type Manager struct {
	store *gocache.Cache
	cfg   config.SessionConfig
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewManager creates a session manager. The underlying store purges
// idle sessions every cfg.SweepInterval.
func NewManager(cfg config.SessionConfig, log zerolog.Logger) *Manager {
	return &Manager{
		store: gocache.New(cfg.TTL, cfg.SweepInterval),
		cfg:   cfg,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// GetOrCreate returns a copy of the session, creating an empty one if
// absent. Always refreshes last activity.
func (m *Manager) GetOrCreate(sessionID string) Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.getOrCreateLocked(sessionID)
	snapshot := copyContext(ctx)
	m.touchLocked(sessionID, ctx)
	return snapshot
}

// UpdateFromQuery folds a completed query into session memory: symbol
// records are bumped or appended, re-sorted by recency and truncated;
// the user level is re-inferred; the query is prepended to history.
func (m *Manager) UpdateFromQuery(sessionID, query string, u domain.Understanding, data map[string]domain.MarketData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.getOrCreateLocked(sessionID)
	now := time.Now()

	for _, sym := range u.Symbols {
		var price float64
		if md, ok := data[sym]; ok && !md.Degraded {
			price = md.Price
		}

		found := false
		for i := range ctx.Symbols {
			if ctx.Symbols[i].Symbol == sym {
				ctx.Symbols[i].Frequency++
				ctx.Symbols[i].LastSeen = now
				ctx.Symbols[i].LastQuery = query
				if price > 0 {
					ctx.Symbols[i].LastPrice = price
				}
				found = true
				break
			}
		}
		if !found {
			ctx.Symbols = append(ctx.Symbols, SymbolRecord{
				Symbol:    sym,
				FirstSeen: now,
				LastSeen:  now,
				Frequency: 1,
				LastQuery: query,
				LastPrice: price,
			})
		}
	}

	// Most-recent-first, capped
	sortSymbolsByRecency(ctx.Symbols)
	if len(ctx.Symbols) > m.cfg.MaxSymbols {
		ctx.Symbols = ctx.Symbols[:m.cfg.MaxSymbols]
	}

	ctx.UserLevel = inferUserLevel(query, ctx.UserLevel)

	ctx.History = append([]QueryRecord{{
		Query:     query,
		Intent:    u.Intent,
		Symbols:   u.Symbols,
		Timestamp: now,
	}}, ctx.History...)
	if len(ctx.History) > m.cfg.MaxHistory {
		ctx.History = ctx.History[:m.cfg.MaxHistory]
	}

	m.touchLocked(sessionID, ctx)
}

// MostRecentSymbol returns the most recently mentioned symbol, or ""
// for a session with no symbol history.
func (m *Manager) MostRecentSymbol(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.getOrCreateLocked(sessionID)
	defer m.touchLocked(sessionID, ctx)

	if len(ctx.Symbols) == 0 {
		return ""
	}
	return ctx.Symbols[0].Symbol
}

// ContextPrompt renders a terse natural-language digest of the session
// for the synthesis step. Returns "" for a session with no history yet.
func (m *Manager) ContextPrompt(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := m.getOrCreateLocked(sessionID)
	defer m.touchLocked(sessionID, ctx)

	if len(ctx.History) == 0 && len(ctx.Symbols) == 0 {
		return ""
	}

	var parts []string

	if ctx.UserLevel != "" {
		parts = append(parts, fmt.Sprintf("User level: %s.", ctx.UserLevel))
	}

	if len(ctx.Symbols) > 0 {
		n := len(ctx.Symbols)
		if n > 3 {
			n = 3
		}
		recent := make([]string, 0, n)
		for _, rec := range ctx.Symbols[:n] {
			recent = append(recent, rec.Symbol)
		}
		parts = append(parts, fmt.Sprintf("Recent symbols: %s.", strings.Join(recent, ", ")))

		// Call out the dominant symbol only when it is genuinely recurring
		var frequent string
		best := 2
		for _, rec := range ctx.Symbols {
			if rec.Frequency > best {
				best = rec.Frequency
				frequent = rec.Symbol
			}
		}
		if frequent != "" {
			parts = append(parts, fmt.Sprintf("Most discussed: %s.", frequent))
		}
	}

	if len(ctx.History) > 0 {
		parts = append(parts, fmt.Sprintf("Previous query: %q.", ctx.History[0].Query))
	}

	return strings.Join(parts, " ")
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.store.ItemCount()
}

// SweepNow forces expired-session removal. The janitor does this on its
// own; tests call it to make eviction deterministic.
func (m *Manager) SweepNow() {
	m.store.DeleteExpired()
}

// getOrCreateLocked fetches or lazily creates a session. Caller holds mu.
func (m *Manager) getOrCreateLocked(sessionID string) *Context {
	if v, ok := m.store.Get(sessionID); ok {
		return v.(*Context)
	}
	ctx := &Context{ID: sessionID, LastActivity: time.Now()}
	m.store.Set(sessionID, ctx, m.cfg.TTL)
	m.log.Debug().Str("session", sessionID).Msg("Session created")
	return ctx
}

// touchLocked refreshes the idle TTL. Caller holds mu.
func (m *Manager) touchLocked(sessionID string, ctx *Context) {
	ctx.LastActivity = time.Now()
	m.store.Set(sessionID, ctx, m.cfg.TTL)
}

func copyContext(ctx *Context) Context {
	out := *ctx
	out.Symbols = append([]SymbolRecord(nil), ctx.Symbols...)
	out.History = append([]QueryRecord(nil), ctx.History...)
	return out
}

func sortSymbolsByRecency(records []SymbolRecord) {
	// Insertion sort: the slice is small (capped) and mostly ordered
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].LastSeen.After(records[j-1].LastSeen); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}
