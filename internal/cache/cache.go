// Package cache implements the four-tier response cache: exact,
// semantic-similarity, symbol-keyed and pattern-keyed, each with its own
// TTL and size policy. Lookup walks the tiers in order and the first hit
// wins. Eviction and insert run under one lock with no blocking calls
// in between, so read-modify-write sequences are atomic across queries.
package cache

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/symbols"
	"github.com/aristath/finsight/internal/utils"
	"github.com/rs/zerolog"
)

// Tier names as reported on hits.
const (
	TierExact    = "exact"
	TierSemantic = "semantic"
	TierSymbol   = "symbol"
	TierPattern  = "pattern"
)

var bareSymbolQuery = regexp.MustCompile(`^\$?[A-Za-z]{1,5}[?!.]*$`)

// Cache is the four-tier response cache.
type Cache struct {
	mu       sync.Mutex
	cfg      config.CacheConfig
	registry *symbols.Registry
	log      zerolog.Logger

	exact    map[string]*Entry
	semantic []*Entry // Append order, oldest first
	symbol   map[string]*Entry
	pattern  map[string]*Entry

	hits   map[string]int64
	misses int64
	flushes int64

	// Injectable clock so tests can advance virtual time
	now func() time.Time
}

// New creates an empty cache.
func New(cfg config.CacheConfig, registry *symbols.Registry, log zerolog.Logger) *Cache {
	return &Cache{
		cfg:      cfg,
		registry: registry,
		log:      log.With().Str("component", "cache").Logger(),
		exact:    make(map[string]*Entry),
		symbol:   make(map[string]*Entry),
		pattern:  make(map[string]*Entry),
		hits:     map[string]int64{},
		now:      time.Now,
	}
}

// Get looks the query up tier by tier. Each tier is a hard stop: the
// first fresh, compatible hit wins. Returns the entry, the tier name,
// and whether anything was found.
func (c *Cache) Get(query string, qctx domain.QueryContext) (*Entry, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	normalized := utils.Normalize(query)

	// Tier 1: exact
	if e, ok := c.exact[exactKey(normalized, qctx)]; ok && e.fresh(now, c.cfg.ExactTTL) {
		e.HitCount++
		c.hits[TierExact]++
		return e.clone(), TierExact, true
	}

	// Tier 2: semantic - scan the most recent non-expired entries
	scanned := 0
	for i := len(c.semantic) - 1; i >= 0 && scanned < c.cfg.SemanticScanLimit; i-- {
		e := c.semantic[i]
		if !e.fresh(now, c.cfg.SemanticTTL) {
			continue
		}
		scanned++
		if utils.JaccardSimilarity(normalized, e.NormalizedQuery) >= c.cfg.SimilarityThreshold &&
			contextCompatible(qctx, e.Context) {
			e.HitCount++
			c.hits[TierSemantic]++
			return e.clone(), TierSemantic, true
		}
	}

	// Tier 3: symbol-keyed, in discovery order
	qtype := symbols.ClassifyQueryType(query)
	for _, sym := range c.registry.Extract(query) {
		if e, ok := c.symbol[symbolKey(sym, qtype)]; ok && e.fresh(now, c.cfg.SymbolTTL) {
			e.HitCount++
			c.hits[TierSymbol]++
			return e.clone(), TierSymbol, true
		}
	}

	// Tier 4: pattern template, with single-symbol adaptation
	if pid, ok := matchPattern(query); ok {
		qsyms := c.registry.Extract(query)
		if e, ok := c.pattern[patternKey(pid, qsyms)]; ok && e.fresh(now, c.cfg.PatternTTL) {
			e.HitCount++
			c.hits[TierPattern]++
			return e.clone(), TierPattern, true
		}
		// No direct key match: adapt any fresh entry of the same template
		for key, e := range c.pattern {
			if !strings.HasPrefix(key, pid+"|") || !e.fresh(now, c.cfg.PatternTTL) {
				continue
			}
			e.HitCount++
			c.hits[TierPattern]++
			return adaptPatternEntry(e, qsyms), TierPattern, true
		}
	}

	c.misses++
	return nil, "", false
}

// Set stores the response into every tier the query qualifies for.
// The exact tier always stores; the semantic tier requires a 3-20 word
// query that is not a bare symbol; the symbol tier requires at least one
// recognized symbol; the pattern tier requires a template match and a
// response of moderate length.
func (c *Cache) Set(query string, result domain.PipelineResult, qctx domain.QueryContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	normalized := utils.Normalize(query)
	syms := c.registry.Extract(query)
	qtype := symbols.ClassifyQueryType(query)

	base := Entry{
		Query:           query,
		NormalizedQuery: normalized,
		Result:          result,
		Context:         qctx,
		Timestamp:       now,
		Symbols:         syms,
		QueryType:       qtype,
	}

	// Exact tier: always
	e := base
	e.Key = exactKey(normalized, qctx)
	c.evictExactIfFull()
	c.exact[e.Key] = &e

	// Semantic tier: reasonable-length natural language only
	if wc := len(utils.Words(query)); wc >= 3 && wc <= 20 && !bareSymbolQuery.MatchString(strings.TrimSpace(query)) {
		e := base
		e.Key = normalized
		c.evictSemanticIfFull()
		c.semantic = append(c.semantic, &e)
	}

	// Symbol tier: one entry per extracted symbol
	for _, sym := range syms {
		e := base
		e.Key = symbolKey(sym, qtype)
		c.evictSymbolIfFull()
		c.symbol[e.Key] = &e
	}

	// Pattern tier: template match plus a moderate response length
	if pid, ok := matchPattern(query); ok {
		if n := len(result.Response); n >= 50 && n <= 1000 {
			e := base
			e.Key = patternKey(pid, syms)
			c.evictPatternIfFull()
			c.pattern[e.Key] = &e
		}
	}
}

// Sweep removes entries past their tier TTL from every tier.
// Called by the maintenance scheduler.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for k, e := range c.exact {
		if !e.fresh(now, c.cfg.ExactTTL) {
			delete(c.exact, k)
			removed++
		}
	}

	kept := c.semantic[:0]
	for _, e := range c.semantic {
		if e.fresh(now, c.cfg.SemanticTTL) {
			kept = append(kept, e)
		} else {
			removed++
		}
	}
	c.semantic = kept

	for k, e := range c.symbol {
		if !e.fresh(now, c.cfg.SymbolTTL) {
			delete(c.symbol, k)
			removed++
		}
	}

	for k, e := range c.pattern {
		if !e.fresh(now, c.cfg.PatternTTL) {
			delete(c.pattern, k)
			removed++
		}
	}

	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("Cache sweep completed")
	}
}

// Flush empties all four tiers. This is the contamination circuit
// breaker: when a cross-session leakage signature is detected, every
// cached response becomes suspect.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exact = make(map[string]*Entry)
	c.semantic = nil
	c.symbol = make(map[string]*Entry)
	c.pattern = make(map[string]*Entry)
	c.flushes++

	c.log.Warn().Msg("All cache tiers flushed")
}

// Stats reports per-tier sizes and hit counters.
type Stats struct {
	ExactSize    int              `json:"exact_size"`
	SemanticSize int              `json:"semantic_size"`
	SymbolSize   int              `json:"symbol_size"`
	PatternSize  int              `json:"pattern_size"`
	Hits         map[string]int64 `json:"hits"`
	Misses       int64            `json:"misses"`
	Flushes      int64            `json:"flushes"`
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := make(map[string]int64, len(c.hits))
	for k, v := range c.hits {
		hits[k] = v
	}

	return Stats{
		ExactSize:    len(c.exact),
		SemanticSize: len(c.semantic),
		SymbolSize:   len(c.symbol),
		PatternSize:  len(c.pattern),
		Hits:         hits,
		Misses:       c.misses,
		Flushes:      c.flushes,
	}
}

// exactKey derives the exact-tier key from the normalized query and the
// full query context.
func exactKey(normalized string, qctx domain.QueryContext) string {
	return normalized + "|" + qctx.SessionID + "|" + string(qctx.UserTier) + "|" + symbols.SortedKey(qctx.Symbols)
}

func symbolKey(sym string, qtype domain.QueryType) string {
	return sym + "_" + string(qtype)
}

func patternKey(pid string, syms []string) string {
	return pid + "|" + symbols.SortedKey(syms)
}

// contextCompatible applies the semantic-tier compatibility rules: user
// tiers must match when both are specified, and symbol sets must not be
// disjoint when both are non-empty.
func contextCompatible(a, b domain.QueryContext) bool {
	if a.UserTier != "" && b.UserTier != "" && a.UserTier != b.UserTier {
		return false
	}
	if len(a.Symbols) > 0 && len(b.Symbols) > 0 {
		set := make(map[string]bool, len(a.Symbols))
		for _, s := range a.Symbols {
			set[s] = true
		}
		for _, s := range b.Symbols {
			if set[s] {
				return true
			}
		}
		return false
	}
	return true
}

// adaptPatternEntry substitutes the new single symbol for the cached
// single symbol when both sides have exactly one recognized symbol;
// otherwise the cached response is returned unmodified.
func adaptPatternEntry(e *Entry, querySymbols []string) *Entry {
	out := e.clone()
	if len(querySymbols) != 1 || len(e.Symbols) != 1 {
		return out
	}

	oldSym, newSym := e.Symbols[0], querySymbols[0]
	if oldSym == newSym {
		return out
	}

	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(oldSym) + `\b`)
	out.Result.Response = re.ReplaceAllString(out.Result.Response, newSym)
	out.Symbols = []string{newSym}
	out.Result.Symbols = []string{newSym}
	return out
}

// Per-tier size guards: evict the oldest 10% (at least one entry) when
// the tier is at capacity, before inserting.

func (c *Cache) evictExactIfFull() {
	if len(c.exact) < c.cfg.ExactMax {
		return
	}
	evictOldestFromMap(c.exact, c.cfg.ExactMax/10)
}

func (c *Cache) evictSymbolIfFull() {
	if len(c.symbol) < c.cfg.SymbolMax {
		return
	}
	evictOldestFromMap(c.symbol, c.cfg.SymbolMax/10)
}

func (c *Cache) evictPatternIfFull() {
	if len(c.pattern) < c.cfg.PatternMax {
		return
	}
	evictOldestFromMap(c.pattern, c.cfg.PatternMax/10)
}

func (c *Cache) evictSemanticIfFull() {
	if len(c.semantic) < c.cfg.SemanticMax {
		return
	}
	drop := c.cfg.SemanticMax / 10
	if drop < 1 {
		drop = 1
	}
	// Append order is age order: drop from the front
	c.semantic = append(c.semantic[:0:0], c.semantic[drop:]...)
}

func evictOldestFromMap(m map[string]*Entry, count int) {
	if count < 1 {
		count = 1
	}

	type aged struct {
		key string
		ts  time.Time
	}
	all := make([]aged, 0, len(m))
	for k, e := range m {
		all = append(all, aged{k, e.Timestamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	for i := 0; i < count && i < len(all); i++ {
		delete(m, all[i].key)
	}
}
