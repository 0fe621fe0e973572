package cache

import (
	"time"

	"github.com/aristath/finsight/internal/domain"
)

// Entry is the shape shared by all four tiers. Entries are exclusively
// owned by the cache; one response may be replicated into up to four
// tiers, but each tier's copy is opaque to the others.
type Entry struct {
	Key             string
	Query           string
	NormalizedQuery string
	Result          domain.PipelineResult
	Context         domain.QueryContext
	Timestamp       time.Time
	HitCount        int
	Symbols         []string
	QueryType       domain.QueryType
}

// fresh reports whether the entry is still visible under the tier TTL.
func (e *Entry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) <= ttl
}

// clone returns an independent copy safe to hand to callers.
func (e *Entry) clone() *Entry {
	out := *e
	out.Symbols = append([]string(nil), e.Symbols...)
	return &out
}
