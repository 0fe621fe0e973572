// Package analytics persists query routing and cost history to SQLite.
// Writes are best-effort: an analytics failure never fails a query.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS query_log (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	query_type  TEXT NOT NULL,
	route       TEXT NOT NULL,
	method      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	cost        REAL NOT NULL,
	latency_ms  INTEGER NOT NULL,
	cache_tier  TEXT NOT NULL DEFAULT '',
	degraded    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at);
CREATE INDEX IF NOT EXISTS idx_query_log_route ON query_log(route);
`

// Record is one completed query's analytics row.
type Record struct {
	QueryID    string
	SessionID  string
	QueryType  string
	Route      string
	Method     string
	Confidence float64
	Cost       float64
	LatencyMs  int64
	CacheTier  string
	Degraded   bool
	CreatedAt  time.Time
}

// Summary aggregates the stored history for the stats API.
type Summary struct {
	TotalQueries int64            `json:"total_queries"`
	TotalCost    float64          `json:"total_cost"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	ByRoute      map[string]int64 `json:"by_route"`
	CacheHits    int64            `json:"cache_hits"`
	Degraded     int64            `json:"degraded"`
}

// Store is the SQLite-backed analytics store.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore opens (creating if necessary) the analytics database.
// path may be a filesystem path or a file: URI for in-memory use.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	if !strings.HasPrefix(path, "file:") {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve analytics path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return nil, fmt.Errorf("failed to create analytics directory: %w", err)
		}
		path = abs
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=temp_store(MEMORY)" +
		"&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(24 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping analytics database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply analytics schema: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "analytics").Logger(),
	}, nil
}

// Record inserts one query row. Failures are logged and swallowed.
func (s *Store) Record(ctx context.Context, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log
			(id, session_id, query_type, route, method, confidence, cost, latency_ms, cache_tier, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.QueryID, rec.SessionID, rec.QueryType, rec.Route, rec.Method,
		rec.Confidence, rec.Cost, rec.LatencyMs, rec.CacheTier, boolToInt(rec.Degraded), rec.CreatedAt,
	)
	if err != nil {
		s.log.Warn().Err(err).Str("query_id", rec.QueryID).Msg("Failed to record analytics row")
	}
}

// GetSummary aggregates all stored rows.
func (s *Store) GetSummary(ctx context.Context) (Summary, error) {
	out := Summary{ByRoute: make(map[string]int64)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(cost), 0),
		       COALESCE(AVG(latency_ms), 0),
		       COALESCE(SUM(degraded), 0)
		FROM query_log`)
	if err := row.Scan(&out.TotalQueries, &out.TotalCost, &out.AvgLatencyMs, &out.Degraded); err != nil {
		return Summary{}, fmt.Errorf("failed to aggregate query log: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT route, COUNT(*) FROM query_log GROUP BY route`)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count routes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var route string
		var count int64
		if err := rows.Scan(&route, &count); err != nil {
			return Summary{}, fmt.Errorf("failed to scan route count: %w", err)
		}
		out.ByRoute[route] = count
		if route == "CACHE_HIT" {
			out.CacheHits = count
		}
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes rows older than the cutoff. Called by the
// daily maintenance job.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge query log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info().Int64("purged", n).Msg("Purged old analytics rows")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
