// Package config provides configuration management functionality.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	LogLevel     string
	DevMode      bool
	DataDir      string   // Directory for the analytics database
	ExtraSymbols []string // Tickers recognized on top of the built-in set

	OpenAIAPIKey     string
	OpenAIModel      string // Primary model for understanding/synthesis
	OpenAIQuickModel string // Cheaper model for quick answers and routing
	PerplexityAPIKey string

	Cache   CacheConfig
	Budget  BudgetConfig
	Session SessionConfig
	Router  RouterConfig
	Fetch   FetchConfig
}

// CacheConfig holds per-tier cache tunables.
// The similarity threshold and tier sizes are business tunables,
// not protocol constants.
type CacheConfig struct {
	ExactTTL    time.Duration
	ExactMax    int
	SemanticTTL time.Duration
	SemanticMax int
	SymbolTTL   time.Duration
	SymbolMax   int
	PatternTTL  time.Duration
	PatternMax  int

	SimilarityThreshold float64 // Jaccard, semantic tier
	SemanticScanLimit   int     // Max recent entries scanned per lookup
	SweepInterval       time.Duration
}

// BudgetConfig holds global and per-tier spending ceilings in USD.
type BudgetConfig struct {
	GlobalHourly   float64
	GlobalDaily    float64
	GlobalRequests int // Max requests per hour

	// Per-session ceilings, keyed by user tier
	FreeHourly           float64
	FreeDaily            float64
	FreePerRequest       float64
	PremiumHourly        float64
	PremiumDaily         float64
	PremiumPerRequest    float64
	EnterpriseHourly     float64
	EnterpriseDaily      float64
	EnterprisePerRequest float64

	SearchFee     float64 // Per-request fee for search-augmented calls
	ResetInterval time.Duration
}

// SessionConfig holds conversation memory tunables.
type SessionConfig struct {
	TTL           time.Duration // Idle time before a session is evicted
	SweepInterval time.Duration
	MaxSymbols    int
	MaxHistory    int
}

// RouterConfig holds routing tunables.
type RouterConfig struct {
	CacheRepeatWindow    time.Duration // Exact repeat window for cache potential
	CacheSimilarWindow   time.Duration // Similar-query window for cache potential
	SimilarityThreshold  float64       // Levenshtein-based, cache potential
	BatchWindow          time.Duration
	WindowSize           int // Rolling query window
	ModelAssistedEnabled bool
}

// FetchConfig holds data-fetch tunables.
type FetchConfig struct {
	PriceTimeout    time.Duration // Price-class requests
	AnalysisTimeout time.Duration // Analysis-class requests
	ChunkSize       int           // Parallel fetch chunk size
	SearchRPS       float64       // Search API rate limit (requests/sec)
	SearchBurst     int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvAsInt("PORT", 8080),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		DataDir:          getEnv("FINSIGHT_DATA_DIR", "./data"),
		ExtraSymbols:     getEnvAsList("FINSIGHT_EXTRA_SYMBOLS"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIQuickModel: getEnv("OPENAI_QUICK_MODEL", "gpt-4o-mini"),
		PerplexityAPIKey: getEnv("PERPLEXITY_API_KEY", ""),

		Cache: CacheConfig{
			ExactTTL:            getEnvAsDuration("CACHE_EXACT_TTL", 30*time.Second),
			ExactMax:            getEnvAsInt("CACHE_EXACT_MAX", 1000),
			SemanticTTL:         getEnvAsDuration("CACHE_SEMANTIC_TTL", 60*time.Second),
			SemanticMax:         getEnvAsInt("CACHE_SEMANTIC_MAX", 500),
			SymbolTTL:           getEnvAsDuration("CACHE_SYMBOL_TTL", 30*time.Second),
			SymbolMax:           getEnvAsInt("CACHE_SYMBOL_MAX", 2000),
			PatternTTL:          getEnvAsDuration("CACHE_PATTERN_TTL", 300*time.Second),
			PatternMax:          getEnvAsInt("CACHE_PATTERN_MAX", 300),
			SimilarityThreshold: getEnvAsFloat("CACHE_SIMILARITY_THRESHOLD", 0.85),
			SemanticScanLimit:   getEnvAsInt("CACHE_SEMANTIC_SCAN_LIMIT", 50),
			SweepInterval:       getEnvAsDuration("CACHE_SWEEP_INTERVAL", 60*time.Second),
		},

		Budget: BudgetConfig{
			GlobalHourly:         getEnvAsFloat("BUDGET_GLOBAL_HOURLY", 5.0),
			GlobalDaily:          getEnvAsFloat("BUDGET_GLOBAL_DAILY", 50.0),
			GlobalRequests:       getEnvAsInt("BUDGET_GLOBAL_REQUESTS", 1000),
			FreeHourly:           getEnvAsFloat("BUDGET_FREE_HOURLY", 0.10),
			FreeDaily:            getEnvAsFloat("BUDGET_FREE_DAILY", 0.50),
			FreePerRequest:       getEnvAsFloat("BUDGET_FREE_PER_REQUEST", 0.05),
			PremiumHourly:        getEnvAsFloat("BUDGET_PREMIUM_HOURLY", 1.0),
			PremiumDaily:         getEnvAsFloat("BUDGET_PREMIUM_DAILY", 5.0),
			PremiumPerRequest:    getEnvAsFloat("BUDGET_PREMIUM_PER_REQUEST", 0.25),
			EnterpriseHourly:     getEnvAsFloat("BUDGET_ENTERPRISE_HOURLY", 10.0),
			EnterpriseDaily:      getEnvAsFloat("BUDGET_ENTERPRISE_DAILY", 50.0),
			EnterprisePerRequest: getEnvAsFloat("BUDGET_ENTERPRISE_PER_REQUEST", 1.0),
			SearchFee:            getEnvAsFloat("BUDGET_SEARCH_FEE", 0.005),
			ResetInterval:        getEnvAsDuration("BUDGET_RESET_INTERVAL", 5*time.Minute),
		},

		Session: SessionConfig{
			TTL:           getEnvAsDuration("SESSION_TTL", 30*time.Minute),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			MaxSymbols:    getEnvAsInt("SESSION_MAX_SYMBOLS", 10),
			MaxHistory:    getEnvAsInt("SESSION_MAX_HISTORY", 5),
		},

		Router: RouterConfig{
			CacheRepeatWindow:    getEnvAsDuration("ROUTER_CACHE_REPEAT_WINDOW", 30*time.Second),
			CacheSimilarWindow:   getEnvAsDuration("ROUTER_CACHE_SIMILAR_WINDOW", 5*time.Minute),
			SimilarityThreshold:  getEnvAsFloat("ROUTER_SIMILARITY_THRESHOLD", 0.85),
			BatchWindow:          getEnvAsDuration("ROUTER_BATCH_WINDOW", 200*time.Millisecond),
			WindowSize:           getEnvAsInt("ROUTER_WINDOW_SIZE", 50),
			ModelAssistedEnabled: getEnvAsBool("ROUTER_MODEL_ASSISTED", true),
		},

		Fetch: FetchConfig{
			PriceTimeout:    getEnvAsDuration("FETCH_PRICE_TIMEOUT", 5*time.Second),
			AnalysisTimeout: getEnvAsDuration("FETCH_ANALYSIS_TIMEOUT", 10*time.Second),
			ChunkSize:       getEnvAsInt("FETCH_CHUNK_SIZE", 5),
			SearchRPS:       getEnvAsFloat("FETCH_SEARCH_RPS", 2.0),
			SearchBurst:     getEnvAsInt("FETCH_SEARCH_BURST", 2),
		},
	}

	return cfg, nil
}

// getEnv retrieves an environment variable with a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer with a fallback
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float with a fallback
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean with a fallback
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsList retrieves a comma-separated environment variable,
// dropping empty entries. An unset variable yields nil.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAsDuration retrieves an environment variable as a duration with a fallback.
// Accepts Go duration strings ("30s", "5m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
