// Package main is the entry point for the finsight query service.
// The service turns natural-language financial questions into routed,
// budgeted pipeline runs: cheap queries hit caches or a quick model,
// research queries go through search-augmented fetching, and every
// query is accounted against per-session budgets.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/aristath/finsight/internal/analytics"
	"github.com/aristath/finsight/internal/cache"
	"github.com/aristath/finsight/internal/clients/openai"
	"github.com/aristath/finsight/internal/clients/perplexity"
	"github.com/aristath/finsight/internal/clients/stooq"
	"github.com/aristath/finsight/internal/clients/yahoo"
	"github.com/aristath/finsight/internal/config"
	"github.com/aristath/finsight/internal/cost"
	"github.com/aristath/finsight/internal/orchestrator"
	"github.com/aristath/finsight/internal/router"
	"github.com/aristath/finsight/internal/scheduler"
	"github.com/aristath/finsight/internal/server"
	"github.com/aristath/finsight/internal/session"
	"github.com/aristath/finsight/internal/symbols"
	"github.com/aristath/finsight/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting finsight")

	// Core state: symbol registry, conversation memory, response cache,
	// budget accounting.
	registry := symbols.NewRegistry(cfg.ExtraSymbols...)
	sessions := session.NewManager(cfg.Session, log)
	queryCache := cache.New(cfg.Cache, registry, log)
	optimizer := cost.NewOptimizer(cfg.Budget, cost.NewTokenCounter(), log)

	// External clients. The model and search providers are optional:
	// without keys the pipeline falls back to rule-based understanding
	// and direct market-data fetching.
	var llm *openai.Client
	if cfg.OpenAIAPIKey != "" {
		llm = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIQuickModel, log)
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, running with rule-based understanding only")
	}

	var search *perplexity.Client
	if cfg.PerplexityAPIKey != "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.Fetch.SearchRPS), cfg.Fetch.SearchBurst)
		search = perplexity.NewClient(cfg.PerplexityAPIKey, limiter, log)
	} else {
		log.Warn().Msg("PERPLEXITY_API_KEY not set, search-augmented fetching disabled")
	}

	primary := yahoo.NewAdapter(yahoo.NewClient(log))
	secondary := stooq.NewAdapter(stooq.NewClient(log))

	// Routing. Model-assisted verdicts need a model client; without one
	// the router runs patterns and heuristics only.
	probe := router.NewLoadProbe()
	var verdicts router.Strategy
	if llm != nil {
		verdicts = router.NewModelAssistedRouter(llm, log)
	}
	queryRouter := router.New(cfg.Router, optimizer, verdicts, probe, log)

	// Query-log store for the stats endpoint and nightly rollups.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}
	store, err := analytics.NewStore(filepath.Join(cfg.DataDir, "analytics.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open analytics store")
	}
	defer store.Close()

	deps := orchestrator.Deps{
		Sessions:  sessions,
		Cache:     queryCache,
		Registry:  registry,
		Router:    queryRouter,
		Budget:    optimizer,
		Primary:   primary,
		Secondary: secondary,
		History:   primary,
		Analytics: store,
	}
	// Assign optional providers only when constructed, so the
	// orchestrator sees a nil interface rather than a nil pointer.
	if llm != nil {
		deps.LLM = llm
	}
	if search != nil {
		deps.Search = search
	}
	orch := orchestrator.New(cfg.Fetch, deps, log)

	// Background maintenance: cache and session sweeps, budget window
	// resets, nightly purges of stale accounting and old query logs.
	sched := scheduler.New(log)
	sched.Every("cache_sweep", cfg.Cache.SweepInterval, queryCache.Sweep)
	sched.Every("session_sweep", cfg.Session.SweepInterval, sessions.SweepNow)
	sched.Every("budget_reset", cfg.Budget.ResetInterval, optimizer.ResetCheck)
	if err := sched.Cron("nightly_purge", "30 3 * * *", func() {
		purged := optimizer.PurgeStaleSessions()
		log.Info().Int("sessions", purged).Msg("Purged stale budget sessions")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		cutoff := time.Now().AddDate(0, 0, -30)
		rows, err := store.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("Query-log purge failed")
			return
		}
		log.Info().Int64("rows", rows).Msg("Purged old query-log rows")
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to register nightly purge")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Handler:   orch,
		Cache:     queryCache,
		Router:    queryRouter,
		Budget:    optimizer,
		Analytics: store,
		Sessions:  sessions,
		Load:      probe,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
