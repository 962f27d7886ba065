package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/aggregates"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/api"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/bus"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/cache"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/repository"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/rules"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/scorer"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FRAUDD_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting fraudd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FRAUDD_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if path := os.Getenv("FRAUDD_MODEL_PATH"); path != "" {
		cfg.Model.ArtifactPath = path
	}
	if dir := os.Getenv("FRAUDD_REPORT_DIR"); dir != "" {
		cfg.Model.ReportDir = dir
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Model.ArtifactPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize aggregate context service
	aggSvc := aggregates.NewService(repo, cacheImpl, logger)
	slog.Info("aggregate service initialized")

	// Initialize Rule Engine backed by the aggregate velocity counter
	velocityGetter := func(ctx context.Context, userID string, windowSecs int) (int64, error) {
		return aggSvc.VelocityCount(ctx, userID, time.Duration(windowSecs)*time.Second)
	}
	engine, err := rules.NewEngine(velocityGetter, 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Load model artifact. The service stays up without one so a model
	// can be trained and the process restarted, but /predict returns
	// 503 until then.
	var art *model.Artifact
	if a, err := model.LoadArtifact(cfg.Model.ArtifactPath); err != nil {
		slog.Warn("model artifact not loaded, scoring disabled",
			"path", cfg.Model.ArtifactPath,
			"error", err,
		)
	} else {
		art = a
		slog.Info("model artifact loaded",
			"algorithm", a.Algorithm,
			"trained_at", a.TrainedAt,
			"model_version", a.Version,
		)
	}

	sc, err := scorer.New(art, aggSvc, cfg.Model, logger,
		scorer.WithStore(repo),
		scorer.WithBus(busImpl),
		scorer.WithRules(engine),
	)
	if err != nil {
		slog.Error("failed to initialize scorer", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, sc, engine, cfg.Model.ReportDir, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", sc.Ready(),
	)

	printBanner(cfg, Version, sc.Ready())

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudd shutdown complete")
}

// loadRules loads rules from the database into the engine, falling
// back to the builtin mobile money rules when the database has none.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		dbRules = nil
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database, loading builtin rules")
	return engine.LoadRules(rules.BuiltinRules())
}

func printBanner(cfg *domain.Config, version string, modelLoaded bool) {
	fmt.Println()
	fmt.Println("  Mobile Money Fraud Detection")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Model:    loaded=%v\n", modelLoaded)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict              - Score a transaction")
	fmt.Println("    GET  /predictions/{id}     - Get prediction by ID")
	fmt.Println("    GET  /transactions/{id}    - Get transaction by ID")
	fmt.Println("    GET  /transaction-trends   - Daily volume trends")
	fmt.Println("    GET  /metrics              - Model metrics summary")
	fmt.Println("    GET  /feature-importance   - Feature importances")
	fmt.Println("    GET  /algorithm-comparison - Training comparison report")
	fmt.Println("    GET  /rules                - List all rules")
	fmt.Println("    POST /rules                - Create a new rule")
	fmt.Println("    POST /rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health               - Health check")
	fmt.Println()
}
