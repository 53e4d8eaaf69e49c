// Muletrace - Money-mule network detection from raw transaction ledgers.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/open-forensics/muletrace/internal/api"
	"github.com/open-forensics/muletrace/internal/bus"
	"github.com/open-forensics/muletrace/internal/cache"
	"github.com/open-forensics/muletrace/internal/domain"
	"github.com/open-forensics/muletrace/internal/export"
	"github.com/open-forensics/muletrace/internal/forensics"
	"github.com/open-forensics/muletrace/internal/repository"
	"github.com/open-forensics/muletrace/internal/worker"
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
	if os.Getenv("MULETRACE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting muletrace",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("MULETRACE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize optional graph export
	exporter, err := export.New(ctx, cfg.Export)
	if err != nil {
		slog.Error("failed to initialize graph export", "error", err)
		os.Exit(1)
	}
	if exporter != nil {
		defer exporter.Close(context.Background())
		slog.Info("graph export initialized", "uri", cfg.Export.URI)
	}

	// Initialize Forensic Engine
	engine, err := forensics.New(cfg.Engine)
	if err != nil {
		slog.Error("failed to initialize forensic engine", "error", err)
		os.Exit(1)
	}
	slog.Info("forensic engine initialized",
		"structuring_threshold", cfg.Engine.StructuringThreshold,
		"cycle_max_length", cfg.Engine.CycleMaxLength,
		"allowlist_rules", len(cfg.Engine.AllowlistRules),
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("MULETRACE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, exporter)

		tenantIDs := []string{}
		if envTenants := os.Getenv("MULETRACE_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, exporter, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("muletrace is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("muletrace shutdown complete")
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("MULETRACE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("MULETRACE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("MULETRACE_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("MULETRACE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("MULETRACE_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("MULETRACE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("MULETRACE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("MULETRACE_EXPORT_URI"); v != "" {
		cfg.Export.Enabled = true
		cfg.Export.URI = v
		cfg.Export.Username = os.Getenv("MULETRACE_EXPORT_USER")
		cfg.Export.Password = os.Getenv("MULETRACE_EXPORT_PASSWORD")
		cfg.Export.Database = os.Getenv("MULETRACE_EXPORT_DATABASE")
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                 MULETRACE")
	fmt.Println("       Forensic Money-Mule Detection Engine")
	fmt.Println("       Follow the money. Find the mules.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                 - Analyze a transaction ledger")
	fmt.Println("    POST /analyze/stream          - Analyze with SSE progress")
	fmt.Println("    GET  /analyses                - List recent analyses")
	fmt.Println("    GET  /analyses/{id}           - Get analysis by ID")
	fmt.Println("    GET  /accounts/{id}/profile   - Account behavioral deep-dive")
	fmt.Println("    GET  /allowlist               - List allowlisted accounts")
	fmt.Println("    POST /allowlist               - Allowlist an account")
	fmt.Println("    DELETE /allowlist/{accountID} - Remove allowlist entry")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
