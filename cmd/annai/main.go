package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/annai/internal/auth"
	"github.com/ashita-ai/annai/internal/classifier"
	"github.com/ashita-ai/annai/internal/config"
	"github.com/ashita-ai/annai/internal/invoker"
	"github.com/ashita-ai/annai/internal/mcp"
	"github.com/ashita-ai/annai/internal/ratelimit"
	"github.com/ashita-ai/annai/internal/server"
	"github.com/ashita-ai/annai/internal/service/router"
	"github.com/ashita-ai/annai/internal/service/sweep"
	"github.com/ashita-ai/annai/internal/storage"
	"github.com/ashita-ai/annai/internal/telemetry"
	"github.com/ashita-ai/annai/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ANNAI_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("annai starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply embedded migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Routing pipeline: classifier → invoker → orchestrator.
	cls := classifier.New(db)
	inv := invoker.New(nil, nil, logger)
	rt := router.New(db, cls, inv, logger)

	// Rate limiter for anonymous traffic and credential exchange.
	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = mem.Close() }()
		limiter = mem
	}

	// MCP server shares the routing pipeline with the HTTP API.
	mcpSrv := mcp.New(db, rt, server.ClaimsFromContext, logger, version)

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Router:              rt,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		DefaultPageLimit:    cfg.DefaultPageLimit,
	})

	// Seed the initial admin user when configured.
	if err := srv.Handlers().SeedAdmin(ctx, "admin", cfg.AdminAPIKey); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Background skill reachability sweep (disabled when interval is 0).
	if cfg.SweepInterval > 0 {
		sweeper := sweep.New(db, nil, logger)
		sweeper.Start(ctx, cfg.SweepInterval)
		logger.Info("skill reachability sweep enabled", "interval", cfg.SweepInterval.String())
	}

	// Serve until the context is cancelled by SIGINT/SIGTERM.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("annai stopped")
	return nil
}
