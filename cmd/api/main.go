package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/konfliktlab/konfliktsim/backend/internal/config"
	"github.com/konfliktlab/konfliktsim/backend/internal/db"
	"github.com/konfliktlab/konfliktsim/backend/internal/handler"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/ai"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/session"
	"github.com/konfliktlab/konfliktsim/backend/internal/service/sim"
	"github.com/konfliktlab/konfliktsim/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if _, err := telemetry.InitLogger(cfg.Telemetry); err != nil {
		slog.Error("failed to initialize logging", "error", err)
		os.Exit(1)
	}

	cleanup, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	conn, err := db.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	scenarios := db.NewScenarioStore(conn)
	if err := scenarios.SeedPresets(ctx); err != nil {
		slog.Error("failed to seed preset scenarios", "error", err)
		os.Exit(1)
	}
	archive := db.NewSessionArchive(conn)

	sessions := session.NewStore()
	sessions.StartSweeper(ctx, cfg.Simulation.SessionTTL)

	gen, classifier, aiReady := newGenerator(ctx, cfg)

	opts := []sim.Option{sim.WithArchiver(archive)}
	if cfg.Simulation.SmartRouting && aiReady {
		opts = append(opts, sim.WithSuggester(sim.NewSmartSuggester(classifier)))
		slog.Info("smart routing enabled")
	}
	engine := sim.NewEngine(sessions, gen, ai.NewPromptLibrary(cfg.Simulation.PromptsDir), cfg.Simulation, opts...)

	router := handler.NewRouter(engine, sessions, scenarios, archive, aiReady)

	startServer(ctx, cfg.Server, router)
}

// newGenerator selects the configured provider. Without credentials the
// server still starts, reports degraded health and rejects generation.
func newGenerator(ctx context.Context, cfg *config.Config) (ai.Generator, ai.Classifier, bool) {
	switch cfg.AI.Provider {
	case config.ProviderAnthropic:
		if !cfg.Anthropic.Enabled() {
			slog.Warn("ANTHROPIC_API_KEY not set, generation disabled")
			return ai.Disabled{}, ai.Disabled{}, false
		}
		svc, err := ai.NewAnthropicService(cfg.Anthropic)
		if err != nil {
			slog.Error("failed to initialize Anthropic service", "error", err)
			return ai.Disabled{}, ai.Disabled{}, false
		}
		slog.Info("generation provider ready", "provider", config.ProviderAnthropic, "model", cfg.Anthropic.Model)
		return svc, svc, true
	default:
		if !cfg.AI.Enabled() {
			slog.Warn("Ark credentials not set, generation disabled")
			return ai.Disabled{}, ai.Disabled{}, false
		}
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			slog.Error("failed to initialize Ark service", "error", err)
			return ai.Disabled{}, ai.Disabled{}, false
		}
		slog.Info("generation provider ready", "provider", config.ProviderArk, "model", cfg.AI.Model)
		return svc, svc, true
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	slog.Info("konfliktsim backend listening", "addr", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
