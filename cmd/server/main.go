// Package main is the entrypoint for the AgriSmart API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/analysis"
	"github.com/kiranshivaraju/agrismart/internal/api"
	"github.com/kiranshivaraju/agrismart/internal/api/handler"
	mw "github.com/kiranshivaraju/agrismart/internal/api/middleware"
	"github.com/kiranshivaraju/agrismart/internal/cache"
	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/internal/disease"
	"github.com/kiranshivaraju/agrismart/internal/disease/backend"
	"github.com/kiranshivaraju/agrismart/internal/geocode"
	"github.com/kiranshivaraju/agrismart/internal/ifs"
	"github.com/kiranshivaraju/agrismart/internal/metrics"
	"github.com/kiranshivaraju/agrismart/internal/store"
)

const shutdownTimeout = 30 * time.Second

// memoryCacheCleanup is the sweep interval of the in-process cache used when
// REDIS_URL is unset.
const memoryCacheCleanup = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "disease_backend", cfg.Disease.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the query log store (runs migrations)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("query log store ready")

	// 3. Cache: Redis when configured, in-process otherwise
	c, closeCache, err := newCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Metrics
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// 5. Build adapters, orchestrator and router
	router, closeAdapters, err := newRouter(cfg, st, c, m)
	if err != nil {
		return err
	}
	defer closeAdapters.Close()

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func() error, error) {
	if cfg.URL == "" {
		slog.Info("REDIS_URL not set, using in-process cache")
		return cache.NewMemoryCache(memoryCacheCleanup), func() error { return nil }, nil
	}

	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return redisCache, redisCache.Close, nil
}

// newRouter wires the disease and IFS adapters into the orchestrator and
// builds the HTTP router. The returned closer releases the disease model.
func newRouter(cfg *config.Config, st store.Store, c cache.Cache, m *metrics.Metrics) (http.Handler, io.Closer, error) {
	loader, err := backend.NewLoader(cfg.Disease)
	if err != nil {
		return nil, nil, fmt.Errorf("create disease backend: %w", err)
	}
	classifier := disease.NewService(loader, cfg.Disease.ClassesPath, cfg.Disease.InputSize, m)
	classifier.MaxPixels = cfg.Disease.MaxPixels

	geocoder := geocode.NewNominatimClient(cfg.Geocode, c, m)
	recommender := ifs.NewRecommender(cfg.IFS.CSVPath, geocoder)

	svc := analysis.NewService(classifier, recommender, st, cfg.Server.AdapterTimeout, m)

	auth := mw.NewAuth(cfg.Server.APIKeyHash)
	if !auth.Enabled() {
		slog.Warn("AGRISMART_API_KEY_HASH not set, analysis and history routes are unauthenticated")
	}

	router := api.NewRouter(api.Dependencies{
		Auth:      auth,
		RateLimit: mw.NewRateLimit(c, cfg.Server.RequestsPerMinute),
		Metrics:   m,

		HealthHandler: handler.NewHealthHandler(),
		ReadyHandler: handler.NewReadyHandler(map[string]handler.Pinger{
			"database":  st,
			"cache":     c,
			"ifs_table": handler.PingFunc(func(context.Context) error { return recommender.Ready() }),
		}),
		CheckHandler:   handler.NewCheckHandler(artifacts(cfg)),
		AnalyzeHandler: handler.NewAnalyzeHandler(svc, cfg.Server.MaxUploadBytes),
		ListHistory:    handler.NewListHistoryHandler(st),
		GetHistory:     handler.NewGetHistoryHandler(st),
	})
	return router, classifier, nil
}

// artifacts lists the files the configured backends read from disk. The
// TF Serving backend holds its model remotely.
func artifacts(cfg *config.Config) []handler.Artifact {
	out := []handler.Artifact{
		{Name: "disease_classes", Path: cfg.Disease.ClassesPath},
		{Name: "ifs_csv", Path: cfg.IFS.CSVPath},
	}
	if cfg.Disease.Backend == "tflite" {
		out = append(out, handler.Artifact{Name: "disease_model", Path: cfg.Disease.ModelPath})
	}
	return out
}
