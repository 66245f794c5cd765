package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-gateway/internal/config"
	"parking-gateway/internal/logging"
	"parking-gateway/internal/marketplace"
	"parking-gateway/middleware/accesslog"
	"parking-gateway/middleware/ratelimit"
	"parking-gateway/middleware/ratelimit/application"
	"parking-gateway/middleware/ratelimit/infra"
	"parking-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	// Exemplo: middleware injetado direto na API, sem proxy na frente.
	if _, err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("env: %v", err)
	}
	cfg, err := config.Load(config.NewViper(), "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryStore(infra.WithJanitorEvery(cfg.RateLimit.JanitorEvery))
	store.StartJanitor(ctx)

	limiter, err := application.NewService(cfg.RateLimit.Policy(), store, application.WithLogger(logger))
	if err != nil {
		logger.Fatal("rate limiter", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accesslog.Middleware(logger))
	r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger}))
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Limiter:   limiter,
		Stats:     infra.NewMemoryStatsStore(),
		KeyHeader: "X-Api-Key", // ou vazio para usar o IP
		Logger:    logger,
	}))
	marketplace.Routes(r)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p := limiter.Policy()
	logger.Info("example server listening",
		zap.String("addr", addr),
		zap.Duration("window", p.Window),
		zap.Int64("max_requests", p.MaxRequests))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
