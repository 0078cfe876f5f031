package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dentbot/cmd/mainconfig"
	"github.com/wolfman30/dentbot/internal/api/router"
	"github.com/wolfman30/dentbot/internal/app/bootstrap"
	"github.com/wolfman30/dentbot/internal/compliance"
	appconfig "github.com/wolfman30/dentbot/internal/config"
	"github.com/wolfman30/dentbot/internal/conversation"
	"github.com/wolfman30/dentbot/internal/observability/metrics"
	"github.com/wolfman30/dentbot/internal/webchat"
	"github.com/wolfman30/dentbot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dentbot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"booking_store", cfg.BookingStore,
		"session_store", cfg.SessionStore,
		"use_llm", cfg.UseLLM,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, negotiationMetrics := setupMetrics()
	app, err := buildApp(ctx, cfg, logger, metricsHandler, negotiationMetrics)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Create HTTP server. WriteTimeout is left to the handlers because the
	// websocket route holds connections open.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// apiApp is the wired HTTP handler plus the connections it owns.
type apiApp struct {
	handler http.Handler
	service *conversation.NegotiationService
	closers []func()
}

func (a *apiApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *metrics.NegotiationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewNegotiationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, metricsHandler http.Handler, m *metrics.NegotiationMetrics) (*apiApp, error) {
	app := &apiApp{}
	fail := func(err error) (*apiApp, error) {
		app.Close()
		return nil, err
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	var sqlDB *sql.DB
	if pool != nil {
		sqlDB = stdlib.OpenDBFromPool(pool)
		app.closers = append(app.closers, pool.Close, func() { _ = sqlDB.Close() })
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, cfg.SessionStore == "" || cfg.SessionStore == "redis")
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	bookingStore, bookingKind, err := bootstrap.BuildBookingStore(cfg, pool, logger)
	if err != nil {
		return fail(err)
	}
	turnStore, sessionKind, err := bootstrap.BuildTurnStore(cfg, redisClient, sqlDB, logger)
	if err != nil {
		return fail(err)
	}
	logger.Info("stores ready", "booking_store", bookingKind, "session_store", sessionKind)

	deps := bootstrap.NegotiationDeps{
		Turns:   turnStore,
		Store:   bookingStore,
		Metrics: m,
	}
	if cfg.UseLLM {
		llm, err := mainconfig.BuildLLMClients(ctx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		app.closers = append(app.closers, llm.Close)
		if llm.Primary == nil {
			logger.Warn("USE_LLM is set but the selected provider is not configured; using deterministic parsing",
				"provider", cfg.LLMProvider)
		}
		deps.LLM = llm.Primary
		deps.Model = llm.Model
	}

	var auditSvc *compliance.AuditService
	if sqlDB != nil {
		auditSvc = compliance.NewAuditService(sqlDB)
		deps.Audit = auditSvc
	}

	svc, extractor, err := bootstrap.BuildNegotiationService(cfg, deps, logger)
	if err != nil {
		return fail(err)
	}
	app.service = svc

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(svc, logger),
		WebChatHandler:      webchat.NewHandler(svc, logger),
		MetricsHandler:      metricsHandler,
		Health: router.HealthConfig{
			UseLLM:       cfg.UseLLM,
			LLMAvailable: extractor.GenerativeAvailable(),
			Model:        deps.Model,
		},
		PatientAuthSecret: cfg.AuthJWTSecret,
		AdminAuthSecret:   cfg.AdminJWTSecret,
	}
	if auditSvc != nil {
		routerCfg.AuditHandler = compliance.NewAuditHandler(auditSvc, logger)
	}
	app.handler = router.New(routerCfg)
	return app, nil
}
