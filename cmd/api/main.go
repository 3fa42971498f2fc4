package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/moltgrid/backend/internal/admin"
	"github.com/moltgrid/backend/internal/agents"
	"github.com/moltgrid/backend/internal/codec"
	"github.com/moltgrid/backend/internal/config"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/queue"
	"github.com/moltgrid/backend/internal/ratelimit"
	"github.com/moltgrid/backend/internal/relay"
	"github.com/moltgrid/backend/internal/repository"
	"github.com/moltgrid/backend/internal/router"
	"github.com/moltgrid/backend/internal/scheduler"
	"github.com/moltgrid/backend/internal/uptime"
	"github.com/moltgrid/backend/internal/webhooks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to PostgreSQL")

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		logger.Error("Schema setup failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		logger.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		logger.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	valueCodec, err := codec.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("Invalid MOLTGRID_ENCRYPTION_KEY", "error", err)
		os.Exit(1)
	}
	if valueCodec.Enabled() {
		logger.Info("Payload encryption enabled")
	}

	agentRepo := repository.NewAgentRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	scheduleRepo := repository.NewScheduleRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	webhookRepo := repository.NewWebhookRepo(pool)
	rateRepo := repository.NewRateRepo(pool)
	uptimeRepo := repository.NewUptimeRepo(pool)

	// Webhook delivery: enqueue func is set after the River client is
	// created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn webhooks.EnqueueFunc
	enqueueDelivery := func(ctx context.Context, args webhooks.DeliverWebhookArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, args)
	}
	dispatcher := webhooks.NewDispatcher(webhookRepo, enqueueDelivery, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, webhooks.NewDeliverWorker(cfg.WebhookTimeout))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		logger.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, args webhooks.DeliverWebhookArgs) error {
		_, err := riverClient.Insert(ctx, args, &river.InsertOpts{MaxAttempts: cfg.WebhookMaxAttempts})
		return err
	}
	insertMu.Unlock()

	queueSvc := queue.NewService(jobRepo, valueCodec, dispatcher)
	scheduleSvc := scheduler.NewService(scheduleRepo)
	webhookSvc := webhooks.NewService(webhookRepo)
	registry := relay.NewRegistry()
	relaySvc := relay.NewService(messageRepo, agentRepo, valueCodec, registry, dispatcher)
	agentSvc := agents.NewService(agentRepo)
	adminSvc := admin.NewService(cfg.AdminHash, cfg.JWTSecret)

	monitor := uptime.NewMonitor(uptimeRepo, uptime.HTTPProbe(cfg.SelfURL, 10*time.Second), cfg.UptimeTick, logger)
	schedLoop := scheduler.New(scheduleRepo, queueSvc, cfg.SchedulerTick, logger)
	limiter := ratelimit.New(rateRepo, cfg.RateLimitPerWindow, cfg.RateWindow)

	handlers := router.Handlers{
		Agents: agents.NewHandler(agentSvc, pool, agents.PlatformSources{
			Agents:    agentRepo,
			Jobs:      jobRepo,
			Schedules: scheduleRepo,
			Webhooks:  webhookRepo,
			Uptime:    monitor,
		}, agents.AgentSources{
			Jobs:      jobRepo,
			Schedules: scheduleRepo,
			Webhooks:  webhookRepo,
			Messages:  messageRepo,
		}, logger),
		Queue:     queue.NewHandler(queueSvc, logger),
		Schedules: scheduler.NewHandler(scheduleSvc, logger),
		Webhooks:  webhooks.NewHandler(webhookSvc, logger),
		Relay:     relay.NewHandler(relaySvc, logger),
		RelayWS:   relay.NewWSHandler(relaySvc, registry, agentRepo, logger),
		Admin: admin.NewHandler(adminSvc, admin.DashboardSources{
			Agents:    agentRepo,
			Jobs:      jobRepo,
			Schedules: scheduleRepo,
			Webhooks:  webhookRepo,
			Uptime:    monitor,
		}, logger),
	}

	authn := middleware.APIKeyAuth(agentRepo)
	limit := middleware.RateLimit(limiter, logger)
	mux := router.New(handlers, authn, limit)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
	}).Handler(mux)

	// Background loops
	if err := riverClient.Start(ctx); err != nil {
		logger.Error("River client failed to start", "error", err)
		os.Exit(1)
	}
	go schedLoop.Run(ctx)
	go monitor.Run(ctx)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: corsHandler,
	}
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Error("River shutdown failed", "error", err)
	}
}
