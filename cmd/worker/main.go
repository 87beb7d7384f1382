package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/events/handlers"
	"github.com/geocoder89/eventhub/internal/notifications"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/worker"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) init tracing first (so all spans/logs can attach)
	shutdownTracer, err := observability.InitTracer(context.Background(), "eventhub-worker", "localhost:4317")
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 2) setup slog + trace handler (so logs include trace_id/span_id)
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(observability.NewTraceHandler(base))
	slog.SetDefault(logger)

	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Prom registry, served at /metrics by the worker's health server
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	outboxRepo := postgres.NewOutboxRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)
	eventsRepo := postgres.NewEventsRepo(pool, prom)
	deliveriesRepo := postgres.NewNotificationsDeliveriesRepo(pool)

	baseNotifier := notifications.NewLogNotifier()
	protectedNotifier := notifications.NewProtectedNotifier(baseNotifier, notifications.ProtectedNotifierConfig{
		Timeout:          2 * time.Second,
		FailureThreshold: 3,
		Cooldown:         15 * time.Second,
		HalfOpenMaxCalls: 1,
	})

	// Only the async handlers run here: Promotion and Reindex are
	// sync-only and already ran inside the API process's transaction
	// before the event reached the outbox.
	registry := events.NewRegistry()

	// topics is the per-event "eventRegistration_<event_id>" pub/sub
	// fan-out; it lives here because the notifier handler - the only
	// thing that publishes to it - runs in this process.
	topics := events.NewTopics()
	notifierHandler := handlers.NewNotifier(protectedNotifier, usersRepo, eventsRepo, deliveriesRepo, topics)
	auditHandler := handlers.NewAudit(slog.Default())

	for _, t := range []string{
		events.TypeRegistrationCreated,
		events.TypeRegistrationWaitlisted,
		events.TypeRegistrationPromoted,
		events.TypeRegistrationCancelled,
	} {
		registry.RegisterAsync(t, notifierHandler.Handle)
	}
	for _, t := range []string{
		events.TypeRegistrationCreated,
		events.TypeRegistrationWaitlisted,
		events.TypeRegistrationPromoted,
		events.TypeRegistrationCancelled,
		events.TypeWaitlistRemoval,
		events.TypeWaitlistPositionChanged,
		events.TypeEventCapacityIncreased,
	} {
		registry.RegisterAsync(t, auditHandler.Handle)
	}

	dispatcher := events.NewDispatcher(registry, outboxRepo)

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	healthAddr := os.Getenv("WORKER_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}

	w := worker.New(worker.Config{
		PollInterval:  cfg.OutboxPollEvery,
		WorkerID:      workerID,
		Concurrency:   1,
		ShutdownGrace: 10 * time.Second,
		LockTTL:       cfg.OutboxClaimTTL,
		HealthAddr:    healthAddr,
	}, outboxRepo, dispatcher)
	w.PromRegistry = reg

	slog.Default().InfoContext(ctx, "worker.start",
		"worker_id", workerID,
		"health_addr", healthAddr,
	)

	if err := w.Run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "worker.run_failed", "err", err)
	}

	slog.Default().InfoContext(context.Background(), "worker.shutdown_complete")
}
