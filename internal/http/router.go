package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/geocoder89/eventhub/internal/auth"
	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/events"
	"github.com/geocoder89/eventhub/internal/events/handlers"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/idempotency"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/redisclient"
	eventsvc "github.com/geocoder89/eventhub/internal/service/event"
	registrationsvc "github.com/geocoder89/eventhub/internal/service/registration"

	apihandlers "github.com/geocoder89/eventhub/internal/http/handlers"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *gin.Engine {
	cfgEnv := os.Getenv("APP_ENV")

	if cfgEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("eventhub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{
		"http://localhost:3000",
	}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) //1MB max body
	r.Use(middlewares.RequireJSON())         // Require JSON content type for post and put requests.

	readyCheck := func() error {
		// postgres ping
		if pool != nil {

			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			err := pool.Ping(ctx)

			if err != nil {
				return err
			}
		}

		// Redis ping

		{
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			err := redis.Ping(ctx)

			if err != nil {
				return err
			}
		}

		return nil
	}

	// health
	h := apihandlers.NewHealthHandler(readyCheck)

	// prometheus registry shared by every repo's query instrumentation
	promReg := prometheus.NewRegistry()
	prom := observability.NewProm(promReg)

	// wire up repositories
	eventsRepo := postgres.NewEventsRepo(pool, prom)
	registrationRepo := postgres.NewRegistrationsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)
	refreshTokensRepo := postgres.NewRefreshTokensRepo(pool)
	outboxRepo := postgres.NewOutboxRepo(pool, prom)

	// cache: events list/detail, read-through
	var cacheStore cache.Store
	switch cfg.CacheKind {
	case "redis":
		cacheStore = cache.NewRedisCache(redis, "eventhub:events", cfg.EventCacheTTL)
	default:
		cacheStore = cache.New(cfg.EventCacheTTL)
	}

	// idempotency: client-supplied Idempotency-Key replay guard on Register
	var idemStore idempotency.Store
	switch cfg.IdempotencyKind {
	case "redis":
		idemStore = idempotency.NewRedisStore(redis)
	default:
		idemStore = idempotency.NewMemStore()
	}

	// domain event registry + dispatcher: every mutation that emits a
	// domain event appends it to the outbox inside the same
	// transaction (Dispatcher.Emit); sync handlers for
	// waitlist-affecting events run in-process before that transaction
	// commits, so seat promotion and position reindexing are never
	// stale by the time the caller sees a response.
	promotionHandler := handlers.NewPromotion(registrationRepo)
	reindexHandler := handlers.NewReindex(registrationRepo)

	registry := events.NewRegistry()
	for _, t := range []string{events.TypeRegistrationCancelled, events.TypeEventCapacityIncreased} {
		registry.RegisterSync(t, promotionHandler.OnSeatsFreed)
		registry.RegisterSync(t, reindexHandler.OnWaitlistMayHaveGap)
	}
	registry.RegisterSync(events.TypeWaitlistRemoval, reindexHandler.OnWaitlistMayHaveGap)

	dispatcher := events.NewDispatcher(registry, outboxRepo)

	// service layer: one transaction per command, event emission bundled in
	registrationService := registrationsvc.New(pool, registrationRepo, dispatcher, idemStore, cfg.IdempotencyTTL)
	eventService := eventsvc.New(pool, eventsRepo, dispatcher)

	// JWT Manager
	jwtManager := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute, // 60mins
		time.Duration(cfg.JWTRefreshTTLDays)*24*time.Hour,
	)
	// Wire up more handler
	eventsHandler := apihandlers.NewEventsHandlerWithCache(eventsRepo, eventService, cacheStore)
	registrationHandler := apihandlers.NewRegistrationHandler(registrationRepo, registrationService)
	usersHandler := apihandlers.NewUsersHandler(usersRepo, registrationRepo)
	adminOutboxHandler := apihandlers.NewAdminOutboxHandler(outboxRepo)
	authHandler := apihandlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, refreshTokensRepo, cfg)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	// rate limiter middleware

	loginLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)
	signupLimiter := middlewares.NewRateLimiter(3, 1*time.Minute)
	refreshLimiter := middlewares.NewRateLimiter(10, 1*time.Minute)
	registerLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)

	// public routes
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	r.POST("/signup", signupLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.SignUp)
	r.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	r.POST("/auth/refresh", refreshLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Refresh)
	r.POST("/auth/logout", authHandler.Logout)

	// public events browsing.
	r.GET("/events", eventsHandler.ListEvents)
	r.GET("/events/:id", eventsHandler.GetEventById)

	// authenticated routes only authenticated users, can access this route.

	authed := r.Group("/")

	authed.Use(authMiddleware.RequireAuth())

	{
		authed.POST("/events/:id/register", registerLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), registrationHandler.Register)
		authed.GET("/events/:id/registrations", registrationHandler.ListForEvent)
		authed.DELETE("/events/:id/registrations/:registrationId", registrationHandler.Cancel)
		authed.GET("/users/:id/export", usersHandler.Export)
	}

	// admin authorized route set up.

	admin := authed.Group("/")
	admin.Use(authMiddleware.RequireRole("admin"))

	{
		admin.POST("/events", eventsHandler.CreateEvent)
		admin.PUT("/events/:id", eventsHandler.UpdateEvent)
		admin.DELETE("/events/:id", eventsHandler.DeleteEvent)
		admin.POST("/events/:id/publish", eventsHandler.SetPublished)
		admin.POST("/events/:id/waitlist", eventsHandler.SetWaitlistOpen)
		admin.GET("/events/:id/waitlist", registrationHandler.ListWaitlist)
		admin.POST("/events/:id/registrations/:registrationId/confirm", registrationHandler.Confirm)
		admin.POST("/events/:id/registrations/:registrationId/attendance", registrationHandler.MarkAttendance)

		admin.DELETE("/users/:id", usersHandler.Erase)

		admin.GET("/admin/outbox/dead-letters", adminOutboxHandler.ListDeadLetters)
		admin.POST("/admin/outbox/dead-letters/:id/retry", adminOutboxHandler.Retry)
	}

	return r
}
