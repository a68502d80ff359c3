package main

// @title SalesPilot API
// @version 1.0
// @description Lead lifecycle automation: scoring, rep allocation and nurture orchestration.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordanlanch/salespilot/config"
	"github.com/jordanlanch/salespilot/pkg/allocation"
	"github.com/jordanlanch/salespilot/pkg/api/handlers"
	"github.com/jordanlanch/salespilot/pkg/cache"
	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/email"
	"github.com/jordanlanch/salespilot/pkg/jobs"
	"github.com/jordanlanch/salespilot/pkg/logger"
	"github.com/jordanlanch/salespilot/pkg/metrics"
	custommw "github.com/jordanlanch/salespilot/pkg/middleware"
	"github.com/jordanlanch/salespilot/pkg/notify"
	"github.com/jordanlanch/salespilot/pkg/nurture"
	"github.com/jordanlanch/salespilot/pkg/scheduler"
	"github.com/jordanlanch/salespilot/pkg/scoring"
	"github.com/jordanlanch/salespilot/pkg/store/memory"
	"github.com/jordanlanch/salespilot/pkg/store/postgres"
	"github.com/jordanlanch/salespilot/pkg/testdata"
)

const version = "0.1.0"

// dataStore is the full persistence surface the engine needs. Both the
// Postgres store and the in-memory development store satisfy it.
type dataStore interface {
	domain.ContactRepository
	domain.SalesRepRepository
	domain.TemplateRepository
	domain.EnrollmentRepository
	domain.ScheduledStepRepository
	domain.SignalSource
	domain.TenantSource
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize Sentry", "error", err)
		} else {
			log.Info("Sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Info("Sentry disabled (no DSN configured)")
	}

	// Persistence
	var store dataStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		if err := pg.Migrate(context.Background()); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = pg
		log.Info("connected to Postgres")
	} else {
		mem := memory.New()
		testdata.Seed(mem, 1, 25, 5)
		store = mem
		log.Warn("DATABASE_URL not set, using in-memory store seeded with demo data (data will not survive restarts)")
	}

	// Redis score cache (optional)
	var cacheClient *cache.Client
	if cfg.RedisURL != "" {
		var err error
		cacheClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer cacheClient.Close()
		log.Info("connected to Redis")
	} else {
		log.Info("score caching disabled (no REDIS_URL configured)")
	}

	prometheusMetrics := metrics.New()
	clock := domain.SystemClock{}

	// Services
	transport := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.SendGridAPIKey, log)
	notifier := notify.NewService(transport)
	scoringService := scoring.NewService(store, store, cacheClient, clock, log, cfg.ScoringBatchConcurrency)
	allocationService := allocation.NewService(store, store, notifier, log)
	nurtureService := nurture.NewService(store, store, store, store, transport, clock, log)

	// Scheduler pool: claims due steps and dispatches them.
	pool := scheduler.NewPool(store, nurtureService, clock, log, prometheusMetrics, scheduler.Options{
		PollInterval: cfg.SchedulerPollInterval,
		BatchSize:    cfg.SchedulerBatchSize,
		Workers:      cfg.SchedulerWorkers,
		ClaimTimeout: cfg.SchedulerClaimTimeout,
	})
	pool.Start(context.Background())

	// Maintenance jobs: stale-claim recovery and the nightly rescore.
	cronManager := jobs.NewCronManager(scoringService, store, pool, log)
	if err := cronManager.SetupJobs(); err != nil {
		log.Error("failed to configure cron jobs", "error", err)
		os.Exit(1)
	}
	cronManager.Start()

	// HTTP server
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(prometheusMetrics.Middleware())
	e.Use(echomw.Gzip())
	e.Use(echomw.Secure())

	rateLimiter := custommw.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	e.Use(rateLimiter.Middleware())

	healthHandler := handlers.NewHealthHandler(version)
	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	scoringHandler := handlers.NewScoringHandler(scoringService, prometheusMetrics)
	allocationHandler := handlers.NewAllocationHandler(allocationService, prometheusMetrics)
	nurtureHandler := handlers.NewNurtureHandler(nurtureService, prometheusMetrics)

	v1 := e.Group("/api/v1")
	v1.Use(custommw.TenantAuth(cfg.JWTSecret))

	v1.GET("/contacts/:id/score", scoringHandler.GetScore)
	v1.POST("/contacts/:id/score", scoringHandler.RecomputeScore)
	v1.POST("/scores/recompute", scoringHandler.RecomputeAll)

	v1.GET("/contacts/:id/suggestions", allocationHandler.SuggestReps)
	v1.POST("/contacts/:id/assign", allocationHandler.AssignRep)

	v1.POST("/contacts/:id/enrollments", nurtureHandler.Enroll)
	v1.GET("/contacts/:id/enrollments", nurtureHandler.ListEnrollments)
	v1.POST("/enrollments/:id/pause", nurtureHandler.Pause)
	v1.POST("/enrollments/:id/resume", nurtureHandler.Resume)
	v1.POST("/enrollments/:id/cancel", nurtureHandler.Cancel)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
		log.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cronManager.Stop()
	pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("shutdown complete")
}
