package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	ageHandler "agegate/internal/age/handler"
	ageMetrics "agegate/internal/age/metrics"
	"agegate/internal/age/service"
	"agegate/internal/age/store"
	"agegate/internal/age/tracer"
	"agegate/internal/age/workers/reaper"
	"agegate/internal/age/yivi"
	"agegate/internal/platform/config"
	"agegate/internal/platform/database"
	"agegate/internal/platform/health"
	"agegate/internal/platform/logger"
	platformMetrics "agegate/internal/platform/metrics"
	redisplatform "agegate/internal/platform/redis"
	"agegate/internal/token"
	httptransport "agegate/internal/transport/http"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.Yivi.BaseURL == "" {
		log.Error("YIVI_BASE_URL is required")
		os.Exit(1)
	}

	log.Info("initializing agegate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"age_attribute", cfg.Yivi.AgeAttribute,
	)

	healthHandler := health.New(cfg.Environment)

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck
		if err := pool.Migrate(context.Background()); err != nil {
			log.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	redisClient, err := redisplatform.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	// Store selection: Postgres when configured, then Redis for sessions,
	// memory otherwise. Outcomes need durable storage, so they only leave
	// memory when Postgres is available.
	var (
		sessions service.SessionStore
		outcomes service.OutcomeStore
	)
	reaperSessions := reaper.SessionStore(nil)
	switch {
	case pool != nil:
		pgSessions := store.NewSessionPostgres(pool.DB())
		sessions = pgSessions
		reaperSessions = pgSessions
		outcomes = store.NewOutcomePostgres(pool.DB())
		log.Info("using postgres stores")
	case redisClient != nil:
		// Redis reaps via TTL; the reaper pass is a no-op there.
		redisSessions := store.NewSessionRedis(redisClient.Client, cfg.SessionRetention)
		sessions = redisSessions
		reaperSessions = redisSessions
		outcomes = store.NewOutcomeMemory()
		log.Warn("using redis sessions with in-memory outcomes; outcomes are lost on restart")
	default:
		memSessions := store.NewSessionMemory()
		sessions = memSessions
		reaperSessions = memSessions
		outcomes = store.NewOutcomeMemory()
		log.Warn("using in-memory stores; all state is lost on restart")
	}

	yiviClient := yivi.New(cfg.Yivi.BaseURL, cfg.Yivi.BearerToken,
		yivi.WithTimeouts(cfg.Yivi.StartTimeout, cfg.Yivi.ResultTimeout),
	)

	collectors := ageMetrics.New()
	ageService := service.NewService(
		sessions,
		outcomes,
		yiviClient,
		cfg.Yivi.AgeAttribute,
		log,
		service.WithMetrics(collectors),
		service.WithTracer(tracer.NewOTel()),
	)

	tokenService := token.NewService(cfg.JWTSigningKey, "agegate", time.Hour)

	router := httptransport.NewRouter(
		ageHandler.New(ageService, log),
		healthHandler,
		tokenService,
		platformMetrics.NewHTTP(),
		log,
	)

	sessionReaper, err := reaper.New(reaperSessions, cfg.SessionRetention,
		reaper.WithInterval(cfg.ReapInterval),
		reaper.WithLogger(log),
		reaper.WithMetrics(collectors),
	)
	if err != nil {
		log.Error("reaper init failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := sessionReaper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
