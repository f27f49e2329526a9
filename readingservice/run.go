// Package readingservice wires configuration, storage, cache, generation
// and HTTP transport into the running reading service.
package readingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/api"
	"github.com/chandrahoro/reading-service/internal/api/recovery"
	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/config"
	"github.com/chandrahoro/reading-service/internal/generation"
	"github.com/chandrahoro/reading-service/internal/health"
	"github.com/chandrahoro/reading-service/internal/invalidation"
	"github.com/chandrahoro/reading-service/internal/logger"
	"github.com/chandrahoro/reading-service/internal/services"
	"github.com/chandrahoro/reading-service/internal/store"
	"github.com/chandrahoro/reading-service/internal/store/postgres"
	"github.com/chandrahoro/reading-service/internal/store/sqlite"
)

// Run starts the reading service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("reading-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("cache_driver", cfg.CacheDriver).
		Int("http_port", cfg.HTTPPort).
		Str("generation_url", cfg.GenerationURL).
		Msg("Reading service starting")

	ctx, stop := newServerContext()
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := buildRouter(deps, cfg, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	deps.healthProbe = svcHealth.IsHealthy

	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// Deps bundles the wired components so worker entrypoints can reuse the
// same construction path.
type Deps struct {
	Store    store.Store
	KV       cache.Store
	Cache    *cache.ReadingCache
	Gen      *generation.Client
	Inval    *invalidation.Service
	Readings *services.ReadingService
	Users    *services.UserService

	healthProbe func() bool
}

// NewDeps constructs the full dependency graph from configuration.
func NewDeps(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Deps, error) {
	return initDependencies(ctx, cfg, log)
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Deps, error) {
	st, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}

	kv, err := newKV(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Cache store unavailable")
		return nil, err
	}

	rcache := cache.NewReadingCache(kv, cache.NewStatsSink(), log)
	gen := generation.NewClient(cfg.GenerationURL, time.Duration(cfg.GenerationTimeoutSeconds)*time.Second)
	inval := invalidation.NewService(kv, rcache, st,
		cfg.InvalidationBatchSize,
		time.Duration(cfg.InvalidationBatchDelayMs)*time.Millisecond,
		log)

	lockTTL := time.Duration(cfg.GenerationLockSeconds) * time.Second
	readings := services.NewReadingService(st, rcache, gen, lockTTL, log)
	users := services.NewUserService(st, rcache, log)

	return &Deps{
		Store:    st,
		KV:       kv,
		Cache:    rcache,
		Gen:      gen,
		Inval:    inval,
		Readings: readings,
		Users:    users,
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		log.Info().Msg("Postgres store ready")
		return postgres.NewWithDB(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("SQLite store ready")
		return sqlite.NewWithDB(db), nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.DBDriver)
	}
}

func newKV(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.Store, error) {
	switch cfg.CacheDriver {
	case "redis":
		kv, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache ready")
		return kv, nil
	case "memory":
		log.Info().Msg("In-memory cache ready")
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.CacheDriver)
	}
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(deps *Deps, cfg *config.Config, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	// Users
	userHandler := api.NewUserHandler(deps.Users)
	root.HandleFunc("/api/users", userHandler.CreateUser).Methods("POST")
	root.HandleFunc("/api/users/{userId}", userHandler.GetUser).Methods("GET")
	root.HandleFunc("/api/users/{userId}", userHandler.DeleteUser).Methods("DELETE")

	// Readings
	reading := api.NewReadingHandler(deps.Readings)
	root.HandleFunc("/api/users/{userId}/readings", reading.ListReadings).Methods("GET")
	root.HandleFunc("/api/users/{userId}/readings", reading.PurgeUserReadings).Methods("DELETE")
	root.HandleFunc("/api/users/{userId}/readings/today", reading.GetToday).Methods("GET")
	root.HandleFunc("/api/users/{userId}/readings/latest", reading.GetLatest).Methods("GET")
	root.HandleFunc("/api/users/{userId}/readings/stats", reading.Stats).Methods("GET")
	root.HandleFunc("/api/users/{userId}/readings/daily/{date}", reading.GetDaily).Methods("GET")
	root.HandleFunc("/api/readings/{readingId}", reading.DeleteReading).Methods("DELETE")
	root.HandleFunc("/api/readings/{readingId}/read", reading.MarkRead).Methods("POST")
	root.HandleFunc("/api/readings/{readingId}/save", reading.ToggleSaved).Methods("POST")
	root.HandleFunc("/api/readings/{readingId}/feedback", reading.AddFeedback).Methods("POST")

	// Cache administration
	admin := api.NewAdminHandler(deps.Inval, deps.Readings)
	root.HandleFunc("/api/admin/cache/invalidate", admin.InvalidatePattern).Methods("POST")
	root.HandleFunc("/api/admin/cache/cleanup", admin.Cleanup).Methods("POST")
	root.HandleFunc("/api/admin/cache/flush", admin.Flush).Methods("POST")
	root.HandleFunc("/api/admin/cache/health", admin.CacheHealth).Methods("GET")
	root.HandleFunc("/api/admin/cache/stats", admin.CacheStats).Methods("GET")
	root.HandleFunc("/api/admin/cache/users/{userId}/invalidate", admin.InvalidateUser).Methods("POST")
	root.HandleFunc("/api/admin/cache/users/{userId}/warm", admin.Warm).Methods("POST")
	root.HandleFunc("/api/admin/cache/users/{userId}/refresh/{date}", admin.Refresh).Methods("POST")

	// Health
	healthHandler := api.NewHealthHandler(func() bool {
		if deps.healthProbe == nil {
			return false
		}
		return deps.healthProbe()
	})
	root.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, deps *Deps) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker

	if p, ok := deps.Store.(health.HealthPinger); ok {
		c := health.NewPingChecker("store", p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	kvChecker := health.NewPingChecker("cache", deps.KV, log, probeTimeout)
	go kvChecker.Start(ctx, interval)
	checkers = append(checkers, kvChecker)

	genChecker := health.NewPingChecker("generation", deps.Gen, log, probeTimeout)
	go genChecker.Start(ctx, interval)
	checkers = append(checkers, genChecker)

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
