package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/therealutkarshpriyadarshi/restream/internal/broadcast"
	"github.com/therealutkarshpriyadarshi/restream/internal/cache"
	"github.com/therealutkarshpriyadarshi/restream/internal/config"
	"github.com/therealutkarshpriyadarshi/restream/internal/database"
	"github.com/therealutkarshpriyadarshi/restream/internal/events"
	"github.com/therealutkarshpriyadarshi/restream/internal/logging"
	"github.com/therealutkarshpriyadarshi/restream/internal/metrics"
	"github.com/therealutkarshpriyadarshi/restream/internal/middleware"
	"github.com/therealutkarshpriyadarshi/restream/internal/queue"
	"github.com/therealutkarshpriyadarshi/restream/internal/storage"
	"github.com/therealutkarshpriyadarshi/restream/internal/telemetry"
	"github.com/therealutkarshpriyadarshi/restream/internal/tracing"
	"github.com/therealutkarshpriyadarshi/restream/internal/webhook"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// Output buffers kept for finished broadcasts
const keptBroadcastLogs = 8

func main() {
	// Load configuration; an unset CONFIG_PATH means defaults plus environment
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	zl := logger.Zerolog()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracer, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer tracer.Close()
	logger.Debugf("Tracing enabled: %t", cfg.Tracing.Enabled)

	opts, err := broadcast.OptionsFromConfig(cfg.Broadcast, zl)
	if err != nil {
		logger.Fatalf("Invalid broadcast config: %v", err)
	}
	sup := broadcast.NewSupervisor(opts)
	sup.AddObserver(broadcast.ObserverFunc(logger.LogBroadcastEvent))

	logs := newLogRegistry(cfg.Server.LogBufferLines, keptBroadcastLogs)
	source := telemetry.NewMockSource(cfg.Telemetry.Seed)
	srv := NewServer(sup, logs, source, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional integrations, each fed by the event dispatcher
	var publishers []events.Publisher
	var redisCache *cache.Cache

	if cfg.Redis.Enabled {
		redisCache, err = cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StatusTTL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()

		publishers = append(publishers, redisCache)
		srv.cache = redisCache
		srv.AddCheck("redis", redisCache.Ping)
		logger.Info("Redis status cache enabled")
	}

	switch {
	case cfg.Server.RateLimit <= 0:
	case redisCache != nil:
		// Counted in Redis so every replica shares one budget per client
		limit := int64(math.Ceil(cfg.Server.RateLimit))
		if burst := int64(cfg.Server.RateBurst); burst > limit {
			limit = burst
		}
		srv.rateLimit = middleware.SharedRateLimit(redisCache, limit, time.Second)
		logger.Debugf("Shared rate limit of %d requests per second", limit)
	default:
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		go limiter.Cleanup(ctx, 10*time.Minute, 30*time.Minute)
		srv.rateLimit = middleware.RateLimit(limiter)
	}

	if cfg.Database.Enabled {
		db, err := database.New(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		repo := database.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}

		publishers = append(publishers, repo)
		srv.sessions = repo
		srv.AddCheck("postgres", db.Health)
		logger.Info("Broadcast history enabled")
	}

	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue)
		if err != nil {
			logger.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()

		publishers = append(publishers, q)
		logger.Info("Event queue enabled")
	}

	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize storage: %v", err)
		}

		publishers = append(publishers, storage.NewArchiver(store, logs, zl))
		srv.transcripts = store
		logger.Info("Transcript archive enabled")
	}

	if cfg.Webhooks.Enabled {
		publishers = append(publishers, webhook.NewService(cfg.Webhooks, zl))
		logger.Infof("Webhooks enabled for %d endpoints", len(cfg.Webhooks.Endpoints))
	}

	dispatcher := events.NewDispatcher(256, 10*time.Second, zl, publishers...)
	sup.AddObserver(dispatcher)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		_ = dispatcher.Run(context.Background())
	}()

	if cfg.Telemetry.Enabled {
		go telemetry.Watch(ctx, cfg.Telemetry.Interval, source,
			func() models.BroadcastStatus { return sup.Status(sup.Current()) },
			func(snap telemetry.Snapshot) {
				if redisCache == nil {
					return
				}
				ttl := 3 * cfg.Telemetry.Interval
				if err := redisCache.SetHealth(ctx, snap.Health, ttl); err != nil {
					logger.WithError(err).Warn("Failed to cache stream health")
				}
				if err := redisCache.SetAnalytics(ctx, snap.Analytics, ttl); err != nil {
					logger.WithError(err).Warn("Failed to cache stream analytics")
				}
			})
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.setupRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// The encoder must not outlive the service
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Failed to stop broadcast", err)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Metrics server forced to shutdown", err)
		}
	}

	dispatcher.Close()
	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logger.Warnf("Timed out delivering pending events after %s", cfg.Server.ShutdownTimeout)
	}

	logger.Info("Server stopped")
}
