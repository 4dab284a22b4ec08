package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/bitrot/internal/api"
	"github.com/dunamismax/bitrot/internal/config"
	"github.com/dunamismax/bitrot/internal/decay"
	"github.com/dunamismax/bitrot/internal/queue"
	"github.com/dunamismax/bitrot/internal/ratelimit"
	"github.com/dunamismax/bitrot/internal/storage"
	"github.com/dunamismax/bitrot/internal/store"
	"github.com/dunamismax/bitrot/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "bitrot-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	if err := decay.Startup(); err != nil {
		logger.Fatalf("codec startup failed: %v", err)
	}
	defer decay.Shutdown()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	jobStore, closeStore := openJobStore(ctx, cfg.Database, logger)
	defer closeStore()

	var objectStorage *storage.Client
	if client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	}); err != nil {
		logger.Printf("object storage disabled err=%v", err)
	} else {
		objectStorage = client
	}

	opts := []api.Option{api.WithTracer(otel.Tracer("bitrot/api"))}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(cfg.Queue.RedisOptions())
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window, "bitrot:ratelimit")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		opts = append(opts, api.WithRateLimiter(limiter))
	}

	apiCfg := api.Config{
		PresignTTL:            cfg.API.PresignTTL,
		MaxUploadBytes:        cfg.Decay.MaxUploadBytes,
		DefaultIntegrity:      cfg.Decay.DefaultIntegrity,
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHeader,
	}
	var app *api.Server
	if objectStorage != nil {
		app = api.NewServer(logger, queueClient, jobStore, objectStorage, apiCfg, opts...)
	} else {
		app = api.NewServer(logger, queueClient, jobStore, nil, apiCfg, opts...)
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}

func openJobStore(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (store.JobStore, func()) {
	if cfg.DSN == "" {
		logger.Printf("job store=memory")
		return store.NewMemoryJobStore(), func() {}
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		logger.Fatalf("postgres job store failed: %v", err)
	}
	logger.Printf("job store=postgres")
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Printf("postgres close error: %v", err)
		}
	}
}
