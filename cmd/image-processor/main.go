package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	quotahandler "github.com/aliskhannn/imgbatch/internal/api/handlers/quota"
	storagehandler "github.com/aliskhannn/imgbatch/internal/api/handlers/storage"
	usagehandler "github.com/aliskhannn/imgbatch/internal/api/handlers/usage"
	"github.com/aliskhannn/imgbatch/internal/api/router"
	"github.com/aliskhannn/imgbatch/internal/api/server"
	"github.com/aliskhannn/imgbatch/internal/config"
	"github.com/aliskhannn/imgbatch/internal/infra/kafka/consumer"
	"github.com/aliskhannn/imgbatch/internal/infra/kafka/producer"
	usagemsg "github.com/aliskhannn/imgbatch/internal/kafka/handlers/usage"
	"github.com/aliskhannn/imgbatch/internal/metrics"
	"github.com/aliskhannn/imgbatch/internal/middleware"
	quotarepo "github.com/aliskhannn/imgbatch/internal/repository/quota"
	usagerepo "github.com/aliskhannn/imgbatch/internal/repository/usage"
	"github.com/aliskhannn/imgbatch/internal/service/account"
	usagesvc "github.com/aliskhannn/imgbatch/internal/service/usage"
	"github.com/aliskhannn/imgbatch/internal/storage/file"
)

func main() {
	configPath := flag.String("config", "./config/config.yml", "path to the backend config file")
	flag.Parse()

	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad(*configPath)

	// Connect to PostgreSQL (master and slaves).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Retry strategy for Kafka calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Durable artifact storage (MinIO).
	storage, err := file.NewStorage(
		ctx,
		cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
		cfg.Storage.BucketName, cfg.Storage.UseSSL, cfg.Storage.URLExpiry,
	)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
	}

	// Metrics registry with runtime collectors.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories, producer and services.
	quotas := quotarepo.NewRepository(db, quotarepo.Plan{
		DailyLimit:        cfg.Quota.RegisteredDailyLimit,
		StorageQuotaBytes: cfg.Quota.StorageQuotaBytes,
	})
	reports := usagerepo.NewRepository(db)
	p := producer.New(&cfg.Kafka, strategy)

	accounts := account.NewService(quotas, storage, m, cfg.Quota.Location())
	collector := usagesvc.NewService(p, reports, m)

	// Kafka consumer storing usage reports.
	c := consumer.New(&cfg.Kafka, strategy, usagemsg.NewReportHandler(collector))

	var wg sync.WaitGroup
	wg.Add(1)
	go c.Consume(ctx, &wg)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(router.Handlers{
		Quota:   quotahandler.NewHandler(accounts),
		Storage: storagehandler.NewHandler(accounts, cfg.Server.MaxUploadSize),
		Usage:   usagehandler.NewHandler(collector),
		Metrics: m.Handler(),
	}, middleware.AuthMiddleware(cfg.Auth.JWTSecret))

	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if err = p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err = c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}
