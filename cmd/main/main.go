package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/engine"
	"github.com/stratalink/engagement-engine/internal/healthcheck"
	"github.com/stratalink/engagement-engine/internal/ingestion"
	"github.com/stratalink/engagement-engine/internal/materializer"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting Engagement Consistency Engine",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := ingestion.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Repository adapters
	companyRepo := storage.NewCompanyRepoAdapter(postgresRepo)
	contactRepo := storage.NewContactRepoAdapter(postgresRepo)
	conversationRepo := storage.NewConversationRepoAdapter(postgresRepo)
	touchpointRepo := storage.NewTouchpointRepoAdapter(postgresRepo)
	relationshipRepo := storage.NewRelationshipRepoAdapter(postgresRepo)
	overviewRepo := storage.NewOverviewRepoAdapter(postgresRepo)

	// Mutation pipelines and event wiring
	dispatcher := engine.NewDispatcher(cfg, postgresRepo,
		companyRepo, contactRepo, conversationRepo, touchpointRepo, relationshipRepo, overviewRepo)
	router := ingestion.NewRouter()
	ingestion.NewHandlers(dispatcher).RegisterAll(router)

	consumer := ingestion.NewConsumer(jsClient, router, cfg)
	if err := consumer.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up entity-change consumer", zap.Error(err))
	}

	// Overview materializer
	var overviewWorker *materializer.Worker
	if cfg.Materializer.Enabled {
		overviewWorker, err = materializer.NewWorker(cfg.Materializer, companyRepo, overviewRepo, logger.Log)
		if err != nil {
			logger.Log.Fatal("Failed to initialize overview materializer", zap.Error(err))
		}
	}

	// Health check server
	healthServer := healthcheck.NewServer(strconv.Itoa(cfg.Server.Port), logger.Log)
	healthServer.RegisterReadinessCheck("postgres", postgresRepo.Ping)
	if metricsEnabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	}
	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	if err := consumer.Start(); err != nil {
		logger.Log.Fatal("Failed to start entity-change consumer", zap.Error(err))
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	if overviewWorker != nil {
		overviewWorker.Start(mainCtx)
	}

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	mainCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping entity-change consumer")
		start := time.Now()
		consumer.Stop()
		logger.Log.Info("[shutdown] Entity-change consumer stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping consumer",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		if overviewWorker == nil {
			return
		}
		logger.Log.Info("[shutdown] Stopping overview materializer")
		start := time.Now()
		overviewWorker.Stop()
		logger.Log.Info("[shutdown] Overview materializer stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping materializer",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping health check server")
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping health check server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		}
		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsClient.Close()
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Engagement Consistency Engine shutdown complete")
}

func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
