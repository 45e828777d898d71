// Command reconciler recounts every aggregate counter from the base tables
// and reports how many rows had drifted. Run it after bugs or migrations;
// the steady-state write path keeps counters exact on its own.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/engine"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

func main() {
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

	if cfg.Database.PostgresDSN == "" {
		logger.Log.Fatal("postgres DSN is required")
	}

	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, false)
	if err != nil {
		logger.Log.Fatal("Failed to initialize postgres repository", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	defer func() {
		if closeErr := postgresRepo.Close(context.Background()); closeErr != nil {
			logger.Log.Error("Failed to close postgres connection", zap.Error(closeErr))
		}
	}()

	reconciler := engine.NewReconciler(storage.NewReconcileRepoAdapter(postgresRepo))

	start := time.Now()
	report, err := reconciler.Run(ctx)
	if err != nil {
		logger.Log.Fatal("Reconciliation failed", zap.Error(err))
	}

	logger.Log.Info("Reconciliation complete",
		zap.Int64("conversations_fixed", report.ConversationsFixed),
		zap.Int64("contacts_fixed", report.ContactsFixed),
		zap.Int64("companies_fixed", report.CompaniesFixed),
		zap.Duration("duration", time.Since(start)))
}
