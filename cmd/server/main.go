package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/analyzer"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/config"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/db"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/pipeline"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/repository"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/router"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/services"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/storage"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Initialize database
	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(database); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	// Upload staging
	var store storage.Storage
	switch cfg.StorageBackend {
	case "memory":
		store = storage.NewMemoryStorage()
	default:
		initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		store, err = storage.NewS3Storage(initCtx, cfg)
		cancel()
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", "error", err)
		}
	}

	repo := repository.NewRepository(database)
	az := analyzer.NewHTTPAnalyzer(cfg.AnalyzerBaseURL, cfg.AnalyzerTimeout, logger)

	manager := pipeline.NewManager(repo, store, az, logger, pipeline.Options{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		MaxFileSize:       cfg.MaxFileSize,
	})

	if _, err := manager.RecoverInterrupted(context.Background()); err != nil {
		logger.Fatal("Failed to recover interrupted jobs", "error", err)
	}

	svc := services.NewService(manager, repo, az, logger)

	// Setup HTTP router
	handler := router.NewRouter(svc, manager, router.Options{
		MaxFileSize:    cfg.MaxFileSize,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	// Create HTTP server. No write timeout: the progress socket stays open for the whole job.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go runCleanup(cleanupCtx, manager, cfg.CleanupInterval, cfg.JobRetention, logger)

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "analyzer", cfg.AnalyzerBaseURL, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopCleanup()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	manager.Close()

	logger.Info("Server exited")
}

// runCleanup periodically drops finished jobs older than the retention window.
func runCleanup(ctx context.Context, manager *pipeline.Manager, interval, retention time.Duration, logger *utils.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.CleanupOldJobs(ctx, retention); err != nil {
				logger.Warn("Job cleanup failed", "error", err)
			}
		}
	}
}
