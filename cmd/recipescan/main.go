package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"recipescan/internal/api"
	"recipescan/internal/config"
	"recipescan/internal/ingest"
	"recipescan/internal/monitoring"
	"recipescan/internal/ocr"
	"recipescan/internal/pipeline"
	"recipescan/internal/storage"
	"recipescan/internal/structurer"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	var redisStore *storage.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = storage.NewRedisStore(cfg.RedisAddr)
	}

	fileStore, err := storage.NewFileStore(afero.NewOsFs(), cfg.UploadDir, cfg.ArchiveDir)
	if err != nil {
		logger.Fatal("failed to prepare upload directories", zap.Error(err))
	}

	// Initialize Pipeline Components
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	recognizer := ocr.NewAdapter(ocr.NewTesseractEngine(), cfg.Languages(), logger)
	generator := structurer.NewGeminiClient(cfg.GoogleAPIKey, cfg.GeminiModel)
	recipeStructurer := structurer.New(generator, cfg.StructureAttempts,
		time.Duration(cfg.StructureTimeout)*time.Second, logger)
	extractor := pipeline.New(recognizer, recipeStructurer, metrics, logger)

	// Initialize Ingestion Workflow
	var seen ingest.SeenStore
	if redisStore != nil {
		seen = redisStore
	}
	ingestor := ingest.New(cfg, extractor, pgStore, fileStore, seen, metrics, logger)

	// Initialize API Server
	var cache api.Pinger
	if redisStore != nil {
		cache = redisStore
	}
	server := api.NewServer(cfg, ingestor, pgStore, cache, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
