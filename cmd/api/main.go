package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storyscope/storyscope/internal/analysis"
	"github.com/storyscope/storyscope/internal/analysis/score"
	"github.com/storyscope/storyscope/internal/api"
	"github.com/storyscope/storyscope/internal/config"
	"github.com/storyscope/storyscope/internal/llm"
	"github.com/storyscope/storyscope/internal/logger"
	"github.com/storyscope/storyscope/internal/queue"
	"github.com/storyscope/storyscope/internal/repository"
	"github.com/storyscope/storyscope/internal/resilience/circuitbreaker"
	"github.com/storyscope/storyscope/internal/service"
	"github.com/storyscope/storyscope/internal/storage"
	"github.com/storyscope/storyscope/internal/worker"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewFromEnv()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	bookRepo := repository.NewBookRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Circuit breaker guarding the generative dependency
	breaker := circuitbreaker.New("generative", circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	})
	breaker.OnStateChange(func(change circuitbreaker.StateChange) {
		appLogger.WithFields(logger.Fields{
			"breaker": change.Name,
			"from":    string(change.From),
			"to":      string(change.To),
		}).Warn("Circuit breaker state changed")
	})

	// Generative client and stage executor
	llmClient := llm.NewClient(&llm.Config{
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RPS:        cfg.LLM.RPS,
		Burst:      cfg.LLM.Burst,
	})
	executor := analysis.NewExecutor(llmClient, breaker, &analysis.Config{
		MaxOutputTokens: cfg.Analysis.MaxOutputTokens,
		Temperature:     cfg.LLM.Temperature,
	})

	ctx := context.Background()

	// Queue: Redis Streams when configured, in-process fallback otherwise
	var producer queue.Producer
	var consumer queue.Consumer
	if cfg.Queue.RedisAddr != "" {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.Queue.RedisAddr,
			Password:    cfg.Queue.RedisPassword,
			DB:          cfg.Queue.RedisDB,
			Stream:      cfg.Queue.Stream,
			DLQStream:   cfg.Queue.DLQStream,
			Group:       cfg.Queue.Group,
			Consumer:    cfg.Queue.Consumer,
			MaxAttempts: cfg.Queue.MaxAttempts,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to Redis queue")
		}
		defer streams.Close()
		producer, consumer = streams, streams
		appLogger.WithField("addr", cfg.Queue.RedisAddr).Info("Using Redis Streams queue")
	} else {
		local := queue.NewLocalQueue(cfg.Queue.BufferSize, cfg.Queue.MaxAttempts)
		producer, consumer = local, local
		appLogger.Info("Redis not configured, using in-process queue")
	}

	// Optional report archive
	var archive storage.ObjectStorage
	if cfg.Archive.Enabled {
		s3Storage, err := storage.NewS3Storage(ctx, &storage.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UsePath:   cfg.Archive.UsePath,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize report archive")
		}
		if err := s3Storage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
		archive = s3Storage
		appLogger.WithField("bucket", cfg.Archive.Bucket).Info("Report archive enabled")
	}

	// Initialize services
	bookService := service.NewBookService(bookRepo)
	reportService := service.NewReportService(
		bookRepo,
		reportRepo,
		executor,
		producer,
		score.Weights{
			Engagement: cfg.Analysis.EngagementWeight,
			Structure:  cfg.Analysis.StructureWeight,
			Market:     cfg.Analysis.MarketWeight,
			Neutral:    cfg.Analysis.NeutralScore,
		},
		archive,
		appLogger,
	)

	// Embedded pipeline worker
	workerCtx, stopWorker := context.WithCancel(ctx)
	processor := worker.NewProcessor(consumer, producer, reportService, appLogger)
	go processor.Start(workerCtx)

	// Setup router
	router := api.SetupRouter(cfg, appLogger, db, bookService, reportService, breaker)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}
	stopWorker()

	appLogger.Info("Server exited")
}
