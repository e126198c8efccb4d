package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/storyscope/storyscope/internal/analysis"
	"github.com/storyscope/storyscope/internal/analysis/score"
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

// Standalone pipeline worker. Requires Redis: an in-process queue
// cannot be shared with a separate API process.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	if cfg.Queue.RedisAddr == "" {
		appLogger.Fatal("Standalone worker requires queue.redis_addr")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	bookRepo := repository.NewBookRepository(db)
	reportRepo := repository.NewReportRepository(db)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		archive = s3Storage
	}

	reportService := service.NewReportService(
		bookRepo,
		reportRepo,
		executor,
		streams,
		score.Weights{
			Engagement: cfg.Analysis.EngagementWeight,
			Structure:  cfg.Analysis.StructureWeight,
			Market:     cfg.Analysis.MarketWeight,
			Neutral:    cfg.Analysis.NeutralScore,
		},
		archive,
		appLogger,
	)

	appLogger.WithField("stream", cfg.Queue.Stream).Info("Pipeline worker started")
	processor := worker.NewProcessor(streams, streams, reportService, appLogger)
	processor.Start(ctx)

	appLogger.Info("Pipeline worker stopped")
}
