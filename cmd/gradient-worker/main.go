package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/config"
	"github.com/gallerybot/gallery-api/internal/domain/gradient"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/logger"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

// gradient-worker runs the palette-extraction dispatcher as its own
// process, separate from the API server, so it can be scaled or restarted
// independently of request traffic.
func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().Msg("Starting gradient-worker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := kvstore.Connect(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()
	kv := kvstore.New(redisClient)

	objects, err := objectstore.New(context.Background(), objectstore.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.MasterBucket,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build object store client")
	}

	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objects.EnsureBucket(ensureCtx); err != nil {
		ensureCancel()
		log.Fatal().Err(err).Msg("Tenant bucket unreachable")
	}
	ensureCancel()

	repo := gradient.NewRepository(kv, cfg.GradientJobTTL, cfg.GradientRecordTTL)
	worker := gradient.NewWorker(repo, objects, gradient.Config{
		Enabled:      cfg.GradientWorkerEnabled,
		Concurrency:  int64(cfg.GradientWorkerConcurrency),
		MaxRetries:   cfg.GradientJobMaxRetries,
		PollInterval: cfg.GradientPollInterval,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")
	worker.Stop()
	stopWorker()

	log.Info().Msg("gradient-worker stopped")
}

func setupLogger(cfg *config.Config) {
	loggerCfg := logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	}

	if err := logger.Init(loggerCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
}
