package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gallerybot/gallery-api/internal/config"
	"github.com/gallerybot/gallery-api/internal/domain/chunkedupload"
	"github.com/gallerybot/gallery-api/internal/domain/gallery"
	"github.com/gallerybot/gallery-api/internal/domain/gradient"
	"github.com/gallerybot/gallery-api/internal/domain/ingest"
	"github.com/gallerybot/gallery-api/internal/domain/request"
	"github.com/gallerybot/gallery-api/internal/middleware"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/logger"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
	pkgresponse "github.com/gallerybot/gallery-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting gallery API")

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

	galleryRepo := gallery.NewRepository(kv)
	galleryService := gallery.NewService(galleryRepo, objects)
	galleryHandler := gallery.NewHandler(galleryService)

	uploadBaseDir := filepath.Join(os.TempDir(), "gallery-uploads")
	uploadManager := chunkedupload.NewManager(uploadBaseDir, cfg.UploadSessionMaxAge)
	uploadHandler := chunkedupload.NewHandler(uploadManager)
	janitor := chunkedupload.NewJanitor(uploadManager, time.Hour)

	gradientRepo := gradient.NewRepository(kv, cfg.GradientJobTTL, cfg.GradientRecordTTL)
	gradientWorker := gradient.NewWorker(gradientRepo, objects, gradient.Config{
		Enabled:      cfg.GradientWorkerEnabled,
		Concurrency:  int64(cfg.GradientWorkerConcurrency),
		MaxRetries:   cfg.GradientJobMaxRetries,
		PollInterval: cfg.GradientPollInterval,
	})
	galleryService.SetGradientReader(gradientRepo)

	ingestRepo := ingest.NewRepository(kv)
	ingestService := ingest.NewService(ingestRepo, objects, galleryService, gradientWorker, ingest.Config{
		MaxZIPEntries:           cfg.MaxZIPEntries,
		MaxZIPUncompressedBytes: cfg.MaxZIPUncompressedBytes,
		MaxProcessingDuration:   cfg.MaxProcessingDuration,
		ProgressUpdateInterval:  cfg.ProgressUpdateInterval,
		JobTTL:                  cfg.UploadJobTTL,
		JobTerminalTTL:          cfg.UploadJobTerminalTTL,
	})
	ingestHandler := ingest.NewHandler(ingestService, uploadManager, galleryService)

	requestRepo := request.NewRepository(kv, cfg.RequestTTL)
	requestService := request.NewService(requestRepo)
	requestHandler := request.NewHandler(requestService)

	janitor.Start()
	workerCtx, stopWorker := context.WithCancel(context.Background())
	gradientWorker.Start(workerCtx)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		healthCtx, healthCancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer healthCancel()

		status := "ok"
		if err := redisClient.Ping(healthCtx).Err(); err != nil {
			status = "degraded"
		}
		if err := objects.EnsureBucket(healthCtx); err != nil {
			status = "degraded"
		}
		pkgresponse.OK(w, map[string]string{"status": status})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/galleries", galleryHandler.Routes(middleware.GuildContext))

		uploadsRouter := uploadHandler.Routes(middleware.GuildContext)
		ingestHandler.Mount(uploadsRouter)
		r.Mount("/uploads", uploadsRouter)

		r.Mount("/requests", requestHandler.Routes(middleware.GuildContext))
	})

	rootHandler := middleware.Logger(middleware.Recover(r))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	janitor.Stop()
	gradientWorker.Stop()
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
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
