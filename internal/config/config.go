package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, loaded once at startup from the
// environment (with .env support for local development).
type Config struct {
	// Server
	Port string
	Env  string

	// KV store (Redis-semantics)
	RedisURL string

	// Object store (S3-compatible)
	S3Endpoint   string
	S3Region     string
	S3AccessKey  string
	S3SecretKey  string
	MasterBucket string
	S3PublicURL  string

	// Chunked upload (D)
	MaxChunkSize        int64
	UploadSessionMaxAge time.Duration

	// ZIP ingestion (E)
	MaxZIPEntries           int
	MaxZIPUncompressedBytes int64
	MaxProcessingDuration   time.Duration
	ProgressUpdateInterval  int
	UploadJobTTL            time.Duration
	UploadJobTerminalTTL    time.Duration

	// Gradient worker (F)
	GradientWorkerEnabled     bool
	GradientWorkerConcurrency int
	GradientJobMaxRetries     int
	GradientPollInterval      time.Duration
	GradientJobTTL            time.Duration
	GradientRecordTTL         time.Duration

	// Request/ticket store (G)
	RequestTTL time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from the environment. A missing .env file is
// not an error — it just means the environment is expected to already be
// populated (container deployments, CI, etc).
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3Region:     getEnv("S3_REGION", "auto"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		MasterBucket: getEnv("MASTER_BUCKET_NAME", "gallery-uploads"),
		S3PublicURL:  getEnv("S3_PUBLIC_URL", ""),

		MaxChunkSize:        parseInt64(getEnv("MAX_CHUNK_SIZE", "10485760"), 10*1024*1024),
		UploadSessionMaxAge: parseDuration(getEnv("UPLOAD_SESSION_MAX_AGE", "24h"), 24*time.Hour),

		MaxZIPEntries:           parseInt(getEnv("MAX_ZIP_ENTRIES", "1000"), 1000),
		MaxZIPUncompressedBytes: parseInt64(getEnv("MAX_ZIP_UNCOMPRESSED_BYTES", "524288000"), 500*1024*1024),
		MaxProcessingDuration:   parseDuration(getEnv("MAX_PROCESSING_DURATION_MS", "300000ms"), 300*time.Second),
		ProgressUpdateInterval:  parseInt(getEnv("PROGRESS_UPDATE_INTERVAL", "10"), 10),
		UploadJobTTL:            parseDuration(getEnv("UPLOAD_JOB_TTL", "24h"), 24*time.Hour),
		UploadJobTerminalTTL:    parseDuration(getEnv("UPLOAD_JOB_TERMINAL_TTL", "10m"), 10*time.Minute),

		GradientWorkerEnabled:     parseBool(getEnv("GRADIENT_WORKER_ENABLED", "true"), true),
		GradientWorkerConcurrency: parseInt(getEnv("GRADIENT_WORKER_CONCURRENCY", "4"), 4),
		GradientJobMaxRetries:     parseInt(getEnv("GRADIENT_JOB_MAX_RETRIES", "5"), 5),
		GradientPollInterval:      parseDuration(getEnv("GRADIENT_WORKER_POLL_INTERVAL_MS", "1000ms"), time.Second),
		GradientJobTTL:            parseDuration(getEnv("GRADIENT_JOB_TTL", "24h"), 24*time.Hour),
		GradientRecordTTL:         parseDuration(getEnv("GRADIENT_RECORD_TTL", "720h"), 30*24*time.Hour),

		RequestTTL: parseDuration(getEnv("REQUEST_TTL", "720h"), 30*24*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseBool(s string, defaultValue bool) bool {
	value, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseInt64(s string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
