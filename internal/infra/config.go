package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	BlobBackend       string
	BlobPath          string
	BlobDSN           string
	MaxHandles        int
	GeminiAPIKey      string
	GeminiModel       string
	GeminiVideoModel  string
	GeminiBaseURL     string
	VideoPollInterval time.Duration
	VideoMaxPolls     int
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		BlobBackend:       getEnv("BLOB_BACKEND", "filesystem"),
		BlobPath:          getEnv("BLOB_PATH", "./data/blobs"),
		BlobDSN:           os.Getenv("BLOB_DSN"),
		MaxHandles:        getEnvInt("MAX_HANDLES", 50),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		GeminiVideoModel:  getEnv("GEMINI_VIDEO_MODEL", "veo-2.0-generate-001"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VideoPollInterval: time.Second * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 10)),
		VideoMaxPolls:     getEnvInt("VIDEO_MAX_POLLS", 60),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	switch cfg.BlobBackend {
	case "memory", "filesystem", "sqlite":
	case "postgres":
		if cfg.BlobDSN == "" {
			return nil, fmt.Errorf("BLOB_DSN is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}

	if cfg.MaxHandles <= 0 {
		return nil, fmt.Errorf("MAX_HANDLES must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
