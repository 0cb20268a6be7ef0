package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string
	DefaultLocale  string

	// Inference service endpoints. An empty base URL switches the stage
	// to synthetic local rendering, which keeps development working
	// without any model servers.
	SpeechBaseURL  string
	AnimateBaseURL string
	LipSyncBaseURL string
	UpscaleBaseURL string

	WorkerConcurrency int
	JobPollInterval   time.Duration

	// Reaper timeouts are distinct per state: uploading legitimately
	// takes longer than speech synthesis.
	AudioStageTimeout  time.Duration
	VideoStageTimeout  time.Duration
	UploadStageTimeout time.Duration
	ReaperInterval     time.Duration

	RetentionDays     int
	RetentionSchedule string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),

		SpeechBaseURL:  os.Getenv("SPEECH_BASE_URL"),
		AnimateBaseURL: os.Getenv("ANIMATE_BASE_URL"),
		LipSyncBaseURL: os.Getenv("LIPSYNC_BASE_URL"),
		UpscaleBaseURL: os.Getenv("UPSCALE_BASE_URL"),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		JobPollInterval:   time.Second * time.Duration(getEnvInt("JOB_POLL_INTERVAL_SECONDS", 2)),

		AudioStageTimeout:  time.Second * time.Duration(getEnvInt("AUDIO_STAGE_TIMEOUT_SECONDS", 120)),
		VideoStageTimeout:  time.Second * time.Duration(getEnvInt("VIDEO_STAGE_TIMEOUT_SECONDS", 600)),
		UploadStageTimeout: time.Second * time.Duration(getEnvInt("UPLOAD_STAGE_TIMEOUT_SECONDS", 900)),
		ReaperInterval:     time.Second * time.Duration(getEnvInt("REAPER_INTERVAL_SECONDS", 60)),

		RetentionDays:     getEnvInt("RETENTION_DAYS", 7),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 3 * * *"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}
	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.RetentionDays < 1 {
		return nil, fmt.Errorf("RETENTION_DAYS must be at least 1")
	}

	return cfg, nil
}

// StageTimeouts maps each non-terminal working state to its reaper timeout.
func (c *Config) StageTimeouts() map[string]time.Duration {
	return map[string]time.Duration{
		"processing_audio": c.AudioStageTimeout,
		"processing_video": c.VideoStageTimeout,
		"uploading":        c.UploadStageTimeout,
	}
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
