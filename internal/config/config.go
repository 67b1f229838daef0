package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/retry"
)

const (
	BackendGemini = "gemini"
	BackendImagen = "imagen"
	BackendOllama = "ollama"
)

type Config struct {
	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiTextModel  string
	GeminiImageModel string
	GeminiMaxRetries int

	ImageBackend string
	ImagenModel  string
	OllamaModel  string
	OllamaBin    string

	MaxConcurrent  int
	RateInterval   time.Duration
	HTTPTimeout    time.Duration
	RequestTimeout time.Duration
	PreferIPv4     bool

	OutputDir string

	LogLevel          string
	LogFile           string
	LogFileMaxMB      int
	LogFileMaxBackups int
	LogFileMaxAgeDays int
	Debug             bool

	WebAddr    string
	ArchiveTTL time.Duration

	TelegramToken      string
	MaxConcurrentRuns  int
	MediaGroupDebounce time.Duration
}

// Load reads the environment. Credentials are not required here; each entry
// point checks the ones it needs.
func Load() (Config, error) {
	cfg := Config{
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		GeminiTextModel:  getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiMaxRetries: getEnvInt("GEMINI_MAX_RETRIES", 3),

		ImageBackend: strings.ToLower(getEnv("IMAGE_BACKEND", BackendGemini)),
		ImagenModel:  getEnv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
		OllamaModel:  getEnv("OLLAMA_MODEL", "x/flux2-klein"),
		OllamaBin:    getEnv("OLLAMA_BIN", "ollama"),

		MaxConcurrent:  getEnvInt("MAX_CONCURRENT", 6),
		RateInterval:   time.Duration(getEnvInt("RATE_INTERVAL_MS", 0)) * time.Millisecond,
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 120)) * time.Second,
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 900)) * time.Second,
		PreferIPv4:     getEnvBool("PREFER_IPV4", true),

		OutputDir: getEnv("OUTPUT_DIR", "data/outputs"),

		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:           getEnv("LOG_FILE", ""),
		LogFileMaxMB:      getEnvInt("LOG_FILE_MAX_MB", 50),
		LogFileMaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 5),
		LogFileMaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 14),
		Debug:             getEnvBool("DEBUG", false),

		WebAddr:    getEnv("WEB_ADDR", ":8080"),
		ArchiveTTL: time.Duration(getEnvInt("ARCHIVE_TTL_MINUTES", 60)) * time.Minute,

		TelegramToken:      strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		MaxConcurrentRuns:  getEnvInt("MAX_CONCURRENT_RUNS", 2),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
	}

	if err := ValidateBackend(cfg.ImageBackend); err != nil {
		return Config{}, fmt.Errorf("IMAGE_BACKEND: %w", err)
	}

	cfg.MaxConcurrent = max(1, min(cfg.MaxConcurrent, creative.MaxConcurrency))
	if cfg.MaxConcurrentRuns < 1 {
		cfg.MaxConcurrentRuns = 1
	}
	cfg.GeminiMaxRetries = max(1, min(cfg.GeminiMaxRetries, retry.MaxAttempts))
	if cfg.RateInterval < 0 {
		cfg.RateInterval = 0
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 900 * time.Second
	}
	if cfg.ArchiveTTL <= 0 {
		cfg.ArchiveTTL = time.Hour
	}

	return cfg, nil
}

func ValidateBackend(name string) error {
	switch name {
	case BackendGemini, BackendImagen, BackendOllama:
		return nil
	}
	return fmt.Errorf("image backend %q is not one of gemini, imagen, ollama", name)
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
