// Package app builds the engine and its backends from configuration for the
// command entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"auto-creative-engine/internal/config"
	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
	"auto-creative-engine/internal/gemini"
	"auto-creative-engine/internal/httpclient"
	"auto-creative-engine/internal/imagen"
	"auto-creative-engine/internal/logging"
	"auto-creative-engine/internal/ollama"
)

var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is required (or pass --api-key)")

func NewLogger(cfg config.Config) (*slog.Logger, io.Closer) {
	return logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogFileMaxMB,
		MaxBackups: cfg.LogFileMaxBackups,
		MaxAgeDays: cfg.LogFileMaxAgeDays,
	})
}

func NewHTTPClient(cfg config.Config) *http.Client {
	return httpclient.New(httpclient.Options{
		PreferIPv4:      cfg.PreferIPv4,
		Timeout:         cfg.HTTPTimeout,
		MaxConnsPerHost: cfg.MaxConcurrent,
	})
}

// NewEngine wires the Gemini text client and the configured image backend.
// Gemini serves text for every backend, so the API key is always required.
func NewEngine(ctx context.Context, cfg config.Config, httpClient *http.Client, logger *slog.Logger) (*engine.Engine, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg)
	}

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
		MaxRetries: cfg.GeminiMaxRetries,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	images, err := imageBackend(ctx, cfg, gem, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("engine configured",
		"backend", cfg.ImageBackend,
		"text_model", cfg.GeminiTextModel,
		"workers", cfg.MaxConcurrent,
	)

	// Brand guidelines are appended for the Gemini image model only.
	enhance := cfg.ImageBackend == config.BackendGemini

	return engine.New(engine.Options{
		Text:           gem,
		Images:         images,
		Concurrency:    cfg.MaxConcurrent,
		RateInterval:   cfg.RateInterval,
		EnhancePrompts: enhance,
		OutputDir:      cfg.OutputDir,
		Logger:         logger,
	}), nil
}

func imageBackend(ctx context.Context, cfg config.Config, gem *gemini.Client, logger *slog.Logger) (creative.ImageGenerator, error) {
	switch cfg.ImageBackend {
	case config.BackendGemini, "":
		return gem, nil
	case config.BackendImagen:
		return imagen.New(ctx, imagen.Options{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.ImagenModel,
			MaxRetries: cfg.GeminiMaxRetries,
			Logger:     logger,
		})
	case config.BackendOllama:
		return ollama.New(ollama.Options{
			Bin:    cfg.OllamaBin,
			Model:  cfg.OllamaModel,
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown image backend %q", cfg.ImageBackend)
	}
}
