package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"auto-creative-engine/internal/app"
	"auto-creative-engine/internal/config"
	"auto-creative-engine/internal/webapi"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, closer := app.NewLogger(cfg)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := app.NewEngine(ctx, cfg, app.NewHTTPClient(cfg), logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	api := webapi.New(webapi.Options{
		Engine:         eng,
		ArchiveTTL:     cfg.ArchiveTTL,
		RequestTimeout: cfg.RequestTimeout,
		MaxRuns:        cfg.MaxConcurrentRuns,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "backend", cfg.ImageBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("web stopped")
}
