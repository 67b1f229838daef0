package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"auto-creative-engine/internal/app"
	"auto-creative-engine/internal/config"
	"auto-creative-engine/internal/handlers"
	"auto-creative-engine/internal/mediagroup"
	"auto-creative-engine/internal/session"
	"auto-creative-engine/internal/telegram"
)

const maxInflightUpdates = 32

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

	httpClient := app.NewHTTPClient(cfg)

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	eng, err := app.NewEngine(ctx, cfg, httpClient, logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	sessions := session.NewStore(session.Options{IdleTTL: 24 * time.Hour})

	handler := handlers.New(handlers.Options{
		Telegram:   tg,
		Engine:     eng,
		Sessions:   sessions,
		RunTimeout: cfg.RequestTimeout,
		MaxRuns:    cfg.MaxConcurrentRuns,
		Logger:     logger,
	})

	sem := make(chan struct{}, maxInflightUpdates)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()
			handler.HandleMediaGroup(ctx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)
	defer func() {
		if n := aggregator.Stop(); n > 0 {
			logger.Info("pending albums dropped", "count", n)
		}
	}()

	logger.Info("bot started", "username", tg.Username(), "backend", cfg.ImageBackend)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-prune.C:
			if n := sessions.Prune(); n > 0 {
				logger.Info("idle profiles pruned", "count", n)
			}
			if n := aggregator.Pending(); n > 0 {
				logger.Debug("albums waiting for more photos", "count", n)
			}
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				if err := handler.HandleUpdate(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}
