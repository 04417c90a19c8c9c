package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedwarden/internal/bot"
	"feedwarden/internal/config"
	"feedwarden/internal/feed"
	"feedwarden/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		slog.InfoContext(ctx, "No .env file, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load configuration",
			"error", err)

		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(log)

	st, err := store.New(cfg.DataDir, cfg.CompressSnapshot, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize store",
			"error", err,
			"dataDir", cfg.DataDir)

		os.Exit(1)
	}
	log.InfoContext(ctx, "Store is initialized",
		"path", st.Path())

	fetcher := feed.NewFetcher(cfg.FetchTimeout, cfg.UserAgent, log)

	botInst, err := bot.New(cfg, st, fetcher, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bot",
			"error", err)

		os.Exit(1)
	}
	log.InfoContext(ctx, "Bot is initialized",
		"pollInterval", cfg.PollInterval.String())

	runErr := make(chan error, 1)
	go func() {
		runErr <- botInst.Run(ctx)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-c:
		log.InfoContext(ctx, "Shutdown signal is received",
			"signal", sig.String())

		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
		if err = botInst.Shutdown(shutdownCtx); err != nil {
			log.ErrorContext(ctx, "Graceful shutdown failed, cancelling",
				"error", err)
			cancel()
		}
		cancelShutdown()

		if err = <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "Bot stopped with error",
				"error", err)
		}
	case err = <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "Bot stopped with error",
				"error", err)

			os.Exit(1)
		}
	}

	log.InfoContext(ctx, "Exiting...",
		"uptimeSeconds", time.Since(start).Seconds())
}
