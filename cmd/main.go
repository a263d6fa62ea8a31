package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telefeed/internal/bot"
	"telefeed/internal/config"
	"telefeed/internal/feed"
	"telefeed/internal/kvstore"
	"telefeed/internal/notifier"
	"telefeed/internal/scheduler"
	"telefeed/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	start := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.ErrorContext(ctx, "Failed to load config",
			"error", err)

		return
	}

	kv, err := kvstore.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize kv store",
			"error", err,
			"dbPath", cfg.DBPath)

		return
	}
	defer func() {
		if err = kv.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close kv store",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()
	log.InfoContext(ctx, "KV store is initialized",
		"dbPath", cfg.DBPath)

	st := store.New(kv, log)
	fetcher := feed.NewFetcher(log)

	botInst, err := bot.New(cfg.Token, st, fetcher, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize bot",
			"error", err)

		return
	}
	log.InfoContext(ctx, "Bot is initialized")

	dispatcher := notifier.New(botInst, log)
	poller := scheduler.NewPoller(st, fetcher, dispatcher, cfg.PollConcurrency, log)
	sched := scheduler.New(ctx, poller, cfg.PollSpec, log)

	if err = sched.Start(); err != nil {
		log.ErrorContext(ctx, "Failed to start scheduler",
			"error", err,
			"spec", cfg.PollSpec)

		return
	}
	defer sched.Stop()
	log.InfoContext(ctx, "Scheduler is started",
		"spec", cfg.PollSpec,
		"concurrency", cfg.PollConcurrency)

	go func() {
		botInst.Start(ctx)
	}()
	log.InfoContext(ctx, "Bot is started",
		"updateTimeoutSeconds", bot.BotUpdateTimeout)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.InfoContext(ctx, "Shutdown signal is received",
		"signal", sig.String())
	cancel()

	log.InfoContext(ctx, "Exiting...",
		"signal", sig.String(),
		"uptimeSeconds", time.Since(start).Seconds())

	botInst.Stop()
	log.InfoContext(ctx, "Bot is stopped",
		"uptimeSeconds", time.Since(start).Seconds())
}
