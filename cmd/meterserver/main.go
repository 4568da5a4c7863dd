package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/job"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/metrics"
	"github.com/raterudder/metersync/pkg/server"
	"github.com/raterudder/metersync/pkg/solaredge"
	"github.com/raterudder/metersync/pkg/storage"
)

func main() {
	// init packages
	cfg := config.Configured(config.ScopeFetch)
	source := solaredge.Configured(cfg)
	gateway := storage.Configured(cfg)
	m := metrics.New().WithRuntime()
	runner := job.Configured(source, gateway, cfg, m)

	// init server
	srv := server.Configured(runner, gateway, cfg, m)

	// parse flags
	lflag.Configure()
	level := log.SetLevelFromLLog()
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if cfg.ScheduleInterval > 0 {
		go func() {
			if err := runner.Schedule(ctx, cfg.ScheduleInterval); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "scheduler failed", slog.Any("error", err))
			}
		}()
	}

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
