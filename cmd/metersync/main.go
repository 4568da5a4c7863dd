package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/job"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/metrics"
	"github.com/raterudder/metersync/pkg/solaredge"
	"github.com/raterudder/metersync/pkg/storage"
)

const backfillLayout = "2006-01-02 15:04:05"

func main() {
	// init packages
	cfg := config.Configured(config.ScopeFetch)
	source := solaredge.Configured(cfg)
	gateway := storage.Configured(cfg)
	m := metrics.New()
	runner := job.Configured(source, gateway, cfg, m)

	backfillStart := lflag.String("backfill-start", "", "Fetch and merge an explicit window starting at this wall clock time (YYYY-MM-DD HH:MM:SS)")
	backfillEnd := lflag.String("backfill-end", "", "End of the backfill window, defaults to now")

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

	switch {
	case *backfillStart != "":
		loc := cfg.Site.Location()
		start, err := time.ParseInLocation(backfillLayout, *backfillStart, loc)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid backfill-start", slog.Any("error", err))
			os.Exit(1)
		}
		end := time.Now().In(loc)
		if *backfillEnd != "" {
			end, err = time.ParseInLocation(backfillLayout, *backfillEnd, loc)
			if err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "invalid backfill-end", slog.Any("error", err))
				os.Exit(1)
			}
		}
		runner.Backfill(ctx, start, end)
	case cfg.ScheduleInterval > 0:
		if err := runner.Schedule(ctx, cfg.ScheduleInterval); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "scheduler failed", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		// every outcome is logged by the runner and the next run heals
		runner.Run(ctx)
	}

	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write metrics", slog.Any("error", err))
	}
}
