package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/chart"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/metrics"
	"github.com/raterudder/metersync/pkg/storage"
)

func main() {
	cfg := config.Configured(config.ScopeRead)
	gateway := storage.Configured(cfg)
	m := metrics.New()

	lflag.Configure()
	log.SetLevelFromLLog()

	ctx := context.Background()
	defer func() {
		if err := gateway.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if err := cfg.ValidateChart(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid chart configuration", slog.Any("error", err))
		os.Exit(1)
	}

	d, err := gateway.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Ctx(ctx).WarnContext(ctx, "no dataset to chart", slog.String("key", gateway.Key()))
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to load dataset", slog.Any("error", err))
		os.Exit(1)
	}

	now := time.Now().In(cfg.Site.Location())
	var failed bool
	for _, column := range cfg.Chart.Columns {
		path, err := chart.Write(cfg.Chart.OutputDir, d, column, now)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write chart", slog.String("column", column), slog.Any("error", err))
			failed = true
			continue
		}
		m.ChartsWritten.Inc()
		log.Ctx(ctx).InfoContext(ctx, "wrote chart", slog.String("column", column), slog.String("path", path))
	}

	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to write metrics", slog.Any("error", err))
	}
	if failed {
		os.Exit(1)
	}
}
