package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/export"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/storage"
)

func main() {
	cfg := config.Configured(config.ScopeRead)
	gateway := storage.Configured(cfg)

	format := lflag.String("format", export.FormatCSV, "Export format (csv or xlsx)")
	out := lflag.String("out", "", "Output path, defaults to meter_data.<format>")

	lflag.Configure()
	log.SetLevelFromLLog()

	ctx := context.Background()
	if err := run(ctx, gateway, *format, *out); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "export failed", slog.Any("error", err))
		gateway.Close()
		os.Exit(1)
	}
	if err := gateway.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
	}
}

func run(ctx context.Context, gateway *storage.Gateway, format, out string) error {
	if out == "" {
		out = "meter_data." + format
	}
	d, err := gateway.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := export.Write(f, d, format); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", out, err)
	}
	log.Ctx(ctx).InfoContext(ctx, "exported dataset",
		slog.String("path", out),
		slog.String("format", format),
		slog.Int("rows", d.Len()),
	)
	return nil
}
