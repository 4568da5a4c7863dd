package main

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/dataset"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/storage"
	"github.com/raterudder/metersync/pkg/types"
)

// Simulated site
const (
	SolarPeakKW = 8.0
	HomeAvgKW   = 1.5
)

func main() {
	cfg := config.Configured(config.ScopeRead)
	gateway := storage.Configured(cfg)
	span := lflag.Duration("seed-span", 30*24*time.Hour, "How far back from now to generate mock readings")

	lflag.Configure()
	log.SetLevelFromLLog()

	ctx := context.Background()
	defer gateway.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock meter data", slog.Duration("span", *span))

	existing, err := gateway.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load dataset", slog.Any("error", err))
		os.Exit(1)
	}

	now := time.Now().In(cfg.Site.Location())
	batch := generate(rand.New(rand.NewSource(now.UnixNano())), now.Add(-*span), now)
	merged, _ := dataset.Merge(existing, batch)
	if err := gateway.Save(ctx, merged); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save dataset", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded mock meter data", slog.Int("readings", batch.Len()), slog.Int("rows", merged.Len()))
}

// generate returns quarter hour readings in Wh between start and end.
func generate(rng *rand.Rand, start, end time.Time) types.Batch {
	meters := map[string]*types.Meter{}
	order := []string{
		types.MeterProduction,
		types.MeterConsumption,
		types.MeterSelfConsumption,
		types.MeterFeedIn,
		types.MeterPurchased,
	}
	for _, m := range order {
		meters[m] = &types.Meter{Type: m}
	}
	add := func(meter string, t time.Time, kw float64) {
		// kW over a quarter hour
		wh := math.Round(kw * 1000 / 4)
		meters[meter].Points = append(meters[meter].Points, types.Point{Time: t, Value: &wh})
	}

	start = start.Truncate(types.QuarterHour)
	for t := start; !t.After(end); t = t.Add(types.QuarterHour) {
		hour := float64(t.Hour()) + float64(t.Minute())/60

		// Solar (bell curve)
		solarKW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(hour - 13.0)
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/12.0) * (0.7 + rng.Float64()*0.3)
		}

		// Home usage
		homeKW := HomeAvgKW + (rng.Float64() * 1.0)
		if hour >= 7 && hour < 9 {
			homeKW += 2.0 // Breakfast
		} else if hour >= 18 && hour < 22 {
			homeKW += 4.0 // Evening activities
		}

		self := math.Min(solarKW, homeKW)
		add(types.MeterProduction, t, solarKW)
		add(types.MeterConsumption, t, homeKW)
		add(types.MeterSelfConsumption, t, self)
		add(types.MeterFeedIn, t, solarKW-self)
		add(types.MeterPurchased, t, homeKW-self)
	}

	b := types.Batch{Unit: "Wh"}
	for _, m := range order {
		b.Meters = append(b.Meters, *meters[m])
	}
	return b
}
