// Package job keeps the persisted meter dataset up to date: it loads the
// dataset, fetches what is missing from SolarEdge, merges and saves it back.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/dataset"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/metrics"
	"github.com/raterudder/metersync/pkg/solaredge"
	"github.com/raterudder/metersync/pkg/storage"
	"github.com/raterudder/metersync/pkg/types"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeUpdated     Outcome = "updated"
	OutcomeNoData      Outcome = "no_data"
	OutcomeEmptyWindow Outcome = "empty_window"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeReadFailed  Outcome = "read_failed"
	OutcomeWriteFailed Outcome = "write_failed"
	OutcomeBusy        Outcome = "busy"
)

// Result describes a finished run. None of the outcomes are fatal, the caller
// decides whether to log and continue.
type Result struct {
	RunID     string        `json:"runID"`
	Outcome   Outcome       `json:"outcome"`
	Window    types.Window  `json:"window"`
	Fetched   int           `json:"fetched"`
	Rows      int           `json:"rows"`
	Watermark time.Time     `json:"watermark,omitzero"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Error returns the run's error message, if any.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Dataset loads and saves the persisted dataset. storage.Gateway implements
// it.
type Dataset interface {
	Load(ctx context.Context) (types.Dataset, error)
	Save(ctx context.Context, d types.Dataset) error
}

// Runner executes runs. Only one run per Runner executes at a time.
type Runner struct {
	source    solaredge.Source
	data      Dataset
	bootstrap time.Time
	location  *time.Location
	metrics   *metrics.Metrics
	now       func() time.Time

	mu sync.Mutex

	lastMu sync.RWMutex
	last   *Result
}

// Options configures a Runner.
type Options struct {
	// Bootstrap is where the first run starts when no dataset exists.
	Bootstrap time.Time
	// Location is the site time zone; the wall clock in it is "now".
	Location *time.Location
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// New returns a Runner.
func New(source solaredge.Source, data Dataset, opts Options) *Runner {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		source:    source,
		data:      data,
		bootstrap: opts.Bootstrap,
		location:  loc,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Configured returns a Runner that is set up from cfg once lflag.Configure
// runs.
func Configured(source solaredge.Source, data Dataset, cfg *config.Config, m *metrics.Metrics) *Runner {
	r := &Runner{}
	lflag.Do(func() {
		r.source = source
		r.data = data
		r.bootstrap = cfg.Site.Bootstrap()
		r.location = cfg.Site.Location()
		r.metrics = m
		r.now = time.Now
	})
	return r
}

// Last returns the most recent finished run, if any.
func (r *Runner) Last() (Result, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Run performs one incremental update, from the dataset's watermark to now.
func (r *Runner) Run(ctx context.Context) Result {
	return r.run(ctx, func(existing types.Dataset) types.Window {
		return dataset.SelectWindow(existing, r.bootstrap, r.now().In(r.location))
	})
}

// Backfill fetches [start, end] and merges it into the existing dataset.
// Fetched rows overwrite persisted rows with the same timestamp.
func (r *Runner) Backfill(ctx context.Context, start, end time.Time) Result {
	return r.run(ctx, func(types.Dataset) types.Window {
		return types.Window{Start: start.In(r.location), End: end.In(r.location)}
	})
}

func (r *Runner) run(ctx context.Context, window func(types.Dataset) types.Window) Result {
	ctx, runID := log.WithRun(ctx)
	res := Result{RunID: runID}

	if !r.mu.TryLock() {
		res.Outcome = OutcomeBusy
		res.Err = errors.New("another run is in progress")
		log.Ctx(ctx).WarnContext(ctx, "skipping run, another run is in progress")
		return res
	}
	defer r.mu.Unlock()

	start := time.Now()
	res = r.execute(ctx, res, window)
	res.Duration = time.Since(start)
	r.finish(ctx, res)
	return res
}

func (r *Runner) execute(ctx context.Context, res Result, window func(types.Dataset) types.Window) Result {
	existing, err := r.data.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			res.Outcome = OutcomeReadFailed
			res.Err = fmt.Errorf("failed to load dataset: %w", err)
			return res
		}
		log.Ctx(ctx).InfoContext(ctx, "no existing dataset, starting from bootstrap",
			slog.Time("bootstrap", r.bootstrap),
		)
		existing = types.Dataset{}
	}
	res.Rows = existing.Len()
	res.Watermark, _ = existing.Watermark()

	res.Window = window(existing)
	if res.Window.Empty() {
		res.Outcome = OutcomeEmptyWindow
		return res
	}

	log.Ctx(ctx).DebugContext(ctx, "fetching energy details",
		slog.Time("start", res.Window.Start),
		slog.Time("end", res.Window.End),
	)
	batch, fetchErr := r.source.EnergyDetails(ctx, res.Window.Start, res.Window.End)
	res.Fetched = batch.Len()

	merged, changed := dataset.Merge(existing, batch)
	if !changed {
		if fetchErr != nil {
			res.Outcome = OutcomeFetchFailed
			res.Err = fetchErr
			return res
		}
		res.Outcome = OutcomeNoData
		return res
	}

	if err := r.data.Save(ctx, merged); err != nil {
		res.Outcome = OutcomeWriteFailed
		res.Err = fmt.Errorf("failed to save dataset: %w", err)
		return res
	}
	res.Rows = merged.Len()
	res.Watermark, _ = merged.Watermark()

	// whatever was fetched before the failure is saved, the next run resumes
	// from the new watermark
	if fetchErr != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = fetchErr
		return res
	}
	res.Outcome = OutcomeUpdated
	return res
}

func (r *Runner) finish(ctx context.Context, res Result) {
	attrs := []any{
		slog.String("outcome", string(res.Outcome)),
		slog.Time("windowStart", res.Window.Start),
		slog.Time("windowEnd", res.Window.End),
		slog.Int("fetched", res.Fetched),
		slog.Int("rows", res.Rows),
		slog.Duration("duration", res.Duration),
	}
	if !res.Watermark.IsZero() {
		attrs = append(attrs, slog.Time("watermark", res.Watermark))
	}
	switch res.Outcome {
	case OutcomeReadFailed, OutcomeWriteFailed:
		log.Ctx(ctx).ErrorContext(ctx, "run failed", append(attrs, slog.Any("error", res.Err))...)
	case OutcomeFetchFailed:
		log.Ctx(ctx).WarnContext(ctx, "run fetch failed", append(attrs, slog.Any("error", res.Err))...)
	default:
		log.Ctx(ctx).InfoContext(ctx, "run finished", attrs...)
	}

	if r.metrics != nil {
		r.metrics.ObserveRun(string(res.Outcome), res.Duration, res.Fetched, res.Rows, res.Watermark)
	}

	r.lastMu.Lock()
	r.last = &res
	r.lastMu.Unlock()
}

// Schedule runs Run every interval, starting immediately, until ctx is done.
// Runs never overlap: a tick that fires while a run is in progress is
// skipped.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid schedule interval: %s", interval)
	}
	s := gocron.NewScheduler(r.location)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		r.Run(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule run: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "scheduling runs", slog.Duration("interval", interval))
	s.StartAsync()
	<-ctx.Done()
	s.Stop()
	return nil
}
