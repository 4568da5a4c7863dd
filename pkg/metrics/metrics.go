package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the job metrics. Each bundle has its own registry so the
// batch commands can write exactly these series to a textfile.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	FetchedTotal  prometheus.Counter
	DatasetRows   prometheus.Gauge
	Watermark     prometheus.Gauge
	LastRunTime   prometheus.Gauge
	ChartsWritten prometheus.Counter
}

// New constructs and registers metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metersync_runs_total",
				Help: "Total job runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metersync_run_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		FetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metersync_fetched_readings_total",
			Help: "Total readings fetched from SolarEdge",
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metersync_dataset_rows",
			Help: "Rows in the persisted dataset after the last run",
		}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metersync_watermark_timestamp_seconds",
			Help: "Latest timestamp in the persisted dataset",
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metersync_last_run_timestamp_seconds",
			Help: "When the last job run finished",
		}),
		ChartsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metersync_charts_written_total",
			Help: "Total chart documents written",
		}),
	}
	m.Registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.FetchedTotal,
		m.DatasetRows,
		m.Watermark,
		m.LastRunTime,
		m.ChartsWritten,
	)
	return m
}

// WithRuntime adds the go and process collectors, used by the long running
// server.
func (m *Metrics) WithRuntime() *Metrics {
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(outcome string, duration time.Duration, fetched, rows int, watermark time.Time) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.FetchedTotal.Add(float64(fetched))
	m.LastRunTime.SetToCurrentTime()
	if rows > 0 {
		m.DatasetRows.Set(float64(rows))
	}
	if !watermark.IsZero() {
		m.Watermark.Set(float64(watermark.Unix()))
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format. An
// empty path does nothing.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
