package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	wm := time.Date(2024, 11, 8, 12, 0, 0, 0, time.UTC)
	m.ObserveRun("updated", 2*time.Second, 96, 1000, wm)
	m.ObserveRun("fetch_failed", time.Second, 0, 0, time.Time{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("fetch_failed")))
	assert.Equal(t, 96.0, testutil.ToFloat64(m.FetchedTotal))
	// a failed run keeps the last known size and watermark
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.DatasetRows))
	assert.Equal(t, float64(wm.Unix()), testutil.ToFloat64(m.Watermark))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun("no_data", time.Second, 0, 10, time.Time{})

	require.NoError(t, m.WriteTextfile(""))

	path := filepath.Join(t.TempDir(), "metersync.prom")
	require.NoError(t, m.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `metersync_runs_total{outcome="no_data"} 1`)
	assert.Contains(t, string(b), "metersync_dataset_rows 10")
}

func TestHandler(t *testing.T) {
	m := New().WithRuntime()
	m.ChartsWritten.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "metersync_charts_written_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
