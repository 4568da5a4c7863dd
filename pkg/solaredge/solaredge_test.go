package solaredge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func energyDetails(meters ...map[string]any) map[string]any {
	return map[string]any{
		"energyDetails": map[string]any{
			"timeUnit": timeUnitQuarterHour,
			"unit":     "Wh",
			"meters":   meters,
		},
	}
}

func TestClient(t *testing.T) {
	t.Run("EnergyDetails", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/site/12345/energyDetails", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "secret", q.Get("api_key"))
			assert.Equal(t, "QUARTER_OF_AN_HOUR", q.Get("timeUnit"))
			assert.Equal(t, "2024-11-08 00:00:00", q.Get("startTime"))
			assert.Equal(t, "2024-11-08 01:00:00", q.Get("endTime"))
			assert.Contains(t, r.Header.Get("User-Agent"), "MeterSync/")

			json.NewEncoder(w).Encode(energyDetails(
				map[string]any{
					"type": "Production",
					"values": []map[string]any{
						{"date": "2024-11-08 00:00:00", "value": 100.0},
						{"date": "2024-11-08 00:15:00"},
					},
				},
				map[string]any{
					"type": "Consumption",
					"values": []map[string]any{
						{"date": "2024-11-08 00:00:00", "value": 250.5},
					},
				},
			))
		}))
		defer ts.Close()

		c := New(Config{BaseURL: ts.URL, SiteID: "12345", APIKey: "secret", Location: time.UTC})
		start := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
		b, err := c.EnergyDetails(context.Background(), start, start.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, "Wh", b.Unit)
		require.Len(t, b.Meters, 2)
		assert.Equal(t, "Production", b.Meters[0].Type)
		require.Len(t, b.Meters[0].Points, 2)
		assert.Equal(t, start, b.Meters[0].Points[0].Time)
		require.NotNil(t, b.Meters[0].Points[0].Value)
		assert.Equal(t, 100.0, *b.Meters[0].Points[0].Value)
		assert.Nil(t, b.Meters[0].Points[1].Value, "missing value should stay nil")
		assert.Equal(t, 250.5, *b.Meters[1].Points[0].Value)
	})

	t.Run("Chunks", func(t *testing.T) {
		var mu sync.Mutex
		var ranges [][2]string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			mu.Lock()
			ranges = append(ranges, [2]string{q.Get("startTime"), q.Get("endTime")})
			mu.Unlock()
			json.NewEncoder(w).Encode(energyDetails(map[string]any{
				"type":   "Production",
				"values": []map[string]any{{"date": q.Get("startTime"), "value": 1.0}},
			}))
		}))
		defer ts.Close()

		c := New(Config{BaseURL: ts.URL, SiteID: "1", APIKey: "k", Location: time.UTC, MaxSpan: 24 * time.Hour})
		start := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
		b, err := c.EnergyDetails(context.Background(), start, start.Add(60*time.Hour))
		require.NoError(t, err)

		assert.Equal(t, [][2]string{
			{"2024-11-08 00:00:00", "2024-11-09 00:00:00"},
			{"2024-11-09 00:00:01", "2024-11-10 00:00:01"},
			{"2024-11-10 00:00:02", "2024-11-10 12:00:00"},
		}, ranges)
		require.Len(t, b.Meters, 1)
		assert.Len(t, b.Meters[0].Points, 3)
	})

	t.Run("PartialFailure", func(t *testing.T) {
		var calls int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls > 1 {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(energyDetails(map[string]any{
				"type":   "Production",
				"values": []map[string]any{{"date": "2024-11-08 00:00:00", "value": 1.0}},
			}))
		}))
		defer ts.Close()

		c := New(Config{BaseURL: ts.URL, SiteID: "1", APIKey: "k", Location: time.UTC, MaxSpan: 24 * time.Hour})
		start := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
		b, err := c.EnergyDetails(context.Background(), start, start.Add(72*time.Hour))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFetch)
		assert.ErrorContains(t, err, "status 429")
		assert.Equal(t, 2, calls, "walk should stop at the first failure")
		assert.Equal(t, 1, b.Len(), "chunks before the failure should be returned")
	})

	t.Run("BadJSON", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer ts.Close()

		c := New(Config{BaseURL: ts.URL, SiteID: "1", APIKey: "k"})
		now := time.Now()
		_, err := c.EnergyDetails(context.Background(), now.Add(-time.Hour), now)
		assert.ErrorIs(t, err, ErrFetch)
	})

	t.Run("TransportErrorHidesKey", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		ts.Close()

		c := New(Config{BaseURL: ts.URL, SiteID: "1", APIKey: "super-secret"})
		now := time.Now()
		_, err := c.EnergyDetails(context.Background(), now.Add(-time.Hour), now)
		require.ErrorIs(t, err, ErrFetch)
		assert.NotContains(t, err.Error(), "super-secret")
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		c := New(Config{BaseURL: "http://127.0.0.1:1", SiteID: "1", APIKey: "k"})
		now := time.Now()
		b, err := c.EnergyDetails(context.Background(), now, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, b.Empty())
	})
}

var _ Source = (*Client)(nil)
