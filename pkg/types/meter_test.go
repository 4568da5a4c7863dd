package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(v float64) *float64 { return &v }

func TestBatch(t *testing.T) {
	t0 := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)

	t.Run("Empty", func(t *testing.T) {
		assert.True(t, Batch{}.Empty())
		assert.True(t, Batch{Meters: []Meter{{Type: MeterProduction}}}.Empty())
		assert.False(t, Batch{Meters: []Meter{{Type: MeterProduction, Points: []Point{{Time: t0}}}}}.Empty())
	})

	t.Run("Append merges meter types", func(t *testing.T) {
		b := Batch{Meters: []Meter{
			{Type: MeterProduction, Points: []Point{{Time: t0, Value: ptr(1)}}},
		}}
		b.Append(Batch{Unit: "Wh", Meters: []Meter{
			{Type: MeterProduction, Points: []Point{{Time: t0.Add(QuarterHour), Value: ptr(2)}}},
			{Type: MeterConsumption, Points: []Point{{Time: t0}}},
		}})

		assert.Equal(t, "Wh", b.Unit)
		assert.Len(t, b.Meters, 2)
		assert.Len(t, b.Meters[0].Points, 2)
		assert.Equal(t, MeterConsumption, b.Meters[1].Type)
		assert.Equal(t, 3, b.Len())
	})
}

func TestWindow(t *testing.T) {
	now := time.Now()
	assert.False(t, Window{Start: now, End: now}.Empty())
	assert.False(t, Window{Start: now.Add(-time.Hour), End: now}.Empty())
	assert.True(t, Window{Start: now.Add(time.Hour), End: now}.Empty())
}

func TestDatasetWatermark(t *testing.T) {
	t0 := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)

	_, ok := Dataset{}.Watermark()
	assert.False(t, ok)

	d := Dataset{
		Columns: []string{MeterProduction},
		Rows: []Row{
			{Time: t0.Add(QuarterHour)},
			{Time: t0.Add(2 * QuarterHour)},
			{Time: t0},
		},
	}
	wm, ok := d.Watermark()
	assert.True(t, ok)
	assert.Equal(t, t0.Add(2*QuarterHour), wm)
	assert.True(t, d.HasColumn(MeterProduction))
	assert.False(t, d.HasColumn(MeterConsumption))
	assert.Equal(t, 3, d.Len())
}
