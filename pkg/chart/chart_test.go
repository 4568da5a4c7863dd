package chart

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	"github.com/raterudder/metersync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(t time.Time, values map[string]float64) types.Row {
	return types.Row{Time: t, Values: values}
}

func values(points []Point) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Y == nil {
			out = append(out, -1)
			continue
		}
		out = append(out, *p.Y)
	}
	return out
}

func TestFloors(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	// Thursday
	ts := time.Date(2024, 11, 14, 13, 45, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 11, 14, 13, 0, 0, 0, loc), floorHour(ts))
	assert.Equal(t, time.Date(2024, 11, 14, 0, 0, 0, 0, loc), floorDay(ts))
	assert.Equal(t, time.Date(2024, 11, 11, 0, 0, 0, 0, loc), floorWeek(ts))
	// Sunday belongs to the week started the previous Monday
	assert.Equal(t, time.Date(2024, 11, 11, 0, 0, 0, 0, loc), floorWeek(time.Date(2024, 11, 17, 23, 0, 0, 0, loc)))
	// Monday starts its own week
	assert.Equal(t, time.Date(2024, 11, 18, 0, 0, 0, 0, loc), floorWeek(time.Date(2024, 11, 18, 0, 0, 0, 0, loc)))
}

func TestViews(t *testing.T) {
	now := time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)
	today := time.Date(2024, 11, 14, 0, 0, 0, 0, time.UTC)
	d := types.Dataset{
		Columns: []string{types.MeterConsumption, types.MeterProduction},
		Rows: []types.Row{
			row(today.AddDate(0, 0, -3), map[string]float64{types.MeterConsumption: 50}),
			row(today.AddDate(0, 0, -3).Add(types.QuarterHour), map[string]float64{types.MeterProduction: 7}),
			row(today.Add(10*time.Hour), map[string]float64{types.MeterConsumption: 100}),
			row(today.Add(10*time.Hour+types.QuarterHour), map[string]float64{types.MeterConsumption: 200}),
			row(today.Add(11*time.Hour), map[string]float64{types.MeterProduction: 1}),
		},
	}

	views, err := Views(d, types.MeterConsumption, now)
	require.NoError(t, err)
	require.Len(t, views, 5)
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"Day", "Week", "Month", "6 Months", "Year"}, names)

	t.Run("Day", func(t *testing.T) {
		day := views[0]
		assert.Equal(t, today, day.From)
		assert.Equal(t, today.Add(24*time.Hour-time.Second), day.To)
		// native rows of today, a row without the column is a gap
		assert.Equal(t, []float64{0.1, 0.2, -1}, values(day.Points))
	})

	t.Run("Week", func(t *testing.T) {
		week := views[1]
		assert.Equal(t, now.Add(-7*24*time.Hour), week.From)
		assert.Equal(t, now, week.To)
		require.Len(t, week.Points, 3)
		assert.Equal(t, today.AddDate(0, 0, -3), week.Points[0].X)
		assert.Equal(t, today.Add(10*time.Hour), week.Points[1].X)
		// 100 Wh + 200 Wh in the same hour
		assert.Equal(t, []float64{0.05, 0.3, 0}, values(week.Points))
	})

	t.Run("Month", func(t *testing.T) {
		assert.Equal(t, []float64{0.05, 0.3}, values(views[2].Points))
		assert.Equal(t, now.Add(-30*24*time.Hour), views[2].From)
		assert.Equal(t, values(views[2].Points), values(views[3].Points))
		assert.Equal(t, now.Add(-180*24*time.Hour), views[3].From)
	})

	t.Run("Year", func(t *testing.T) {
		year := views[4]
		assert.Equal(t, now.Add(-365*24*time.Hour), year.From)
		// both days fall in the week starting Monday 2024-11-11
		require.Len(t, year.Points, 1)
		assert.Equal(t, time.Date(2024, 11, 11, 0, 0, 0, 0, time.UTC), year.Points[0].X)
		assert.InDelta(t, 0.35, *year.Points[0].Y, 1e-9)
	})

	t.Run("UnknownColumn", func(t *testing.T) {
		_, err := Views(d, "Battery", now)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	})
}

func TestRender(t *testing.T) {
	now := time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)
	d := types.Dataset{
		Columns: []string{types.MeterProduction},
		Rows:    []types.Row{row(now.Add(-time.Hour), map[string]float64{types.MeterProduction: 300})},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, types.MeterProduction, now))
	out := buf.String()
	assert.Contains(t, out, `<script src="https://cdn.plot.ly/plotly-2.34.0.min.js">`)
	assert.Contains(t, out, "Plotly.newPlot")
	for _, name := range []string{`"Day"`, `"Week"`, `"Month"`, `"6 Months"`, `"Year"`} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "Production (kWh)")
	assert.Contains(t, out, "2024-11-14 11:00:00")
}

func TestFigure(t *testing.T) {
	now := time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)
	d := types.Dataset{
		Columns: []string{types.MeterProduction, types.MeterConsumption},
		Rows: []types.Row{
			row(now.Add(-time.Hour), map[string]float64{types.MeterProduction: 300}),
			row(now.Add(-45*time.Minute), map[string]float64{types.MeterConsumption: 100}),
		},
	}

	fig, err := Figure(d, types.MeterProduction, now)
	require.NoError(t, err)
	require.Len(t, fig.Data, 5)

	day, ok := fig.Data[0].(*grob.Scatter)
	require.True(t, ok)
	assert.Equal(t, true, day.Visible)
	week, ok := fig.Data[1].(*grob.Scatter)
	require.True(t, ok)
	assert.Equal(t, false, week.Visible)
	assert.EqualValues(t, "Week", week.Name)

	dayStart := time.Date(2024, 11, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2024-11-14 00:00:00", "2024-11-14 23:59:59"}, fig.Layout.Xaxis.Range)
	assert.Equal(t, axisRange(dayStart, dayStart.AddDate(0, 0, 1).Add(-time.Second)), fig.Layout.Xaxis.Range)

	require.Len(t, fig.Layout.Updatemenus, 1)
	buttons := fig.Layout.Updatemenus[0].Buttons
	require.Len(t, buttons, 5)
	assert.EqualValues(t, "Week", buttons[1].Label)
	args, ok := buttons[1].Args.([]any)
	require.True(t, ok)
	require.Len(t, args, 2)
	assert.Equal(t, map[string]any{"visible": []bool{false, true, false, false, false}}, args[0])
	assert.Equal(t, map[string]any{"xaxis.range": axisRange(now.Add(-7*24*time.Hour), now)}, args[1])

	b, err := json.Marshal(fig)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"scatter"`)
	// the consumption-only row is a gap in the Day trace
	assert.Contains(t, string(b), `"y":[0.3,null]`)

	_, err = Figure(d, "Battery", now)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	now := time.Date(2024, 11, 14, 12, 0, 0, 0, time.UTC)
	d := types.Dataset{Columns: []string{types.MeterConsumption}}

	path, err := Write(dir, d, types.MeterConsumption, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Consumption.html"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<!DOCTYPE html>")

	_, err = Write(dir, d, "../Consumption", now)
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = Write(dir, d, types.MeterProduction, now)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
