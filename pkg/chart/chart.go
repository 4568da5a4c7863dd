// Package chart renders a meter column as an interactive Plotly document with
// Day, Week, Month, 6 Months and Year views.
package chart

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/raterudder/metersync/pkg/types"
)

// ErrUnknownColumn is returned when the dataset has no such meter column.
var ErrUnknownColumn = errors.New("unknown column")

// Point is one plotted value in kWh. Y is nil for a native row without the
// column, which Plotly draws as a gap.
type Point struct {
	X time.Time
	Y *float64
}

// View is one selectable trace and the x-axis range shown with it.
type View struct {
	Name   string
	Points []Point
	From   time.Time
	To     time.Time
}

// bucketFunc floors a timestamp to the start of its bucket.
type bucketFunc func(time.Time) time.Time

func floorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func floorDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// floorWeek floors to the Monday starting the week.
func floorWeek(t time.Time) time.Time {
	d := floorDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func kWh(wh float64) float64 {
	return wh / 1000
}

// Views builds the five views of column. Aggregated views cover the whole
// dataset; the range only controls what is initially on screen.
func Views(d types.Dataset, column string, now time.Time) ([]View, error) {
	if !d.HasColumn(column) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	todayStart := floorDay(now)
	todayEnd := todayStart.AddDate(0, 0, 1).Add(-time.Second)

	return []View{
		{Name: "Day", Points: day(d, column, todayStart, todayEnd), From: todayStart, To: todayEnd},
		{Name: "Week", Points: aggregate(d, column, floorHour), From: now.Add(-7 * 24 * time.Hour), To: now},
		{Name: "Month", Points: aggregate(d, column, floorDay), From: now.Add(-30 * 24 * time.Hour), To: now},
		{Name: "6 Months", Points: aggregate(d, column, floorDay), From: now.Add(-180 * 24 * time.Hour), To: now},
		{Name: "Year", Points: aggregate(d, column, floorWeek), From: now.Add(-365 * 24 * time.Hour), To: now},
	}, nil
}

// day returns the native rows within [from, to].
func day(d types.Dataset, column string, from, to time.Time) []Point {
	var points []Point
	for _, r := range d.Rows {
		if r.Time.Before(from) || r.Time.After(to) {
			continue
		}
		p := Point{X: r.Time}
		if v, ok := r.Value(column); ok {
			kw := kWh(v)
			p.Y = &kw
		}
		points = append(points, p)
	}
	return points
}

// aggregate sums column per bucket. Rows without the column are skipped so a
// bucket where every row lacks it sums to 0.
func aggregate(d types.Dataset, column string, bucket bucketFunc) []Point {
	sums := make(map[int64]float64)
	starts := make(map[int64]time.Time)
	for _, r := range d.Rows {
		b := bucket(r.Time)
		k := b.UnixNano()
		if _, ok := starts[k]; !ok {
			starts[k] = b
			sums[k] = 0
		}
		if v, ok := r.Value(column); ok {
			sums[k] += v
		}
	}

	points := make([]Point, 0, len(sums))
	for _, k := range slices.Sorted(maps.Keys(sums)) {
		v := kWh(sums[k])
		points = append(points, Point{X: starts[k], Y: &v})
	}
	return points
}
