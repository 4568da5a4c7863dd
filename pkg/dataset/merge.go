// Package dataset implements the reshape-and-merge engine that folds freshly
// fetched meter readings into the persisted wide table, the window selector
// that decides what to fetch next, and the codecs used to persist it.
package dataset

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/raterudder/metersync/pkg/types"
)

// Flatten turns a batch into readings. Points without a value are read as 0.
func Flatten(b types.Batch) []types.Reading {
	readings := make([]types.Reading, 0, b.Len())
	for _, m := range b.Meters {
		for _, p := range m.Points {
			var v float64
			if p.Value != nil {
				v = *p.Value
			}
			readings = append(readings, types.Reading{
				Time:  p.Time,
				Meter: m.Type,
				Value: v,
			})
		}
	}
	return readings
}

// Pivot groups readings by timestamp into wide rows with one column per
// meter. When the same (time, meter) pair appears more than once the last
// value wins. Columns are sorted by name and rows by time.
func Pivot(readings []types.Reading) types.Dataset {
	byTime := make(map[int64]*types.Row, len(readings))
	columns := make(map[string]struct{})
	for _, r := range readings {
		key := r.Time.UnixNano()
		row, ok := byTime[key]
		if !ok {
			row = &types.Row{Time: r.Time, Values: make(map[string]float64)}
			byTime[key] = row
		}
		row.Values[r.Meter] = r.Value
		columns[r.Meter] = struct{}{}
	}

	d := types.Dataset{
		Columns: slices.Sorted(maps.Keys(columns)),
		Rows:    make([]types.Row, 0, len(byTime)),
	}
	for _, row := range byTime {
		d.Rows = append(d.Rows, *row)
	}
	sortRows(d.Rows)
	return d
}

// Merge folds batch into existing. It returns the merged dataset and whether
// anything changed. An empty batch is a no-op and returns existing untouched
// so callers can skip persisting.
func Merge(existing types.Dataset, batch types.Batch) (types.Dataset, bool) {
	if batch.Empty() {
		return existing, false
	}
	return Combine(existing, Pivot(Flatten(batch))), true
}

// Combine concatenates incoming onto existing and deduplicates by timestamp.
// An incoming row replaces the existing row with the same timestamp as a
// whole, so upstream revisions overwrite what was persisted before. Columns
// only present in incoming are appended and stay null in older rows.
func Combine(existing, incoming types.Dataset) types.Dataset {
	out := types.Dataset{
		Columns: slices.Clone(existing.Columns),
		Rows:    make([]types.Row, 0, len(existing.Rows)+len(incoming.Rows)),
	}
	for _, c := range incoming.Columns {
		if !slices.Contains(out.Columns, c) {
			out.Columns = append(out.Columns, c)
		}
	}

	index := make(map[int64]int, len(existing.Rows)+len(incoming.Rows))
	add := func(r types.Row) {
		r = types.Row{Time: r.Time, Values: maps.Clone(r.Values)}
		if r.Values == nil {
			r.Values = make(map[string]float64)
		}
		key := r.Time.UnixNano()
		if i, ok := index[key]; ok {
			out.Rows[i] = r
			return
		}
		index[key] = len(out.Rows)
		out.Rows = append(out.Rows, r)
	}
	for _, r := range existing.Rows {
		add(r)
	}
	for _, r := range incoming.Rows {
		add(r)
	}
	sortRows(out.Rows)
	return out
}

// Normalize sorts a dataset by time and collapses duplicate timestamps,
// keeping the last occurrence. Decoders use it so files written by other
// tools satisfy the dataset invariants.
func Normalize(d types.Dataset) types.Dataset {
	return Combine(types.Dataset{Columns: d.Columns}, d)
}

func sortRows(rows []types.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})
}

// SelectWindow returns the window to request from the vendor. An empty
// dataset starts at bootstrap, otherwise one quarter hour after the latest
// timestamp. The window may be empty if the watermark is ahead of now.
func SelectWindow(d types.Dataset, bootstrap, now time.Time) types.Window {
	start := bootstrap
	if wm, ok := d.Watermark(); ok {
		start = wm.Add(types.QuarterHour)
	}
	return types.Window{Start: start, End: now}
}
