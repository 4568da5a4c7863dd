package types

import (
	"time"
)

// DateColumn is the name of the timestamp column in the persisted dataset.
const DateColumn = "date"

// Row is one timestamp with a value per meter. A meter missing from Values is
// null, which is different from a zero reading.
type Row struct {
	Time   time.Time
	Values map[string]float64
}

// Value returns the value for the given column and whether it was present.
func (r Row) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Dataset is the wide table persisted by the job. Rows are ordered by Time and
// each Time appears at most once. Columns holds the meter columns in their
// persisted order and excludes DateColumn.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Empty returns true if the dataset has no rows.
func (d Dataset) Empty() bool {
	return len(d.Rows) == 0
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Watermark returns the latest timestamp in the dataset. It does not assume
// the rows are sorted.
func (d Dataset) Watermark() (time.Time, bool) {
	if len(d.Rows) == 0 {
		return time.Time{}, false
	}
	latest := d.Rows[0].Time
	for _, r := range d.Rows[1:] {
		if r.Time.After(latest) {
			latest = r.Time
		}
	}
	return latest, true
}

// HasColumn returns true if the dataset has the given meter column.
func (d Dataset) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}
