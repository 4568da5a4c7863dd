// Package export converts the persisted dataset into files for spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/raterudder/metersync/pkg/dataset"
	"github.com/raterudder/metersync/pkg/types"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	readingsSheet = "meter_data"
	dailySheet    = "daily_kwh"
)

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return dataset.CSV{}.ContentType()
	default:
		return "application/octet-stream"
	}
}

// Write encodes d as format to w.
func Write(w io.Writer, d types.Dataset, format string) error {
	var (
		b   []byte
		err error
	)
	switch format {
	case FormatCSV:
		b, err = dataset.CSV{}.Marshal(d)
	case FormatXLSX:
		b, err = XLSX(d)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// XLSX renders a workbook with the raw readings in Wh and a per day summary
// in kWh.
func XLSX(d types.Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return nil, err
	}

	header := append([]any{types.DateColumn}, columnsAny(d.Columns)...)
	if err := f.SetSheetRow(readingsSheet, "A1", &header); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(dailySheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, r := range d.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{r.Time.Format(dataset.DateLayout)}
		for _, c := range d.Columns {
			if v, ok := r.Value(c); ok {
				values = append(values, v)
			} else {
				values = append(values, nil)
			}
		}
		if err := f.SetSheetRow(readingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	for i, day := range daily(d) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(dailySheet, cell, &day); err != nil {
			return nil, fmt.Errorf("failed to write daily row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func columnsAny(columns []string) []any {
	out := make([]any, 0, len(columns))
	for _, c := range columns {
		out = append(out, c)
	}
	return out
}

// daily sums each column per calendar day, in kWh.
func daily(d types.Dataset) [][]any {
	type day struct {
		start time.Time
		sums  []float64
	}
	days := make(map[int64]*day)
	for _, r := range d.Rows {
		start := time.Date(r.Time.Year(), r.Time.Month(), r.Time.Day(), 0, 0, 0, 0, r.Time.Location())
		k := start.UnixNano()
		dd, ok := days[k]
		if !ok {
			dd = &day{start: start, sums: make([]float64, len(d.Columns))}
			days[k] = dd
		}
		for i, c := range d.Columns {
			if v, ok := r.Value(c); ok {
				dd.sums[i] += v
			}
		}
	}

	var out [][]any
	for _, k := range slices.Sorted(maps.Keys(days)) {
		dd := days[k]
		row := []any{dd.start.Format(time.DateOnly)}
		for _, s := range dd.sums {
			row = append(row, s/1000)
		}
		out = append(out, row)
	}
	return out
}
