package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/raterudder/metersync/pkg/types"
)

// DateLayout is the timestamp layout used by the vendor API and the CSV
// codec.
const DateLayout = "2006-01-02 15:04:05"

// CSV stores the dataset as a header row followed by one line per timestamp.
// Empty cells are nulls.
type CSV struct {
	Location *time.Location
}

// ContentType implements Codec.
func (CSV) ContentType() string {
	return "text/csv"
}

// Marshal implements Codec.
func (c CSV) Marshal(d types.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{types.DateColumn}, d.Columns...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	record := make([]string, len(header))
	for _, r := range d.Rows {
		record[0] = r.Time.Format(DateLayout)
		for i, col := range d.Columns {
			if v, ok := r.Values[col]; ok {
				record[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			} else {
				record[i+1] = ""
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Codec.
func (c CSV) Unmarshal(b []byte) (types.Dataset, error) {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil {
		return types.Dataset{}, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return types.Dataset{}, nil
	}

	header := records[0]
	dateIdx := -1
	var d types.Dataset
	for i, h := range header {
		if h == types.DateColumn {
			dateIdx = i
			continue
		}
		d.Columns = append(d.Columns, h)
	}
	if dateIdx < 0 {
		return types.Dataset{}, fmt.Errorf("csv is missing the %q column", types.DateColumn)
	}

	for line, rec := range records[1:] {
		ts, err := time.ParseInLocation(DateLayout, rec[dateIdx], loc)
		if err != nil {
			return types.Dataset{}, fmt.Errorf("invalid date on line %d: %w", line+2, err)
		}
		row := types.Row{Time: ts, Values: make(map[string]float64, len(header)-1)}
		for i, cell := range rec {
			if i == dateIdx || cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return types.Dataset{}, fmt.Errorf("invalid %s value on line %d: %w", header[i], line+2, err)
			}
			row.Values[header[i]] = v
		}
		d.Rows = append(d.Rows, row)
	}
	return Normalize(d), nil
}
