package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/raterudder/metersync/pkg/types"
)

const parquetReadBatch = 1024

// Parquet stores the dataset as a single row group parquet file with a
// millisecond timestamp column and one optional double column per meter.
type Parquet struct {
	Location *time.Location
}

// ContentType implements Codec.
func (Parquet) ContentType() string {
	return "application/vnd.apache.parquet"
}

// Marshal implements Codec.
func (p Parquet) Marshal(d types.Dataset) ([]byte, error) {
	group := parquet.Group{
		// wall clock without a zone, like a pandas datetime64[ms] column
		types.DateColumn: parquet.TimestampAdjusted(parquet.Millisecond, false),
	}
	for _, c := range d.Columns {
		if c == types.DateColumn {
			return nil, fmt.Errorf("meter column collides with %q", types.DateColumn)
		}
		group[c] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	schema := parquet.NewSchema("meter_data", group)
	fields := schema.Fields()

	rows := make([]parquet.Row, 0, len(d.Rows))
	for _, r := range d.Rows {
		row := make(parquet.Row, len(fields))
		for i, f := range fields {
			if f.Name() == types.DateColumn {
				row[i] = parquet.Int64Value(naive(r.Time).UnixMilli()).Level(0, 0, i)
				continue
			}
			if v, ok := r.Values[f.Name()]; ok {
				row[i] = parquet.DoubleValue(v).Level(0, 1, i)
			} else {
				row[i] = parquet.NullValue().Level(0, 0, i)
			}
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	w := parquet.NewWriter(&buf, schema, parquet.Compression(&parquet.Zstd))
	if _, err := w.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Codec. It also reads files written by pandas, where
// the timestamp may be in nano or micro seconds and meter columns may be
// integers.
func (p Parquet) Unmarshal(b []byte) (types.Dataset, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return types.Dataset{}, fmt.Errorf("failed to open parquet file: %w", err)
	}

	fields := f.Schema().Fields()
	dateIdx := -1
	var unit time.Duration
	var d types.Dataset
	for i, fld := range fields {
		if !fld.Leaf() {
			return types.Dataset{}, fmt.Errorf("nested parquet column %q is not supported", fld.Name())
		}
		if fld.Name() == types.DateColumn {
			dateIdx = i
			unit = timestampUnit(fld.Type().LogicalType())
			continue
		}
		d.Columns = append(d.Columns, fld.Name())
	}
	if dateIdx < 0 {
		return types.Dataset{}, fmt.Errorf("parquet file is missing the %q column", types.DateColumn)
	}

	r := parquet.NewReader(bytes.NewReader(b))
	defer r.Close()

	buf := make([]parquet.Row, parquetReadBatch)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			out := types.Row{Values: make(map[string]float64, len(fields)-1)}
			for _, v := range row {
				col := v.Column()
				if col < 0 || col >= len(fields) || v.IsNull() {
					continue
				}
				if col == dateIdx {
					out.Time = localize(time.Unix(0, v.Int64()*int64(unit)), loc)
					continue
				}
				if fv, ok := floatValue(v); ok {
					out.Values[fields[col].Name()] = fv
				}
			}
			d.Rows = append(d.Rows, out)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Dataset{}, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return Normalize(d), nil
}

// timestampUnit returns the duration of one tick of a parquet timestamp.
// pandas writes nanoseconds so that's the default when no logical type is
// present.
func timestampUnit(lt *format.LogicalType) time.Duration {
	if lt == nil || lt.Timestamp == nil {
		return time.Nanosecond
	}
	switch {
	case lt.Timestamp.Unit.Millis != nil:
		return time.Millisecond
	case lt.Timestamp.Unit.Micros != nil:
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

func floatValue(v parquet.Value) (float64, bool) {
	switch v.Kind() {
	case parquet.Double:
		return v.Double(), true
	case parquet.Float:
		return float64(v.Float()), true
	case parquet.Int64:
		return float64(v.Int64()), true
	case parquet.Int32:
		return float64(v.Int32()), true
	default:
		return 0, false
	}
}
