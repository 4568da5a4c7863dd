package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/raterudder/metersync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() types.Dataset {
	base := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
	return types.Dataset{
		Columns: []string{types.MeterConsumption, types.MeterProduction},
		Rows: []types.Row{
			{Time: base, Values: map[string]float64{types.MeterConsumption: 1500, types.MeterProduction: 250}},
			{Time: base.Add(types.QuarterHour), Values: map[string]float64{types.MeterProduction: 750}},
			{Time: base.Add(24 * time.Hour), Values: map[string]float64{types.MeterConsumption: 2000, types.MeterProduction: 0}},
		},
	}
}

func TestXLSX(t *testing.T) {
	b, err := XLSX(sample())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{readingsSheet, dailySheet}, f.GetSheetList())

	rows, err := f.GetRows(readingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"date", "Consumption", "Production"}, rows[0])
	assert.Equal(t, []string{"2024-11-08 00:00:00", "1500", "250"}, rows[1])
	assert.Equal(t, []string{"2024-11-08 00:15:00", "", "750"}, rows[2])

	days, err := f.GetRows(dailySheet)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, []string{"2024-11-08", "1.5", "1"}, days[1])
	assert.Equal(t, []string{"2024-11-09", "2", "0"}, days[2])
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), FormatCSV))
	assert.Contains(t, buf.String(), "date,Consumption,Production\n")
	assert.Contains(t, buf.String(), "2024-11-08 00:15:00,,750\n")

	buf.Reset()
	require.NoError(t, Write(&buf, sample(), FormatXLSX))
	// xlsx is a zip archive
	assert.Equal(t, []byte("PK"), buf.Bytes()[:2])

	assert.Error(t, Write(&buf, sample(), "pdf"))
	assert.Equal(t, "text/csv", ContentType(FormatCSV))
	assert.Contains(t, ContentType(FormatXLSX), "spreadsheetml")
}
