package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raterudder/metersync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type faultyStore struct {
	getErr error
	putErr error
	body   []byte
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	return f.body, f.getErr
}

func (f *faultyStore) Put(ctx context.Context, key string, body []byte) error {
	return f.putErr
}

func (f *faultyStore) Close() error { return nil }

func TestGateway(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	base := time.Date(2024, 11, 8, 0, 0, 0, 0, loc)
	d := types.Dataset{
		Columns: []string{types.MeterProduction},
		Rows: []types.Row{
			{Time: base, Values: map[string]float64{types.MeterProduction: 100}},
			{Time: base.Add(types.QuarterHour), Values: map[string]float64{types.MeterProduction: 200}},
		},
	}

	for _, key := range []string{"meter_data.parquet", "meter_data.csv"} {
		t.Run(key, func(t *testing.T) {
			s, err := NewFile(t.TempDir())
			require.NoError(t, err)
			g, err := NewGateway(s, key, loc)
			require.NoError(t, err)
			assert.Equal(t, key, g.Key())

			_, err = g.Load(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, g.Save(ctx, d))
			got, err := g.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, 2, got.Len())
			assert.True(t, got.Rows[1].Time.Equal(base.Add(types.QuarterHour)))
			v, ok := got.Rows[1].Value(types.MeterProduction)
			assert.True(t, ok)
			assert.Equal(t, 200.0, v)
		})
	}

	t.Run("UnsupportedKey", func(t *testing.T) {
		_, err := NewGateway(&faultyStore{}, "meter_data.json", loc)
		assert.Error(t, err)
	})

	t.Run("ReadFault", func(t *testing.T) {
		boom := errors.New("connection reset")
		g, err := NewGateway(&faultyStore{getErr: boom}, "meter_data.parquet", loc)
		require.NoError(t, err)
		_, err = g.Load(ctx)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("CorruptBlob", func(t *testing.T) {
		g, err := NewGateway(&faultyStore{body: []byte("not parquet")}, "meter_data.parquet", loc)
		require.NoError(t, err)
		_, err = g.Load(ctx)
		assert.ErrorContains(t, err, "failed to decode")
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("WriteFault", func(t *testing.T) {
		boom := errors.New("access denied")
		g, err := NewGateway(&faultyStore{putErr: boom}, "meter_data.parquet", loc)
		require.NoError(t, err)
		assert.ErrorIs(t, g.Save(ctx, d), boom)
	})
}
