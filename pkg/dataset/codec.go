package dataset

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/raterudder/metersync/pkg/types"
)

// Codec serializes a whole dataset to and from a blob.
type Codec interface {
	Marshal(d types.Dataset) ([]byte, error)
	Unmarshal(b []byte) (types.Dataset, error)
	// ContentType is used when the blob store records one.
	ContentType() string
}

// ForKey picks the codec matching the object key's extension. Parquet is the
// default for keys without a recognized extension.
func ForKey(key string, loc *time.Location) (Codec, error) {
	if loc == nil {
		loc = time.Local
	}
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".parquet", ".pq", "":
		return Parquet{Location: loc}, nil
	case ".csv":
		return CSV{Location: loc}, nil
	default:
		return nil, fmt.Errorf("unsupported dataset extension: %s", ext)
	}
}

// naive drops the location from t, returning the same wall clock in UTC. The
// vendor reports site-local wall clock and the persisted file keeps it that
// way.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// localize interprets the wall clock of t in loc.
func localize(t time.Time, loc *time.Location) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
