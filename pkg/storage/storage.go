package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/raterudder/metersync/pkg/config"
)

// ErrNotFound is returned by Get when the key doesn't exist. Any other error
// from Get is a read fault and must not be treated as an empty dataset.
var ErrNotFound = errors.New("blob not found")

// BlobStore persists opaque blobs by key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error

	// Lifecycle
	Close() error
}

// New opens the blob store selected by cfg.Provider. The config must already
// be validated.
func New(ctx context.Context, cfg config.Storage) (BlobStore, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "firestore":
		return NewFirestore(ctx, cfg.Firestore)
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres)
	case "badger":
		return NewBadger(cfg.Dir)
	case "file":
		return NewFile(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
