package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/metersync/pkg/config"
	"github.com/raterudder/metersync/pkg/dataset"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/types"
)

// Gateway loads and saves the dataset at a single key, encoded with the codec
// matching the key's extension.
type Gateway struct {
	store BlobStore
	key   string
	codec dataset.Codec
}

// NewGateway returns a Gateway for key. Timestamps are re-localized to loc when
// the dataset is loaded.
func NewGateway(store BlobStore, key string, loc *time.Location) (*Gateway, error) {
	codec, err := dataset.ForKey(key, loc)
	if err != nil {
		return nil, err
	}
	return &Gateway{store: store, key: key, codec: codec}, nil
}

// Configured returns a Gateway over the configured blob store. The store is
// opened once lflag.Configure runs and a failure to open it panics.
func Configured(cfg *config.Config) *Gateway {
	g := &Gateway{}
	lflag.Do(func() {
		store, err := New(context.Background(), cfg.Storage)
		if err != nil {
			panic(fmt.Sprintf("storage init failed: %v", err))
		}
		gw, err := NewGateway(store, cfg.Storage.ObjectKey, cfg.Site.Location())
		if err != nil {
			store.Close()
			panic(fmt.Sprintf("storage init failed: %v", err))
		}
		*g = *gw
	})
	return g
}

// Close closes the underlying blob store.
func (g *Gateway) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}

// Key returns the key the dataset is stored at.
func (g *Gateway) Key() string {
	return g.key
}

// Load reads and decodes the dataset. A missing dataset returns an error
// matching ErrNotFound. Any other error, including a corrupt blob, is a read
// fault.
func (g *Gateway) Load(ctx context.Context) (types.Dataset, error) {
	b, err := g.store.Get(ctx, g.key)
	if err != nil {
		return types.Dataset{}, err
	}
	d, err := g.codec.Unmarshal(b)
	if err != nil {
		return types.Dataset{}, fmt.Errorf("failed to decode %s: %w", g.key, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "loaded dataset",
		slog.String("key", g.key),
		slog.Int("rows", d.Len()),
		slog.Int("bytes", len(b)),
	)
	return d, nil
}

// Save encodes and replaces the dataset.
func (g *Gateway) Save(ctx context.Context, d types.Dataset) error {
	b, err := g.codec.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", g.key, err)
	}
	if err := g.store.Put(ctx, g.key, b); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "saved dataset",
		slog.String("key", g.key),
		slog.Int("rows", d.Len()),
		slog.Int("bytes", len(b)),
	)
	return nil
}
