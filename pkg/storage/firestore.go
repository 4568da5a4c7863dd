package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/raterudder/metersync/pkg/config"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps each blob in its own document. Documents are limited to
// about 1MiB which holds several years of quarter-hour data as parquet.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates the Firestore client.
func NewFirestore(ctx context.Context, cfg config.Firestore) (*FirestoreStore, error) {
	// set this because that's how firestore client expects it
	if cfg.Emulator != "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Emulator)
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	return &FirestoreStore{client: client, collection: cfg.Collection}, nil
}

// Close closes the Firestore client connection.
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// doc maps a key to a document. Slashes aren't allowed in document IDs so
// the key is path escaped.
func (f *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(url.PathEscape(key))
}

// Get reads the "data" field of the key's document.
func (f *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := f.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to fetch blob doc %s: %w", key, err)
	}
	val, err := snap.DataAt("data")
	if err != nil {
		return nil, fmt.Errorf("blob document %s missing 'data' field: %w", key, err)
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("blob document %s 'data' field is %T, not bytes", key, val)
	}
	return b, nil
}

// Put replaces the key's document.
func (f *FirestoreStore) Put(ctx context.Context, key string, body []byte) error {
	_, err := f.doc(key).Set(ctx, map[string]interface{}{
		"data":      body,
		"updatedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save blob doc %s: %w", key, err)
	}
	return nil
}
