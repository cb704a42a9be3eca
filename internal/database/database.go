package database

import (
	"context"

	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

// ErrEmpty is returned by LastKnownID when the store holds no item.
var ErrEmpty = errors.New("store is empty")

// A Store persists feed items. It is used from a single goroutine.
type Store interface {
	// Backend returns the backend name (file, sqlite or postgres).
	Backend() string
	// Init creates the schema if needed. It is idempotent.
	Init(ctx context.Context) error
	// LastKnownID returns the highest item ID stored.
	// It returns an error wrapping ErrEmpty when nothing is stored yet.
	LastKnownID(ctx context.Context) (int64, error)
	// StoreOne persists the given item.
	StoreOne(ctx context.Context, item *libfeed.Item) error
	// StoreBatch persists the given items in one bulk write.
	// Items already stored are ignored. An empty batch does not issue any write.
	StoreBatch(ctx context.Context, items []*libfeed.Item) error
	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)
	// Close the store.
	Close() error
}

// Open returns the Store for the given backend and connection string.
// The schema is initialized before returning.
func Open(ctx context.Context, backend, uri string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch backend {
	case config.BackendFile:
		store, err = StormOpen(uri)
	case config.BackendSQLite:
		store, err = SQLiteOpen(ctx, uri)
	case config.BackendPostgres:
		store, err = PostgresOpen(ctx, uri)
	default:
		return nil, fmerror.Config("unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	if err = store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
