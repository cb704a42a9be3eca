package database

import (
	"context"
	"os"
	"path/filepath"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/msgpack"
	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

const (
	metaBucket = "meta"
	cursorKey  = "cursor"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(msgpack.Codec)

// StormOpen returns a new Storm database connection.
func StormOpen(database string) (Store, error) {
	if dir := filepath.Dir(database); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmerror.Store(config.BackendFile, "open", errors.Wrap(err, "could not create database directory"))
		}
	}

	db, err := storm.Open(database, StormCodec)
	if err != nil {
		return nil, fmerror.Store(config.BackendFile, "open", errors.Wrap(err, "could not get database connection"))
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Backend() string {
	return config.BackendFile
}

// Init initializes the item indexes.
func (c *strm) Init(_ context.Context) error {
	err := c.db.Init(&libfeed.Item{})
	return fmerror.Store(config.BackendFile, "init", errors.Wrap(err, "could not init item index"))
}

// LastKnownID returns the cursor kept in the meta bucket.
func (c *strm) LastKnownID(_ context.Context) (int64, error) {
	var id int64
	err := c.db.Get(metaBucket, cursorKey, &id)
	if errors.Is(err, storm.ErrNotFound) {
		return 0, fmerror.Store(config.BackendFile, "last known id", ErrEmpty)
	}
	if err != nil {
		return 0, fmerror.Store(config.BackendFile, "last known id", errors.Wrap(err, "could not read cursor"))
	}
	return id, nil
}

func (c *strm) StoreOne(ctx context.Context, item *libfeed.Item) error {
	return c.write(ctx, "store one", []*libfeed.Item{item})
}

func (c *strm) StoreBatch(ctx context.Context, items []*libfeed.Item) error {
	if len(items) == 0 {
		return nil
	}
	return c.write(ctx, "store batch", items)
}

// write saves the items and moves the cursor forward in one transaction.
func (c *strm) write(ctx context.Context, op string, items []*libfeed.Item) error {
	if err := ctx.Err(); err != nil {
		return fmerror.Store(config.BackendFile, op, err)
	}

	tx, err := c.db.Begin(true)
	if err != nil {
		return fmerror.Store(config.BackendFile, op, errors.Wrap(err, "could not begin transaction"))
	}
	defer tx.Rollback() // nolint:errcheck

	var highest int64
	for _, item := range items {
		if err = tx.Save(item); err != nil {
			return fmerror.Store(config.BackendFile, op, errors.Wrapf(err, "could not save item %d", item.ID))
		}
		if item.ID > highest {
			highest = item.ID
		}
	}

	var cursor int64
	err = tx.Get(metaBucket, cursorKey, &cursor)
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return fmerror.Store(config.BackendFile, op, errors.Wrap(err, "could not read cursor"))
	}
	if highest > cursor || errors.Is(err, storm.ErrNotFound) {
		if err = tx.Set(metaBucket, cursorKey, highest); err != nil {
			return fmerror.Store(config.BackendFile, op, errors.Wrap(err, "could not write cursor"))
		}
	}

	err = tx.Commit()
	return fmerror.Store(config.BackendFile, op, errors.Wrap(err, "could not commit"))
}

func (c *strm) Count(_ context.Context) (int, error) {
	n, err := c.db.Count(&libfeed.Item{})
	if err != nil {
		return 0, fmerror.Store(config.BackendFile, "count", errors.Wrap(err, "could not count items"))
	}
	return n, nil
}

func (c *strm) Close() error {
	return errors.Wrap(c.db.Close(), "could not close database")
}
