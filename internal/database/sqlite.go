package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"

	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embedded SQLite build
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS items (
	id      INTEGER PRIMARY KEY NOT NULL,
	deleted INTEGER DEFAULT 0,
	type    TEXT,
	who     TEXT,
	time    INTEGER,
	dead    INTEGER DEFAULT 0,
	kids    TEXT,
	title   TEXT,
	content TEXT,
	score   INTEGER,
	url     TEXT,
	parent  INTEGER
)`

type sqlite struct {
	db *sql.DB
}

// SQLiteOpen opens the embedded SQLite database at the given path.
// The special path `:memory:` opens an in-memory database.
func SQLiteOpen(ctx context.Context, path string) (Store, error) {
	memory := path == ":memory:"
	dsn := path
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmerror.Store(config.BackendSQLite, "open", errors.Wrap(err, "could not create database directory"))
			}
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmerror.Store(config.BackendSQLite, "open", errors.Wrap(err, "could not open database"))
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmerror.Store(config.BackendSQLite, "open", errors.Wrap(err, "could not ping database"))
	}

	if memory {
		// Every connection gets its own in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pragmas := []string{"PRAGMA busy_timeout=5000"}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err = db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmerror.Store(config.BackendSQLite, "open", errors.Wrapf(err, "could not apply %s", pragma))
		}
	}

	return &sqlite{
		db: db,
	}, nil
}

func (s *sqlite) Backend() string {
	return config.BackendSQLite
}

func (s *sqlite) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return fmerror.Store(config.BackendSQLite, "init", errors.Wrap(err, "could not create items table"))
}

func (s *sqlite) LastKnownID(ctx context.Context) (int64, error) {
	return lastKnownID(s.db.QueryRowContext(ctx, "SELECT max(id) FROM items"), config.BackendSQLite)
}

func (s *sqlite) StoreOne(ctx context.Context, item *libfeed.Item) error {
	return s.exec(ctx, "store one", []*libfeed.Item{item})
}

func (s *sqlite) StoreBatch(ctx context.Context, items []*libfeed.Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.exec(ctx, "store batch", items)
}

func (s *sqlite) exec(ctx context.Context, op string, items []*libfeed.Item) error {
	_, err := s.db.ExecContext(ctx, InsertStatement("INSERT OR IGNORE INTO", items, ""))
	return fmerror.Store(config.BackendSQLite, op, errors.Wrap(err, "could not insert items"))
}

func (s *sqlite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n); err != nil {
		return 0, fmerror.Store(config.BackendSQLite, "count", errors.Wrap(err, "could not count items"))
	}
	return n, nil
}

func (s *sqlite) Close() error {
	return errors.Wrap(s.db.Close(), "could not close database")
}

// A row is satisfied by both *sql.Row and pgx.Row.
type row interface {
	Scan(dest ...any) error
}

func lastKnownID(r row, backend string) (int64, error) {
	var id sql.NullInt64
	if err := r.Scan(&id); err != nil {
		return 0, fmerror.Store(backend, "last known id", errors.Wrap(err, "could not read max id"))
	}
	if !id.Valid {
		return 0, fmerror.Store(backend, "last known id", ErrEmpty)
	}
	return id.Int64, nil
}
