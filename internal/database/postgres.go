package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id      BIGINT PRIMARY KEY,
		deleted SMALLINT DEFAULT 0,
		type    VARCHAR(16),
		who     VARCHAR(255),
		time    BIGINT,
		dead    SMALLINT DEFAULT 0,
		kids    TEXT,
		title   TEXT,
		content TEXT,
		score   BIGINT,
		url     TEXT,
		parent  BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS items_parent_idx ON items (parent)`,
}

type postgres struct {
	pool *pgxpool.Pool
}

// PostgresOpen connects to the PostgreSQL server described by the given DSN.
func PostgresOpen(ctx context.Context, dsn string) (Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmerror.Store(config.BackendPostgres, "open", errors.Wrap(err, "could not parse dsn"))
	}
	cfg.MaxConns = 2
	// Statements are fully rendered, no argument to bind.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmerror.Store(config.BackendPostgres, "open", errors.Wrap(err, "could not connect"))
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmerror.Store(config.BackendPostgres, "open", errors.Wrap(err, "could not ping"))
	}

	return &postgres{
		pool: pool,
	}, nil
}

func (p *postgres) Backend() string {
	return config.BackendPostgres
}

func (p *postgres) Init(ctx context.Context) error {
	b := &pgx.Batch{}
	for _, stmt := range postgresSchema {
		b.Queue(stmt)
	}

	err := p.pool.SendBatch(ctx, b).Close()
	return fmerror.Store(config.BackendPostgres, "init", errors.Wrap(err, "could not create items table"))
}

func (p *postgres) LastKnownID(ctx context.Context) (int64, error) {
	return lastKnownID(p.pool.QueryRow(ctx, "SELECT max(id) FROM items"), config.BackendPostgres)
}

func (p *postgres) StoreOne(ctx context.Context, item *libfeed.Item) error {
	return p.exec(ctx, "store one", []*libfeed.Item{item})
}

func (p *postgres) StoreBatch(ctx context.Context, items []*libfeed.Item) error {
	if len(items) == 0 {
		return nil
	}
	return p.exec(ctx, "store batch", items)
}

func (p *postgres) exec(ctx context.Context, op string, items []*libfeed.Item) error {
	_, err := p.pool.Exec(ctx, InsertStatement("INSERT INTO", items, "ON CONFLICT (id) DO NOTHING"))
	return fmerror.Store(config.BackendPostgres, op, errors.Wrap(err, "could not insert items"))
}

func (p *postgres) Count(ctx context.Context) (int, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM items").Scan(&n); err != nil {
		return 0, fmerror.Store(config.BackendPostgres, "count", errors.Wrap(err, "could not count items"))
	}
	return int(n), nil
}

func (p *postgres) Close() error {
	p.pool.Close()
	return nil
}
