// Package postgres persists items into PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hn-archiver/internal/archive"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id          BIGINT PRIMARY KEY,
	deleted     BOOLEAN,
	type        TEXT,
	time        BIGINT,
	by          TEXT,
	text        TEXT,
	dead        BOOLEAN,
	parent_id   BIGINT,
	poll        BIGINT,
	url         TEXT,
	score       BIGINT,
	title       TEXT,
	descendants BIGINT
);
CREATE INDEX IF NOT EXISTS items_parent_id ON items (parent_id);
`

const insertItem = `
INSERT INTO items (
	id, deleted, type, time, by, text, dead, parent_id, poll, url, score, title, descendants
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`

const updateItem = `
UPDATE items SET
	deleted = $2, type = $3, time = $4, by = $5, text = $6, dead = $7,
	parent_id = $8, poll = $9, url = $10, score = $11, title = $12, descendants = $13
WHERE id = $1`

const (
	savepoint         = "SAVEPOINT item_write"
	rollbackSavepoint = "ROLLBACK TO SAVEPOINT item_write"
	releaseSavepoint  = "RELEASE SAVEPOINT item_write"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store is an archive.ItemStore backed by PostgreSQL.
type Store struct {
	pool pool
}

// Open creates a pgx pool for cfg.DSN.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", errors.Join(err, archive.ErrStorageFault))
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Migrate creates the items table and its parent index.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate postgres: %w", classify(err))
	}
	return nil
}

// ExistingIDs returns stored ids within [lower, upper).
func (s *Store) ExistingIDs(ctx context.Context, lower, upper int64) (archive.IDSet, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM items WHERE id >= $1 AND id < $2`, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("select existing ids: %w", classify(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan existing ids: %w", classify(err))
	}
	out := make(archive.IDSet, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Begin opens a session; each batch runs in its own transaction.
func (s *Store) Begin(context.Context) (archive.Session, error) {
	return &session{pool: s.pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

type session struct {
	pool pool
	tx   pgx.Tx
}

func (t *session) Insert(ctx context.Context, item archive.Item) error {
	return t.write(ctx, "insert", insertItem, item)
}

func (t *session) Update(ctx context.Context, item archive.Item) error {
	return t.write(ctx, "update", updateItem, item)
}

// write runs one statement inside a savepoint. A rejected record rolls back
// to the savepoint so the rest of the batch survives.
func (t *session) write(ctx context.Context, op, query string, item archive.Item) error {
	if t.tx == nil {
		tx, err := t.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin batch: %w", classify(err))
		}
		t.tx = tx
	}
	if _, err := t.tx.Exec(ctx, savepoint); err != nil {
		return fmt.Errorf("%s item %d: %w", op, item.ID, classify(err))
	}
	tag, err := t.tx.Exec(ctx, query, args(item)...)
	if err == nil && op == "update" && tag.RowsAffected() == 0 {
		err = fmt.Errorf("no such row: %w", archive.ErrRecordRejected)
	}
	if err != nil {
		err = classify(err)
		if !errors.Is(err, archive.ErrRecordRejected) {
			return fmt.Errorf("%s item %d: %w", op, item.ID, err)
		}
		if _, rbErr := t.tx.Exec(ctx, rollbackSavepoint); rbErr != nil {
			return fmt.Errorf("%s item %d: %w", op, item.ID, errors.Join(rbErr, archive.ErrStorageFault))
		}
		return fmt.Errorf("%s item %d: %w", op, item.ID, err)
	}
	if _, err := t.tx.Exec(ctx, releaseSavepoint); err != nil {
		return fmt.Errorf("%s item %d: %w", op, item.ID, classify(err))
	}
	return nil
}

func (t *session) Commit(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", errors.Join(err, archive.ErrStorageFault))
	}
	return nil
}

func (t *session) Close(ctx context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

func args(item archive.Item) []any {
	return []any{
		item.ID,
		item.Deleted,
		item.Type,
		item.UnixTime(),
		item.By,
		item.Text,
		item.Dead,
		item.ParentID,
		item.Poll,
		item.URL,
		item.Score,
		item.Title,
		item.Descendants,
	}
}

// classify maps driver errors onto the archive taxonomy. Integrity (23) and
// data (22) errors reject one record; anything else is a storage fault.
func classify(err error) error {
	if errors.Is(err, archive.ErrRecordRejected) || errors.Is(err, archive.ErrStorageFault) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return errors.Join(err, archive.ErrRecordRejected)
		}
	}
	return errors.Join(err, archive.ErrStorageFault)
}
