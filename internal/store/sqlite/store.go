// Package sqlite persists items into a local SQLite database through sqlx.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JakeFAU/hn-archiver/internal/archive"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id          INTEGER PRIMARY KEY,
	deleted     INTEGER,
	type        TEXT,
	time        INTEGER,
	by          TEXT,
	text        TEXT,
	dead        INTEGER,
	parent_id   INTEGER,
	poll        INTEGER,
	url         TEXT,
	score       INTEGER,
	title       TEXT,
	descendants INTEGER
);
CREATE INDEX IF NOT EXISTS items_parent_id ON items (parent_id);
`

const insertItem = `INSERT INTO items (
	id, deleted, type, time, by, text, dead, parent_id, poll, url, score, title, descendants
) VALUES (
	:id, :deleted, :type, :time, :by, :text, :dead, :parent_id, :poll, :url, :score, :title, :descendants
)`

const updateItem = `UPDATE items SET
	deleted = :deleted, type = :type, time = :time, by = :by, text = :text, dead = :dead,
	parent_id = :parent_id, poll = :poll, url = :url, score = :score, title = :title,
	descendants = :descendants
WHERE id = :id`

// row flattens Item for named statements; time is stored as unix seconds.
type row struct {
	archive.Item
	Time *int64 `db:"time"`
}

func toRow(item archive.Item) row {
	return row{Item: item, Time: item.UnixTime()}
}

// Store is an archive.ItemStore backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database file at path and enables WAL journaling.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the items table and its parent index.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", classify(err))
	}
	return nil
}

// ExistingIDs returns stored ids within [lower, upper).
func (s *Store) ExistingIDs(ctx context.Context, lower, upper int64) (archive.IDSet, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM items WHERE id >= ? AND id < ?`, lower, upper); err != nil {
		return nil, fmt.Errorf("select existing ids: %w", classify(err))
	}
	out := make(archive.IDSet, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Get loads a stored item.
func (s *Store) Get(ctx context.Context, id int64) (archive.Item, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT
		id, deleted, type, time, by, text, dead, parent_id, poll, url, score, title, descendants
	FROM items WHERE id = ?`, id)
	if err != nil {
		return archive.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	item := r.Item
	if r.Time != nil {
		ts := time.Unix(*r.Time, 0).UTC()
		item.Time = &ts
	}
	return item, nil
}

// Begin opens a session; each batch runs in its own transaction.
func (s *Store) Begin(context.Context) (archive.Session, error) {
	return &session{db: s.db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type session struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

func (t *session) ensureTx(ctx context.Context) error {
	if t.tx != nil {
		return nil
	}
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", classify(err))
	}
	t.tx = tx
	return nil
}

// Insert relies on SQLite aborting only the failing statement, so a
// constraint violation leaves the batch transaction usable.
func (t *session) Insert(ctx context.Context, item archive.Item) error {
	if err := t.ensureTx(ctx); err != nil {
		return err
	}
	if _, err := t.tx.NamedExecContext(ctx, insertItem, toRow(item)); err != nil {
		return fmt.Errorf("insert item %d: %w", item.ID, classify(err))
	}
	return nil
}

func (t *session) Update(ctx context.Context, item archive.Item) error {
	if err := t.ensureTx(ctx); err != nil {
		return err
	}
	res, err := t.tx.NamedExecContext(ctx, updateItem, toRow(item))
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, classify(err))
	}
	if n == 0 {
		return fmt.Errorf("update item %d: no such row: %w", item.ID, archive.ErrRecordRejected)
	}
	return nil
}

func (t *session) Commit(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", classify(err))
	}
	return nil
}

func (t *session) Close(context.Context) error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

// classify maps driver errors onto the archive taxonomy: constraint and type
// violations reject one record, anything else is a storage fault.
func classify(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return errors.Join(err, archive.ErrRecordRejected)
		}
	}
	return errors.Join(err, archive.ErrStorageFault)
}
