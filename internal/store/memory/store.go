// Package memory provides a map-backed item store with explicit commit
// semantics. It backs dry runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/JakeFAU/hn-archiver/internal/archive"
)

var errSessionClosed = errors.New("session is closed")

// Store keeps committed items in memory.
type Store struct {
	mu     sync.RWMutex
	items  map[int64]archive.Item
	commit int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{items: make(map[int64]archive.Item)}
}

// Seed stores items as if a previous run had committed them.
func (s *Store) Seed(items ...archive.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.ID] = item
	}
}

// ExistingIDs returns committed ids within [lower, upper).
func (s *Store) ExistingIDs(ctx context.Context, lower, upper int64) (archive.IDSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("existing ids: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(archive.IDSet)
	for id := range s.items {
		if id >= lower && id < upper {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// Begin opens a session whose writes are invisible until Commit.
func (s *Store) Begin(context.Context) (archive.Session, error) {
	return &session{store: s, pending: make(map[int64]archive.Item)}, nil
}

// Migrate is a no-op; the map needs no schema.
func (s *Store) Migrate(context.Context) error {
	return nil
}

// Close implements archive.ItemStore.
func (s *Store) Close() error {
	return nil
}

// Get returns a committed item.
func (s *Store) Get(id int64) (archive.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// IDs returns committed ids in ascending order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.items))
}

// Len returns the number of committed items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Commits returns how many non-empty commits have been applied.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commit
}

type session struct {
	store   *Store
	pending map[int64]archive.Item
	closed  bool
}

func (t *session) Insert(_ context.Context, item archive.Item) error {
	if t.closed {
		return fmt.Errorf("insert item %d: %w: %w", item.ID, errSessionClosed, archive.ErrStorageFault)
	}
	if _, ok := t.pending[item.ID]; ok {
		return fmt.Errorf("insert item %d: duplicate key: %w", item.ID, archive.ErrRecordRejected)
	}
	if _, ok := t.store.Get(item.ID); ok {
		return fmt.Errorf("insert item %d: duplicate key: %w", item.ID, archive.ErrRecordRejected)
	}
	t.pending[item.ID] = item
	return nil
}

func (t *session) Update(_ context.Context, item archive.Item) error {
	if t.closed {
		return fmt.Errorf("update item %d: %w: %w", item.ID, errSessionClosed, archive.ErrStorageFault)
	}
	_, pending := t.pending[item.ID]
	if _, ok := t.store.Get(item.ID); !ok && !pending {
		return fmt.Errorf("update item %d: no such row: %w", item.ID, archive.ErrRecordRejected)
	}
	t.pending[item.ID] = item
	return nil
}

func (t *session) Commit(context.Context) error {
	if t.closed {
		return fmt.Errorf("commit: %w: %w", errSessionClosed, archive.ErrStorageFault)
	}
	if len(t.pending) == 0 {
		return nil
	}
	t.store.mu.Lock()
	maps.Copy(t.store.items, t.pending)
	t.store.commit++
	t.store.mu.Unlock()
	clear(t.pending)
	return nil
}

func (t *session) Close(context.Context) error {
	t.closed = true
	clear(t.pending)
	return nil
}
