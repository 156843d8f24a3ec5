package archive

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// ItemSource reads from the remote id-indexed API.
type ItemSource interface {
	// MaxItemID returns the current upper id bound.
	MaxItemID(ctx context.Context) (int64, error)
	// Item returns the raw payload for id, or (nil, nil) when the remote has
	// no such record.
	Item(ctx context.Context, id int64) ([]byte, error)
}

// ItemStore is the relational keyed store items are persisted into.
type ItemStore interface {
	// ExistingIDs returns stored ids within [lower, upper).
	ExistingIDs(ctx context.Context, lower, upper int64) (IDSet, error)
	// Begin opens a write session owned by a single writer.
	Begin(ctx context.Context) (Session, error)
	// Migrate creates the schema if needed.
	Migrate(ctx context.Context) error
	Close() error
}

// Session batches item mutations. Writes become durable on Commit; Close
// discards anything not yet committed.
type Session interface {
	Insert(ctx context.Context, item Item) error
	Update(ctx context.Context, item Item) error
	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
