package progress

import "context"

// Sink consumes batches of snapshots. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Snapshot) error
	Close(ctx context.Context) error
}

// Emitter publishes individual snapshots; Hub satisfies this interface so the
// writer can remain agnostic about how snapshots are buffered or rendered.
type Emitter interface {
	Emit(s Snapshot)
}

// NopEmitter discards snapshots.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Snapshot) {}
