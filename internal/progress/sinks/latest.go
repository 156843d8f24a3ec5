package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// LatestSink retains the most recent snapshot so the status server can report
// it on demand.
type LatestSink struct {
	mu   sync.RWMutex
	snap progress.Snapshot
	ok   bool
}

// NewLatestSink returns an empty LatestSink.
func NewLatestSink() *LatestSink {
	return &LatestSink{}
}

// Consume records the last snapshot of the batch.
func (s *LatestSink) Consume(_ context.Context, batch []progress.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	s.snap = batch[len(batch)-1]
	s.ok = true
	s.mu.Unlock()
	return nil
}

// Latest returns the most recent snapshot and whether one has been seen.
func (s *LatestSink) Latest() (progress.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.ok
}

// Close implements the Sink interface; the last snapshot stays readable.
func (s *LatestSink) Close(context.Context) error {
	return nil
}
