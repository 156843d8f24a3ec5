package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultFlushInterval = 500 * time.Millisecond
	defaultSinkTimeout   = 10 * time.Second
)

// Config controls how often the Hub forwards snapshots.
//   - FlushInterval: how long the newest snapshot may wait before sinks see it (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	FlushInterval time.Duration
	SinkTimeout   time.Duration
	BaseContext   context.Context
	Logger        *zap.Logger
}

// Hub coalesces snapshot streams and fans them out to registered sinks.
// Snapshots are cumulative, so between flushes only the newest one per run is
// kept: a batch holds at most one snapshot per run, in the order runs were
// first seen. A snapshot that completes its run is flushed without waiting
// for the interval. Emit never blocks and never queues more than one snapshot
// per run, however fast the writer reports.
type Hub struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu         sync.Mutex
	pending    map[uuid.UUID]Snapshot
	order      []uuid.UUID
	superseded int64
	finished   bool
	closed     bool

	wake      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts its flushing goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		pending: make(map[uuid.UUID]Snapshot),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit records snap as the newest state of its run. Invalid snapshots, and
// snapshots older than the one already pending for the run, are discarded.
func (h *Hub) Emit(snap Snapshot) {
	if h == nil {
		return
	}
	if err := snap.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	prev, seen := h.pending[snap.RunID]
	switch {
	case !seen:
		h.order = append(h.order, snap.RunID)
	case snap.Processed < prev.Processed:
		h.mu.Unlock()
		return
	default:
		h.superseded++
	}
	h.pending[snap.RunID] = snap
	if snap.Total > 0 && snap.Processed >= snap.Total {
		h.finished = true
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Close flushes the pending snapshots, closes the sinks, and blocks until the
// flushing goroutine exits or ctx ends. Snapshots emitted afterwards are
// ignored. It is safe to call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	timer := time.NewTimer(h.cfg.FlushInterval)
	timer.Stop()
	armed := false
	for {
		select {
		case <-h.wake:
			if h.runFinished() {
				timer.Stop()
				armed = false
				h.flush(h.take())
				continue
			}
			if !armed {
				timer.Reset(h.cfg.FlushInterval)
				armed = true
			}
		case <-timer.C:
			armed = false
			h.flush(h.take())
		case <-h.stopCh:
			timer.Stop()
			h.flush(h.take())
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) runFinished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// take empties the pending set and returns it as one batch.
func (h *Hub) take() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil
	}
	batch := make([]Snapshot, 0, len(h.order))
	for _, runID := range h.order {
		batch = append(batch, h.pending[runID])
	}
	if h.superseded > 0 {
		h.logger.Debug("progress snapshots coalesced", zap.Int64("superseded", h.superseded))
	}
	clear(h.pending)
	h.order = h.order[:0]
	h.superseded = 0
	h.finished = false
	return batch
}

func (h *Hub) flush(batch []Snapshot) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(h.closeCtx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
