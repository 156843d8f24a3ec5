// Package pipeline fans item fetches out across a bounded pool of workers and
// streams their outcomes back as a lazy, unordered sequence.
//
// Workers take ids from a cursor over the planned slice without blocking. A
// worker retires as soon as the cursor runs out and pushes exactly one
// worker-done marker on retirement. Results travel through an unbounded
// mailbox, so nothing is reserved per id up front. The consuming side counts
// markers down from the worker count, so the sequence ends exactly once, after
// every admitted id has produced its outcome, whatever order outcomes complete
// in.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/metrics"
	"github.com/JakeFAU/hn-archiver/internal/queue/memory"
)

// DefaultConcurrency is used when Config.Concurrency is not positive.
const DefaultConcurrency = 16

// Config controls Pipeline behavior.
type Config struct {
	// Concurrency is the maximum number of fetches in flight.
	Concurrency int
}

// Pipeline turns id sequences into outcome sequences.
type Pipeline struct {
	source archive.ItemSource
	cfg    Config
	logger *zap.Logger
}

// New constructs a Pipeline reading from source.
func New(source archive.ItemSource, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

type messageKind int

const (
	messageOutcome messageKind = iota
	messageWorkerDone
)

// message is what travels on the shared result channel: either one outcome or
// the typed marker a worker sends when it retires.
type message struct {
	kind    messageKind
	outcome archive.Outcome
}

// Fetch returns a sequence yielding one outcome per id, in completion order.
// Each iteration of the returned sequence starts its own run.
//
// When ctx is cancelled, no further ids are admitted and in-flight fetches are
// cancelled; fetches aborted that way produce no outcome. Outcomes already
// produced are still yielded, and the sequence ends once every worker has
// retired. If the consumer stops iterating early, the run is cancelled the
// same way and the remaining results are discarded.
func (p *Pipeline) Fetch(ctx context.Context, ids []int64) iter.Seq[archive.Outcome] {
	return func(yield func(archive.Outcome) bool) {
		if len(ids) == 0 {
			return
		}
		workers := min(p.cfg.Concurrency, len(ids))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		pending := memory.Load(ids)
		// Unbounded, so a slow consumer never stalls a worker.
		results := memory.NewMailbox[message]()

		p.logger.Debug("pipeline started", zap.Int("ids", len(ids)), zap.Int("workers", workers))
		for i := range workers {
			go p.work(runCtx, i, pending, results)
		}

		live := workers
		consuming := true
		for live > 0 {
			msg := results.Take()
			if msg.kind == messageWorkerDone {
				live--
				continue
			}
			if !consuming {
				continue
			}
			if !yield(msg.outcome) {
				consuming = false
				pending.Close()
				cancel()
			}
		}
		p.logger.Debug("pipeline drained",
			zap.Int("abandoned", pending.Len()),
			zap.Bool("cancelled", runCtx.Err() != nil),
		)
	}
}

func (p *Pipeline) work(ctx context.Context, index int, pending *memory.IDQueue, results *memory.Mailbox[message]) {
	metrics.IncActiveWorkers()
	defer func() {
		metrics.DecActiveWorkers()
		results.Put(message{kind: messageWorkerDone})
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		id, ok := pending.TryDequeue()
		if !ok {
			return
		}
		outcome, ok := p.fetchOne(ctx, index, id)
		if !ok {
			return
		}
		results.Put(message{kind: messageOutcome, outcome: outcome})
	}
}

// fetchOne performs one remote read. It reports false when the read was
// aborted by cancellation, in which case no outcome exists for id.
func (p *Pipeline) fetchOne(ctx context.Context, index int, id int64) (outcome archive.Outcome, ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fetch panicked",
				zap.Int("worker", index),
				zap.Int64("id", id),
				zap.Any("panic", r),
			)
			outcome, ok = archive.Failed(id, fmt.Errorf("fetch item %d: panic: %v", id, r)), true
		}
		if ok {
			metrics.ObserveFetch(outcome.Kind.String(), time.Since(start))
		}
	}()

	raw, err := p.source.Item(ctx, id)
	switch {
	case err != nil && ctx.Err() != nil:
		return archive.Outcome{}, false
	case errors.Is(err, archive.ErrAbsent):
		return archive.Absent(id), true
	case err != nil:
		return archive.Failed(id, fmt.Errorf("fetch item %d: %w", id, err)), true
	case raw == nil:
		return archive.Absent(id), true
	default:
		return archive.Fetched(id, raw), true
	}
}
