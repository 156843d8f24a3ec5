// Package writer consumes fetch outcomes, persists decoded items in batches,
// and reports cumulative progress. It is the only owner of a run's counters.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/clock/system"
	"github.com/JakeFAU/hn-archiver/internal/metrics"
	"github.com/JakeFAU/hn-archiver/internal/planner"
	"github.com/JakeFAU/hn-archiver/internal/progress"
)

// DefaultBatchSize is the number of writes grouped into one commit.
const DefaultBatchSize = 1024

// State is a step of the writer lifecycle.
type State string

// Writer lifecycle states.
const (
	StateInit       State = "init"
	StateStreaming  State = "streaming"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateFaulted    State = "faulted"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
)

// Config tunes batching and reporting.
type Config struct {
	// RunID is stamped onto every progress snapshot.
	RunID uuid.UUID
	// BatchSize is the commit threshold; values < 1 use DefaultBatchSize.
	BatchSize int
	// LogErrors logs the cause of every failed item.
	LogErrors bool
	// ArchivePrefix is prepended to raw payload object paths.
	ArchivePrefix string
}

// Writer persists the outcomes of one run.
type Writer struct {
	store   archive.ItemStore
	cfg     Config
	emitter progress.Emitter
	blobs   archive.BlobStore
	clock   archive.Clock
	logger  *zap.Logger
	state   atomic.Value
}

// New builds a Writer. emitter, blobs, clock, and logger are optional.
func New(
	store archive.ItemStore,
	cfg Config,
	emitter progress.Emitter,
	blobs archive.BlobStore,
	clock archive.Clock,
	logger *zap.Logger,
) *Writer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:   store,
		cfg:     cfg,
		emitter: emitter,
		blobs:   blobs,
		clock:   clock,
		logger:  logger,
	}
	w.state.Store(StateInit)
	return w
}

// State returns the current lifecycle state.
func (w *Writer) State() State {
	return w.state.Load().(State)
}

// batch tracks the writes of the open transaction.
type batch struct {
	inserted int64
	updated  int64
	// lost is set once a commit fails; the session then holds no transaction.
	lost bool
}

// Run drains outcomes until the sequence ends or storage faults, then commits
// whatever is pending. Cancellation is reported through the counters only:
// the returned error is nil unless storage failed. Stopping early ends the
// iteration, which cancels the producing pipeline.
func (w *Writer) Run(
	ctx context.Context,
	plan planner.Plan,
	outcomes iter.Seq[archive.Outcome],
) (archive.Counters, error) {
	counters := archive.Counters{Skipped: int64(plan.SkippedExisting)}
	var open batch
	total := int64(len(plan.IDs))

	// Writes and commits must outlive cancellation so FINALIZING can flush.
	storeCtx := context.WithoutCancel(ctx)

	sess, err := w.store.Begin(storeCtx)
	if err != nil {
		w.transition(StateFaulted)
		w.transition(StateFinalizing)
		w.transition(StateDone)
		return counters, fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(storeCtx); cerr != nil {
			w.logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	w.transition(StateStreaming)
	var runErr error
	for outcome := range outcomes {
		runErr = w.handle(storeCtx, sess, plan, outcome, &counters, &open)
		counters.Processed++
		w.emit(counters, total)
		if runErr != nil {
			break
		}
		if counters.Uncommitted >= int64(w.cfg.BatchSize) {
			if runErr = w.commit(storeCtx, sess, &counters, &open); runErr != nil {
				break
			}
		}
	}

	switch {
	case runErr != nil:
		w.transition(StateFaulted)
	case ctx.Err() != nil:
		w.transition(StateCancelling)
	default:
		w.transition(StateCompleted)
	}

	w.transition(StateFinalizing)
	if !open.lost {
		if err := w.commit(storeCtx, sess, &counters, &open); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if open.lost {
		w.emit(counters, total)
	}
	w.transition(StateDone)
	w.logger.Info("writer finished",
		zap.Int64("succeeded", counters.Succeeded),
		zap.Int64("failed", counters.Failed),
		zap.Int64("absent", counters.Absent),
		zap.Int64("processed", counters.Processed),
		zap.Int64("total", total),
	)
	return counters, runErr
}

// handle applies one outcome. Only run-fatal storage errors are returned.
func (w *Writer) handle(
	ctx context.Context,
	sess archive.Session,
	plan planner.Plan,
	outcome archive.Outcome,
	counters *archive.Counters,
	open *batch,
) error {
	switch outcome.Kind {
	case archive.OutcomeAbsent:
		counters.Absent++
		return nil
	case archive.OutcomeFetched:
	default:
		counters.Failed++
		w.logFailure(outcome.ID, outcome.Err)
		return nil
	}

	item, err := archive.DecodeItem(outcome.ID, outcome.Raw)
	if err != nil {
		counters.Failed++
		w.logFailure(outcome.ID, err)
		return nil
	}
	w.archiveRaw(ctx, outcome)

	op := "insert"
	write := sess.Insert
	if plan.IsUpdate(item.ID) {
		op = "update"
		write = sess.Update
	}
	err = write(ctx, item)
	metrics.ObserveWrite(op, err == nil)
	switch {
	case err == nil:
		counters.Succeeded++
		counters.Uncommitted++
		if op == "update" {
			counters.Updated++
			open.updated++
		} else {
			counters.Inserted++
			open.inserted++
		}
		return nil
	case errors.Is(err, archive.ErrRecordRejected):
		counters.Failed++
		w.logFailure(item.ID, err)
		return nil
	default:
		counters.Failed++
		w.logger.Error("storage fault, aborting run", zap.Int64("id", item.ID), zap.Error(err))
		return fmt.Errorf("%s item %d: %w", op, item.ID, err)
	}
}

// commit makes the open batch durable. When the commit fails, the batch's
// writes are moved from the succeeded counters to Failed.
func (w *Writer) commit(ctx context.Context, sess archive.Session, counters *archive.Counters, open *batch) error {
	if counters.Uncommitted == 0 {
		return nil
	}
	n := counters.Uncommitted
	err := sess.Commit(ctx)
	metrics.ObserveCommit(err == nil)
	counters.Uncommitted = 0
	if err != nil {
		counters.Succeeded -= n
		counters.Inserted -= open.inserted
		counters.Updated -= open.updated
		counters.Failed += n
		*open = batch{lost: true}
		w.logger.Error("batch commit failed, writes lost", zap.Int64("items", n), zap.Error(err))
		return fmt.Errorf("commit batch of %d: %w", n, err)
	}
	w.logger.Debug("batch committed", zap.Int64("items", n))
	*open = batch{}
	return nil
}

func (w *Writer) archiveRaw(ctx context.Context, outcome archive.Outcome) {
	if w.blobs == nil {
		return
	}
	key := path.Join(w.cfg.ArchivePrefix, strconv.FormatInt(outcome.ID, 10)+".json")
	if _, err := w.blobs.PutObject(ctx, key, "application/json", bytes.NewReader(outcome.Raw)); err != nil {
		w.logger.Warn("archive raw item failed", zap.Int64("id", outcome.ID), zap.Error(err))
	}
}

func (w *Writer) emit(counters archive.Counters, total int64) {
	w.emitter.Emit(progress.Snapshot{
		RunID:     w.cfg.RunID,
		TS:        w.clock.Now().UTC(),
		Succeeded: counters.Succeeded,
		Failed:    counters.Failed,
		Processed: counters.Processed,
		Total:     total,
	})
}

func (w *Writer) logFailure(id int64, err error) {
	if !w.cfg.LogErrors {
		return
	}
	w.logger.Warn("item failed", zap.Int64("id", id), zap.Error(err))
}

func (w *Writer) transition(next State) {
	prev := w.State()
	w.state.Store(next)
	w.logger.Debug("writer state", zap.String("from", string(prev)), zap.String("to", string(next)))
}
