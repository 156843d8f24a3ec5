// Package download runs one archiving pass: plan the id range, fetch
// concurrently, persist in batches, and report a summary.
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/clock/system"
	"github.com/JakeFAU/hn-archiver/internal/id/uuid"
	"github.com/JakeFAU/hn-archiver/internal/logging"
	"github.com/JakeFAU/hn-archiver/internal/pipeline"
	"github.com/JakeFAU/hn-archiver/internal/planner"
	"github.com/JakeFAU/hn-archiver/internal/progress"
	"github.com/JakeFAU/hn-archiver/internal/writer"
)

const publishTimeout = 10 * time.Second

// Config describes one run.
type Config struct {
	Concurrency   int
	MaxItems      int
	MinItemID     int64
	Direction     archive.Direction
	Policy        archive.ExistingPolicy
	CommitEvery   int
	LogErrors     bool
	ArchivePrefix string
	// Topic receives the run summary when set and a publisher is wired.
	Topic string
}

// Deps are the collaborators a Runner drives. Source and Store are required.
type Deps struct {
	Source    archive.ItemSource
	Store     archive.ItemStore
	Blobs     archive.BlobStore
	Publisher archive.Publisher
	Emitter   progress.Emitter
	IDs       archive.IDGenerator
	Clock     archive.Clock
	Logger    *zap.Logger
}

// Runner wires the planner, pipeline, and writer for a single run.
type Runner struct {
	cfg  Config
	deps Deps
}

// New validates deps and fills defaults.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("item source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("item store is required")
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = archive.PolicySkip
	}
	if cfg.Direction == "" {
		cfg.Direction = archive.Descending
	}
	return &Runner{cfg: cfg, deps: deps}, nil
}

// Run executes one pass. Cancelling ctx stops fetching; items already fetched
// are still committed and the summary is marked cancelled with a nil error.
func (r *Runner) Run(ctx context.Context) (archive.Summary, error) {
	runID, err := r.deps.IDs.NewRawID()
	if err != nil {
		return archive.Summary{}, fmt.Errorf("new run id: %w", err)
	}
	logger := logging.ForRun(r.deps.Logger, runID)
	summary := archive.Summary{RunID: runID, StartedAt: r.deps.Clock.Now()}

	maxID, err := r.deps.Source.MaxItemID(ctx)
	if err != nil {
		return r.fail(summary, fmt.Errorf("fetch max item id: %w", err))
	}
	plan, err := planner.Build(ctx, r.deps.Store, planner.Request{
		Lower:     r.cfg.MinItemID,
		Upper:     maxID + 1,
		Direction: r.cfg.Direction,
		MaxItems:  r.cfg.MaxItems,
		Policy:    r.cfg.Policy,
	})
	if err != nil {
		return r.fail(summary, fmt.Errorf("plan run: %w", err))
	}
	summary.Planned = len(plan.IDs)
	if plan.SkippedExisting > 0 {
		logger.Info("skipping items that already exist", zap.Int("count", plan.SkippedExisting))
	}
	logger.Info("run planned",
		zap.Int64("max_item_id", maxID),
		zap.Int("planned", len(plan.IDs)),
		zap.Int("updates", plan.Updates()),
		zap.String("direction", string(r.cfg.Direction)),
		zap.String("policy", string(plan.Policy)),
	)

	fetcher := pipeline.New(r.deps.Source, pipeline.Config{Concurrency: r.cfg.Concurrency}, logger.Named("pipeline"))
	w := writer.New(r.deps.Store, writer.Config{
		RunID:         runID,
		BatchSize:     r.cfg.CommitEvery,
		LogErrors:     r.cfg.LogErrors,
		ArchivePrefix: r.cfg.ArchivePrefix,
	}, r.deps.Emitter, r.deps.Blobs, r.deps.Clock, logger.Named("writer"))

	counters, runErr := w.Run(ctx, plan, fetcher.Fetch(ctx, plan.IDs))
	summary.Counters = counters
	summary.FinishedAt = r.deps.Clock.Now()
	summary.Cancelled = ctx.Err() != nil
	if runErr != nil {
		summary.Err = runErr.Error()
	}

	logger.Info("run finished",
		zap.Int64("succeeded", counters.Succeeded),
		zap.Int64("failed", counters.Failed),
		zap.Int64("absent", counters.Absent),
		zap.Int64("inserted", counters.Inserted),
		zap.Int64("updated", counters.Updated),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	r.publish(ctx, logger, summary)
	return summary, runErr
}

func (r *Runner) fail(summary archive.Summary, err error) (archive.Summary, error) {
	summary.FinishedAt = r.deps.Clock.Now()
	summary.Err = err.Error()
	return summary, err
}

// publish sends the summary even when the run was cancelled. Failures are
// logged and never change the run outcome.
func (r *Runner) publish(ctx context.Context, logger *zap.Logger, summary archive.Summary) {
	if r.deps.Publisher == nil || r.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	id, err := r.deps.Publisher.Publish(pubCtx, r.cfg.Topic, summary)
	if err != nil {
		logger.Warn("publish run summary failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run summary published", zap.String("topic", r.cfg.Topic), zap.String("message_id", id))
}
