// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hn-archiver/internal/api"
	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/clock/system"
	"github.com/JakeFAU/hn-archiver/internal/config"
	"github.com/JakeFAU/hn-archiver/internal/download"
	"github.com/JakeFAU/hn-archiver/internal/hn"
	"github.com/JakeFAU/hn-archiver/internal/id/uuid"
	"github.com/JakeFAU/hn-archiver/internal/logging"
	"github.com/JakeFAU/hn-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/hn-archiver/internal/progress"
	"github.com/JakeFAU/hn-archiver/internal/progress/sinks"
	pubmemory "github.com/JakeFAU/hn-archiver/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/hn-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/hn-archiver/internal/storage"
	"github.com/JakeFAU/hn-archiver/internal/store"
)

const dryRunURL = "memory://"

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup; Close releases everything it opened.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	registerer prometheus.Registerer

	store          archive.ItemStore
	source         archive.ItemSource
	blobs          archive.BlobStore
	closeBlobs     func() error
	publisher      archive.Publisher
	closePublisher func() error
	hub            *progress.Hub
	latest         *sinks.LatestSink
	server         *api.Server
}

// Option customizes NewApp.
type Option func(*App)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegisterer sets the Prometheus registry progress gauges are registered
// against. The default registry is used otherwise.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the migrated item store.
func (a *App) Store() archive.ItemStore {
	return a.store
}

// Latest returns the most recent progress snapshot seen by the hub.
func (a *App) Latest() (progress.Snapshot, bool) {
	return a.latest.Latest()
}

// NewApp creates and initializes the services described by cfg. It fails fast
// if any of them cannot be initialized, releasing whatever was already opened.
func NewApp(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:            cfg,
		registerer:     prometheus.DefaultRegisterer,
		closeBlobs:     func() error { return nil },
		closePublisher: func() error { return nil },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		a.logger = logger
		zap.ReplaceGlobals(logger)
	}
	if err := a.init(ctx); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	a.logger.Info("application services initialized")
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	l := a.logger
	cfg := a.cfg

	// 1. Item store.
	dbURL := cfg.DB.URL
	if cfg.Download.DryRun {
		l.Info("dry run: items are kept in memory and discarded on exit")
		dbURL = dryRunURL
	}
	itemStore, err := store.Open(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	a.store = itemStore
	if err := itemStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// 2. Remote item source.
	client, err := hn.NewClient(hn.Options{
		BaseURL:        cfg.HN.BaseURL,
		Timeout:        cfg.HN.Timeout,
		MaxRetries:     cfg.HN.MaxRetries,
		BackoffInitial: cfg.HN.BackoffInitial,
		BackoffMax:     cfg.HN.BackoffMax,
		UserAgent:      cfg.HN.UserAgent,
		Limiter: ratelimit.New(ratelimit.Config{
			MaxInFlight:       cfg.HN.MaxInFlight,
			RequestsPerSecond: cfg.HN.RequestsPerSecond,
		}),
	})
	if err != nil {
		return fmt.Errorf("initialize hn client: %w", err)
	}
	a.source = client

	// 3. Raw payload archive.
	blobs, closeBlobs, err := storage.Open(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("initialize archive: %w", err)
	}
	a.blobs, a.closeBlobs = blobs, closeBlobs
	if blobs != nil {
		l.Info("archiving raw payloads", zap.String("provider", cfg.Archive.Provider))
	}

	// 4. Run summary publisher.
	if err := a.initPublisher(ctx); err != nil {
		return err
	}

	// 5. Progress reporting.
	prom, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("initialize progress metrics: %w", err)
	}
	a.latest = sinks.NewLatestSink()
	a.hub = progress.NewHub(progress.Config{
		FlushInterval: cfg.Progress.FlushInterval,
		Logger:        l.Named("progress"),
	}, sinks.NewLogSink(l.Named("progress")), prom, a.latest)

	// 6. Optional status server.
	if cfg.Server.Addr != "" {
		a.server = api.NewServer(a.latest, a.ready, l.Named("api"))
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	topic := a.cfg.PubSub.Topic
	switch {
	case topic == "":
		return nil
	case a.cfg.Download.DryRun:
		a.logger.Info("dry run: run summary is recorded in memory", zap.String("topic", topic))
		a.publisher = pubmemory.New()
		return nil
	}
	a.logger.Info("connecting to GCP Pub/Sub", zap.String("topic", topic))
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("initialize pubsub client: %w", err)
	}
	pub := pubsubpub.New(client)
	a.publisher = pub
	a.closePublisher = func() error {
		pub.Close()
		return client.Close()
	}
	return nil
}

// ready checks the store with a trivial range read.
func (a *App) ready(ctx context.Context) error {
	if _, err := a.store.ExistingIDs(ctx, 1, 2); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return nil
}

// Runner builds a download runner over the app's services.
func (a *App) Runner() (*download.Runner, error) {
	cfg := a.cfg
	return download.New(download.Config{
		Concurrency:   cfg.Download.Concurrency,
		MaxItems:      cfg.Download.MaxItems,
		MinItemID:     cfg.Download.MinItemID,
		Direction:     cfg.Direction(),
		Policy:        cfg.Policy(),
		CommitEvery:   cfg.Download.CommitEvery,
		LogErrors:     cfg.Download.LogErrors,
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.PubSub.Topic,
	}, download.Deps{
		Source:    a.source,
		Store:     a.store,
		Blobs:     a.blobs,
		Publisher: a.publisher,
		Emitter:   a.hub,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Logger:    a.logger.Named("download"),
	})
}

// Serve runs the status server until ctx is cancelled. It returns immediately
// when no server address is configured.
func (a *App) Serve(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Close gracefully shuts down all services in the App container. The progress
// hub is flushed first so sinks see the final snapshot.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("error closing progress hub", zap.Error(err))
		}
	}
	if err := a.closePublisher(); err != nil {
		a.logger.Warn("error closing publisher", zap.Error(err))
	}
	if err := a.closeBlobs(); err != nil {
		a.logger.Warn("error closing archive", zap.Error(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
	}
	// Sync reports EINVAL on terminals and pipes; there is nowhere to send it.
	_ = a.logger.Sync()
}
