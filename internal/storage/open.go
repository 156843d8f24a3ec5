package storage

import (
	"context"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/config"
	"github.com/JakeFAU/hn-archiver/internal/storage/gcs"
	"github.com/JakeFAU/hn-archiver/internal/storage/local"
	"github.com/JakeFAU/hn-archiver/internal/storage/memory"
)

// Open returns the blob store for cfg.Provider, or nil when archiving is
// disabled. The returned close func is never nil.
func Open(ctx context.Context, cfg config.ArchiveConfig) (archive.BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", config.ArchiveNone:
		return nil, noop, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), noop, nil
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local archive: %w", err)
		}
		return store, noop, nil
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported archive provider %q", cfg.Provider)
	}
}
