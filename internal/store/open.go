package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/store/memory"
	"github.com/JakeFAU/hn-archiver/internal/store/postgres"
	"github.com/JakeFAU/hn-archiver/internal/store/sqlite"
)

// DefaultURL is used when no database URL is configured.
const DefaultURL = "sqlite://hackernews.db"

// Open returns the backend selected by rawURL's scheme. A URL without a
// scheme is treated as a SQLite file path.
func Open(ctx context.Context, rawURL string) (archive.ItemStore, error) {
	if strings.TrimSpace(rawURL) == "" {
		rawURL = DefaultURL
	}
	scheme, rest, found := strings.Cut(rawURL, "://")
	if !found {
		scheme, rest = "sqlite", rawURL
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		s, err := sqlite.Open(ctx, rest)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := postgres.Open(ctx, postgres.Config{DSN: rawURL})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	case "memory", "mem":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
