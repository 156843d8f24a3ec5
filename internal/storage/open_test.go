package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hn-archiver/internal/config"
	"github.com/JakeFAU/hn-archiver/internal/storage/local"
	"github.com/JakeFAU/hn-archiver/internal/storage/memory"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.ArchiveConfig{Provider: config.ArchiveNone})
	require.NoError(t, err)
	assert.Nil(t, store)
	require.NoError(t, closeFn())

	store, _, err = Open(ctx, config.ArchiveConfig{Provider: config.ArchiveMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.BlobStore{}, store)

	store, _, err = Open(ctx, config.ArchiveConfig{Provider: config.ArchiveLocal, Dir: filepath.Join(t.TempDir(), "raw")})
	require.NoError(t, err)
	assert.IsType(t, &local.BlobStore{}, store)

	_, _, err = Open(ctx, config.ArchiveConfig{Provider: "s3"})
	require.Error(t, err)
}
