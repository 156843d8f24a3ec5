package gcs

import (
	"bytes"
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "hn"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: "  "})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "hn"})
	require.NoError(t, err)
	assert.Equal(t, "hn", store.bucket)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: "hn"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.PutObject(context.Background(), "/", "application/json", bytes.NewReader(nil))
	require.Error(t, err)
}
