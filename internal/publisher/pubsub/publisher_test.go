package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "hn-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	p := New(client)
	defer p.Close()
	id, err := p.Publish(ctx, "runs", map[string]any{"planned": 10})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"planned":10}`, string(msgs[0].Data))
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishMissingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	p := New(client)
	defer p.Close()

	_, err := p.Publish(context.Background(), "does-not-exist", "x")
	require.Error(t, err)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	var nilPublisher *Publisher
	_, err := nilPublisher.Publish(context.Background(), "runs", "x")
	require.Error(t, err)

	client, _ := newFakeClient(t)
	p := New(client)
	_, err = p.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = p.Publish(context.Background(), "runs", make(chan int))
	require.Error(t, err)
}
