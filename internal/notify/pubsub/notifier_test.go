package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

func TestNotifyPublishesEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "legis-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "refresh")
	require.NoError(t, err)
	n := New(topic)
	t.Cleanup(n.Stop)

	event := legislation.RefreshEvent{RunID: "run-1", Mode: "national", National: 4, TargetDate: "2024-05-10"}
	require.NoError(t, n.Notify(ctx, event))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-1", msgs[0].Attributes["run_id"])
	assert.Equal(t, "national", msgs[0].Attributes["mode"])

	var got legislation.RefreshEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, event, got)
}

func TestNotifyWithoutTopic(t *testing.T) {
	t.Parallel()

	require.Error(t, New(nil).Notify(context.Background(), legislation.RefreshEvent{}))
	var n *Notifier
	n.Stop()
}
