package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	"github.com/jwebster45206/infinite-story/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := NewClient("redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}
	return client, mr
}

func TestInteractionQueue_FIFO(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	ctx := context.Background()

	first := queue.NewRequest("s1", &narrative.Interaction{Type: narrative.InteractionClick, Target: "door"})
	second := queue.NewRequest("s2", nil)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.RequestID, got.RequestID)
	assert.Equal(t, "door", got.Interaction.Target)

	got, err = q.BlockingDequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.RequestID, got.RequestID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInteractionQueue_BlockingDequeueTimesOut(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	got, err := q.BlockingDequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInteractionQueue_BlockingDequeueCancelled(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := q.BlockingDequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInteractionQueue_Requeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	ctx := context.Background()

	req := queue.NewRequest("s1", nil)
	require.NoError(t, q.Requeue(ctx, req))
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Attempts)
}

func TestInteractionQueue_RejectsInvalid(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	err := q.Enqueue(context.Background(), &queue.Request{Type: queue.RequestTypeContinue})
	assert.Error(t, err)

	// Garbage already on the list surfaces as a parse error.
	_, err = mr.Lpush(requestsKey, "garbage")
	require.NoError(t, err)
	_, err = q.Dequeue(context.Background())
	assert.Error(t, err)
}

func TestNewClient_BadURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	_, err := NewClient("not a url", logger)
	assert.Error(t, err)
}
