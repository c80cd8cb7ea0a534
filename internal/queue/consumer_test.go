package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testStream = "media:thumbnails"
	testGroup  = "thumbnail-workers"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.ID)
	return h.err
}

func newTestConsumer(t *testing.T, handler MessageHandler, maxDeliveries int) (*Consumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewConsumer(client, testStream, testGroup, "worker-1", time.Millisecond, maxDeliveries, zerolog.Nop(), handler)
	require.NoError(t, c.EnsureGroup(context.Background()))
	require.NoError(t, c.EnsureGroup(context.Background()))
	return c, client
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	summary, err := client.XPending(context.Background(), testStream, testGroup).Result()
	require.NoError(t, err)
	return summary.Count
}

func TestConsumerAcksHandledTasks(t *testing.T) {
	handler := &recordingHandler{}
	c, client := newTestConsumer(t, handler, 3)
	ctx := context.Background()

	require.NoError(t, NewProducer(client, testStream).Enqueue(ctx, Task{Type: TaskPrewarm, ImageID: "img-1"}))
	require.NoError(t, c.read(ctx))

	require.Len(t, handler.seen, 1)
	require.Zero(t, pendingCount(t, client))
}

func TestConsumerDropsTaskAfterMaxDeliveries(t *testing.T) {
	handler := &recordingHandler{err: errors.New("store down")}
	c, client := newTestConsumer(t, handler, 1)
	ctx := context.Background()

	require.NoError(t, NewProducer(client, testStream).Enqueue(ctx, Task{Type: TaskPrewarm, ImageID: "img-1"}))
	require.NoError(t, c.read(ctx))
	require.Len(t, handler.seen, 1)
	require.EqualValues(t, 1, pendingCount(t, client))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.claimStalled(ctx))

	require.Len(t, handler.seen, 1)
	require.Zero(t, pendingCount(t, client))
}
