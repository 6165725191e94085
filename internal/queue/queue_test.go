package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	require.NoError(t, q.Publish(ctx, Message{Type: TypeSweep}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeComplete, MeetingID: "m1"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, TypeSweep, receive(t, ch).Type)
	msg := receive(t, ch)
	assert.Equal(t, TypeComplete, msg.Type)
	assert.Equal(t, "m1", msg.MeetingID)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: TypeSweep}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: TypeSweep}), context.DeadlineExceeded)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "")
	q.wait = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	at := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeComplete, MeetingID: "m1", QueuedAt: at}))
	_, err := mr.Lpush("campus:meetings:jobs", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeSweep, QueuedAt: at}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	first := receive(t, ch)
	assert.Equal(t, TypeComplete, first.Type)
	assert.Equal(t, "m1", first.MeetingID)
	assert.True(t, first.QueuedAt.Equal(at))
	assert.Equal(t, TypeSweep, receive(t, ch).Type)
}
