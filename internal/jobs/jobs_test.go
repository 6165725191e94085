package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/queue"
)

type fakeCompleter struct {
	mu        sync.Mutex
	sweeps    int
	completed []string
	done      chan struct{}
}

func newFake() *fakeCompleter { return &fakeCompleter{done: make(chan struct{}, 16)} }

func (f *fakeCompleter) Sweep(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.sweeps++
	f.mu.Unlock()
	f.done <- struct{}{}
	return 1, nil
}

func (f *fakeCompleter) CompleteIfDue(ctx context.Context, meetingID string) (bool, error) {
	f.mu.Lock()
	f.completed = append(f.completed, meetingID)
	f.mu.Unlock()
	f.done <- struct{}{}
	return true, nil
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestHandle(t *testing.T) {
	f := newFake()
	ctx := context.Background()

	require.NoError(t, Handle(ctx, f, queue.Message{Type: queue.TypeSweep}))
	require.NoError(t, Handle(ctx, f, queue.Message{Type: queue.TypeComplete, MeetingID: "m1"}))
	assert.Error(t, Handle(ctx, f, queue.Message{Type: queue.TypeComplete}))
	assert.ErrorIs(t, Handle(ctx, f, queue.Message{Type: "checkin"}), ErrUnknownMessage)

	assert.Equal(t, 1, f.sweeps)
	assert.Equal(t, []string{"m1"}, f.completed)
}

func TestConsume(t *testing.T) {
	f := newFake()
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Consume(ctx, q, f, time.Second) }()

	require.NoError(t, q.Publish(ctx, queue.Message{Type: "bogus"}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.TypeComplete, MeetingID: "m9"}))
	wait(t, f.done)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []string{"m9"}, f.completed)
}

func TestRunSweep(t *testing.T) {
	f := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunSweep(ctx, f, 10*time.Millisecond, time.Second) }()

	wait(t, f.done)
	wait(t, f.done)
	cancel()
	require.NoError(t, <-done)
}

func TestRunSweepDisabled(t *testing.T) {
	assert.NoError(t, RunSweep(context.Background(), newFake(), 0, 0))
}
