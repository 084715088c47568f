package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/croftbar/leadscan/internal/scan"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "scan-1"))
	require.NoError(t, q.Enqueue(ctx, "scan-2"))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-1", first)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-2", second)
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	q := New(1)
	got := make(chan string, 1)

	go func() {
		id, err := q.Dequeue(context.Background())
		if err == nil {
			got <- id
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), "scan-late"))

	select {
	case id := <-got:
		require.Equal(t, "scan-late", id)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe enqueued id")
	}
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueEnqueueAfterCloseFails(t *testing.T) {
	t.Parallel()

	q := New(1)
	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), "scan-1"), scan.ErrQueueClosed)

	// Closing twice must be safe.
	q.Close()
}

func TestQueueCloseReleasesBlockedEnqueue(t *testing.T) {
	t.Parallel()

	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), "scan-1"))

	// Second producer blocks on the full buffer.
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), "scan-2")
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, scan.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released by Close")
	}
}

func TestQueueDequeueDrainsBufferedAfterClose(t *testing.T) {
	t.Parallel()

	q := New(2)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "scan-1"))
	q.Close()

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-1", id)

	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, scan.ErrQueueClosed)
}
