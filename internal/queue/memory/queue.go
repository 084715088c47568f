// Package memory provides the in-process scan queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/croftbar/leadscan/internal/scan"
)

// Queue is a bounded in-memory FIFO of scan ids with context-aware
// operations. A single consumer drains it; submission never blocks on
// execution, only on a full buffer.
//
// Shutdown is signaled through a separate done channel rather than by
// closing the id channel, so a producer blocked on a full buffer backs
// out with scan.ErrQueueClosed instead of panicking on a closed send.
type Queue struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch:   make(chan string, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a scan id or returns if the context ends. It fails
// with scan.ErrQueueClosed once the queue has been closed for shutdown,
// including when the close arrives while the push is blocked on a full
// buffer.
func (q *Queue) Enqueue(ctx context.Context, scanID string) error {
	select {
	case <-q.done:
		return scan.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return scan.ErrQueueClosed
	case q.ch <- scanID:
		return nil
	}
}

// Dequeue pops the next scan id, blocking until one is available or the
// context ends. Ids already buffered at close time are still handed out
// before scan.ErrQueueClosed is reported.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case scanID := <-q.ch:
		return scanID, nil
	case <-q.done:
		// The select above may race a buffered id against the close
		// signal; drain before reporting shutdown.
		select {
		case scanID := <-q.ch:
			return scanID, nil
		default:
			return "", scan.ErrQueueClosed
		}
	}
}

// Close stops the queue from accepting new work and releases any
// blocked producers. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
