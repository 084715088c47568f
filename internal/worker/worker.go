// Package worker implements the scan execution loop: a single consumer
// that drains the queue and runs one scan at a time.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/croftbar/leadscan/internal/metrics"
	"github.com/croftbar/leadscan/internal/scan"
)

// Executor runs one scan to completion or failure.
type Executor interface {
	Execute(ctx context.Context, sc scan.Scan) error
}

// Worker consumes scan ids and executes them through the Executor. At
// most one scan runs at a time, which bounds load on the external
// provider and removes any need for cross-scan locking.
type Worker struct {
	queue    scan.Queue
	store    scan.Store
	executor Executor
	logger   *zap.Logger
	done     chan struct{}
}

// New constructs a Worker.
func New(queue scan.Queue, store scan.Store, executor Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		store:    store,
		executor: executor,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Done is closed once the loop has fully stopped, including any scan
// that was in flight when the context ended.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run blocks, consuming scan ids until the context finishes or the
// queue closes. The context only gates dequeuing: a scan already
// dequeued runs to its natural end, and the caller bounds how long it
// waits on Done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		scanID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, scan.ErrQueueClosed) {
				w.logger.Info("worker stopping")
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			// Back off so a persistently failing queue cannot spin the loop.
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopping")
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		w.processScan(context.WithoutCancel(ctx), scanID)
	}
}

// processScan drives one scan through its lifecycle. Failures are
// recorded on the scan; they never take the loop down.
func (w *Worker) processScan(ctx context.Context, scanID string) {
	sc, err := w.store.GetScan(ctx, scanID)
	if err != nil {
		// An unknown id (deleted between submit and dequeue) is dropped.
		w.logger.Error("load scan failed", zap.String("scan_id", scanID), zap.Error(err))
		return
	}

	if err := w.store.UpdateScanStatus(ctx, scanID, scan.StatusRunning, ""); err != nil {
		w.logger.Error("mark scan running failed", zap.String("scan_id", scanID), zap.Error(err))
		return
	}
	sc.Status = scan.StatusRunning

	metrics.SetWorkerBusy(true)
	defer metrics.SetWorkerBusy(false)

	w.logger.Info("scan started", zap.String("scan_id", scanID))

	if execErr := w.executor.Execute(ctx, sc); execErr != nil {
		w.logger.Error("scan failed", zap.String("scan_id", scanID), zap.Error(execErr))
		if err := w.store.UpdateScanStatus(ctx, scanID, scan.StatusFailed, execErr.Error()); err != nil {
			w.logger.Error("mark scan failed failed", zap.String("scan_id", scanID), zap.Error(err))
		}
		metrics.ObserveScanFinished(string(scan.StatusFailed))
		return
	}

	if err := w.store.UpdateScanStatus(ctx, scanID, scan.StatusCompleted, ""); err != nil {
		w.logger.Error("mark scan completed failed", zap.String("scan_id", scanID), zap.Error(err))
		return
	}
	metrics.ObserveScanFinished(string(scan.StatusCompleted))
	w.logger.Info("scan completed", zap.String("scan_id", scanID))
}
