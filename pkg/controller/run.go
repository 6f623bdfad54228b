package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// run is one active start or resume of a blob. It lives from Start until
// every dispatched block has been settled.
type run struct {
	blob   *transfer.BlobTransfer
	ctx    context.Context
	cancel context.CancelCauseFunc
	lc     *logger.LogContext

	// remaining counts dispatched blocks not yet settled.
	remaining atomic.Int64

	done chan struct{}
	once sync.Once

	// err is a run-level failure (finalization), readable after done.
	err error
}

func (c *Controller) newRun(blob *transfer.BlobTransfer) *run {
	ctx, cancel := context.WithCancelCause(c.baseCtx)
	lc := logger.NewLogContext("start", blob.ID)
	if blob.ParentID != "" {
		lc = lc.WithBatch(blob.ParentID)
	}
	return &run{
		blob:   blob,
		ctx:    logger.WithContext(ctx, lc),
		cancel: cancel,
		lc:     lc,
		done:   make(chan struct{}),
	}
}

// interrupted returns the pause or cancel cause of the run, or nil.
func (r *run) interrupted() error {
	if r.ctx.Err() == nil {
		return nil
	}
	if err := Interruption(r.ctx); err != nil {
		return err
	}
	return ErrPaused
}

// blockSettled marks one dispatched block as settled and finishes the run
// after the last one.
func (c *Controller) blockSettled(r *run) {
	if r.remaining.Add(-1) == 0 {
		c.finishRun(r)
	}
}

// finishRun persists the blob's raw state once the run has drained, runs
// the executor's finalize or abort hook, and releases waiters.
func (c *Controller) finishRun(r *run) {
	r.once.Do(func() {
		defer close(r.done)
		ctx := logger.WithContext(context.Background(), r.lc)
		cause := Interruption(r.ctx)

		if errors.Is(cause, ErrCanceled) {
			c.sweepCanceled(ctx, r.blob.ID)
		}

		snap, err := store.LoadBlob(ctx, c.store, r.blob.ID)
		if err != nil {
			logger.ErrorCtx(ctx, "Failed to load transfer after run", logger.Err(err))
			r.err = err
			c.removeRun(r)
			return
		}

		var raw transfer.State
		switch {
		case errors.Is(cause, ErrCanceled):
			raw = transfer.StateCanceled
			c.abort(ctx, snap.Blob)
		case snap.Decomposed() && snap.IncompleteBlocks() == 0:
			raw = transfer.StateComplete
			if err := c.finalize(ctx, snap); err != nil {
				raw = transfer.StateFailed
				r.err = err
			}
		case errors.Is(context.Cause(r.ctx), errShutdown):
			raw = transfer.StateInProgress
		case errors.Is(cause, ErrPaused):
			raw = transfer.StatePaused
		default:
			raw = snap.State()
		}

		if err := c.store.UpdateBlobState(ctx, r.blob.ID, raw); err != nil {
			logger.ErrorCtx(ctx, "Failed to persist transfer state", logger.State(raw), logger.Err(err))
		}
		c.removeRun(r)

		metrics.RecordTransferFinished(c.metrics, r.blob.Type.String(), snap.State())
		logger.InfoCtx(ctx, "Transfer run finished",
			logger.KeyState, raw.String(),
			logger.KeyIncomplete, snap.IncompleteBlocks(),
			logger.KeyBytes, snap.CompletedBytes(),
			logger.KeyDurationMs, r.lc.DurationMs())

		if r.blob.ParentID != "" {
			c.refreshBatchState(ctx, r.blob.ParentID)
		}
	})
}

func (c *Controller) removeRun(r *run) {
	r.cancel(nil)
	c.mu.Lock()
	if c.runs[r.blob.ID] == r {
		delete(c.runs, r.blob.ID)
	}
	active := len(c.runs)
	c.mu.Unlock()
	metrics.SetActiveTransfers(c.metrics, active)
}

// sweepCanceled cancels every block of a blob that is neither complete nor
// already canceled.
func (c *Controller) sweepCanceled(ctx context.Context, blobID string) {
	blocks, err := c.store.ListBlocks(ctx, blobID)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to list blocks for cancel", logger.Err(err))
		return
	}
	for _, b := range blocks {
		if b.State == transfer.StateComplete || b.State == transfer.StateCanceled {
			continue
		}
		if _, err := c.ReportBlockResult(ctx, b.ID, transfer.StateCanceled); err != nil {
			logger.ErrorCtx(ctx, "Failed to cancel block", logger.BlockID(b.ID), logger.Err(err))
		}
	}
}

func (c *Controller) finalize(ctx context.Context, snap *transfer.BlobSnapshot) error {
	f, ok := c.executor.(Finalizer)
	if !ok {
		return nil
	}
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanFinalize, snap.Blob)
	defer span.End()

	if err := f.Finalize(ctx, snap.Blob, snap.Blocks); err != nil {
		logger.ErrorCtx(ctx, "Failed to finalize transfer", logger.Err(err))
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

func (c *Controller) abort(ctx context.Context, blob *transfer.BlobTransfer) {
	a, ok := c.executor.(Aborter)
	if !ok {
		return
	}
	ctx, span := telemetry.StartBlobSpan(ctx, telemetry.SpanAbort, blob)
	defer span.End()

	if err := a.Abort(ctx, blob); err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Failed to abort remote session", logger.KeySession, blob.SessionID, logger.Err(err))
	}
}

func (c *Controller) refreshBatchState(ctx context.Context, batchID string) {
	snap, err := store.LoadBatch(ctx, c.store, batchID)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to load batch", logger.KeyBatchID, batchID, logger.Err(err))
		return
	}
	c.mu.Lock()
	for _, id := range snap.Batch.BlobIDs {
		if _, running := c.runs[id]; running {
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()

	if err := c.store.UpdateBatchState(ctx, batchID, snap.State()); err != nil {
		logger.WarnCtx(ctx, "Failed to persist batch state", logger.KeyBatchID, batchID, logger.Err(err))
	}
}
