package controller

import (
	"context"
	"time"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// blockJob is one dispatched block waiting for a worker.
type blockJob struct {
	run   *run
	block *transfer.BlockTransfer
}

// startWorkers launches the worker pool. Workers exit only when stopCh is
// closed; each block gets its own context derived from its run.
func (c *Controller) startWorkers() {
	logger.Debug("Starting transfer workers", logger.KeyWorker, c.cfg.Workers)

	for i := 0; i < c.cfg.Workers; i++ {
		c.workerWG.Add(1)
		go c.worker(i)
	}

	go func() {
		c.workerWG.Wait()
		close(c.stoppedCh)
	}()
}

func (c *Controller) worker(id int) {
	defer c.workerWG.Done()

	for {
		select {
		case job := <-c.jobs:
			c.dequeued()
			c.process(id, job)
		case <-c.stopCh:
			c.drainQueue(id)
			logger.Debug("Transfer worker stopped", logger.KeyWorker, id)
			return
		}
	}
}

// drainQueue settles the jobs still queued at shutdown. Runs are already
// interrupted by then, so no executor is called.
func (c *Controller) drainQueue(id int) {
	for {
		select {
		case job := <-c.jobs:
			c.dequeued()
			c.process(id, job)
		default:
			return
		}
	}
}

// feed hands a run's blocks to the worker pool. It blocks while the queue is
// full, and settles the blocks it could not hand over once the run is
// interrupted.
func (c *Controller) feed(r *run, blocks []*transfer.BlockTransfer) {
	defer c.feedWG.Done()

	for _, b := range blocks {
		job := blockJob{run: r, block: b}
		if r.ctx.Err() != nil {
			c.settleInterrupted(job)
			continue
		}
		select {
		case c.jobs <- job:
			c.enqueued()
		case <-r.ctx.Done():
			c.settleInterrupted(job)
		}
	}
}

func (c *Controller) enqueued() {
	metrics.SetQueueDepth(c.metrics, int(c.queued.Add(1)))
}

func (c *Controller) dequeued() {
	metrics.SetQueueDepth(c.metrics, int(c.queued.Add(-1)))
}

// settleInterrupted accounts for a block whose run was interrupted before
// the block started. A paused block keeps its state so the next start picks
// it up again; a canceled one is canceled.
func (c *Controller) settleInterrupted(job blockJob) {
	defer c.blockSettled(job.run)

	if job.run.interrupted() == ErrCanceled {
		ctx := logger.WithContext(context.Background(), job.run.lc)
		if _, err := c.ReportBlockResult(ctx, job.block.ID, transfer.StateCanceled); err != nil {
			logger.ErrorCtx(ctx, "Failed to cancel block", logger.BlockID(job.block.ID), logger.Err(err))
		}
	}
}

// process runs one block through the executor and reports its outcome.
func (c *Controller) process(workerID int, job blockJob) {
	r, block := job.run, job.block
	if r.interrupted() != nil {
		c.settleInterrupted(job)
		return
	}
	defer c.blockSettled(r)

	ctx := logger.WithContext(context.Background(), r.lc)
	started, err := c.store.TransitionBlockState(ctx, block.ID, transfer.StateInProgress,
		transfer.StatePending, transfer.StateFailed, transfer.StatePaused)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to mark block in progress", logger.BlockID(block.ID), logger.Err(err))
		c.recordError(err)
		return
	}
	if !started {
		// Settled by someone else since dispatch, e.g. a cancel.
		return
	}
	c.inflight.Store(block.ID, time.Now())

	logger.DebugCtx(ctx, "Block dispatched",
		logger.KeyWorker, workerID,
		logger.KeyBlockIdx, block.Index,
		logger.Range(block.StartRange, block.EndRange))

	spanCtx, span := telemetry.StartBlockSpan(r.ctx, r.blob, block, telemetry.Worker(workerID))
	defer span.End()

	blockCtx, cancel := context.WithTimeout(spanCtx, c.cfg.BlockTimeout)
	execErr := c.executor.Transfer(blockCtx, r.blob, block)
	cancel()

	outcome := transfer.StateComplete
	if execErr != nil {
		switch Interruption(r.ctx) {
		case ErrCanceled:
			outcome = transfer.StateCanceled
		case ErrPaused:
			outcome = transfer.StatePaused
		default:
			outcome = transfer.StateFailed
			logger.WarnCtx(ctx, "Block failed",
				logger.KeyBlockIdx, block.Index,
				logger.Range(block.StartRange, block.EndRange),
				logger.Err(execErr))
			c.recordError(execErr)
			telemetry.RecordError(spanCtx, execErr)
		}
	}
	span.SetAttributes(telemetry.Outcome(outcome))

	if _, err := c.ReportBlockResult(ctx, block.ID, outcome); err != nil {
		logger.ErrorCtx(ctx, "Failed to report block result", logger.BlockID(block.ID), logger.Err(err))
		c.recordError(err)
	}
}
