// Package controller drives resumable blob transfers.
//
// A Controller decomposes a blob into blocks on its first start, hands the
// blocks that still need work to a bounded pool of workers, and records every
// executor outcome through ReportBlockResult. All progress lives in the
// store, so a transfer interrupted by a pause, a failure or a crash resumes
// from its incomplete blocks.
//
// Pause and cancel are asynchronous: they cancel the run's context with
// ErrPaused or ErrCanceled as cause, and the workers settle each in-flight
// block accordingly. Wait blocks until a run has drained.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// Controller coordinates transfers between a store and an executor.
type Controller struct {
	store    store.Store
	executor Executor
	metrics  metrics.TransferMetrics
	cfg      Config

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc

	jobs      chan blockJob
	queued    atomic.Int64
	workerWG  sync.WaitGroup
	feedWG    sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}

	// inflight maps block id to the time its executor call started.
	inflight sync.Map

	mu     sync.Mutex
	runs   map[string]*run
	closed bool

	statsMu     sync.Mutex
	completed   int
	failed      int
	lastError   error
	lastErrorAt time.Time
}

// Option configures optional Controller dependencies.
type Option func(*Controller)

// WithMetrics instruments the controller. A nil m disables metrics.
func WithMetrics(m metrics.TransferMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller and starts its workers.
func New(s store.Store, executor Executor, cfg Config, opts ...Option) *Controller {
	cfg.ApplyDefaults()
	baseCtx, baseCancel := context.WithCancelCause(context.Background())

	c := &Controller{
		store:      s,
		executor:   executor,
		cfg:        cfg,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		jobs:       make(chan blockJob, cfg.QueueSize),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
		runs:       make(map[string]*run),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startWorkers()
	return c
}

// Start begins or resumes a blob transfer.
//
// On the first start the blob is decomposed into blocks of Config.ChunkSize.
// Every pending, failed or paused block is then dispatched. Start returns
// once the blocks are handed to the workers; use Wait to block until the
// run has drained.
//
// Starting a blob that already has an active run, that was canceled, or
// whose blocks are all complete is a no-op.
func (c *Controller) Start(ctx context.Context, blobID string) error {
	blob, err := c.store.GetBlob(ctx, blobID)
	if err != nil {
		return err
	}

	r := c.newRun(blob)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.cancel(nil)
		return ErrClosed
	}
	if _, active := c.runs[blobID]; active {
		c.mu.Unlock()
		r.cancel(nil)
		logger.DebugCtx(ctx, "Transfer already running", logger.BlobID(blobID))
		return nil
	}
	c.runs[blobID] = r
	active := len(c.runs)
	// Registered under mu so that Close, which sets closed under mu before
	// waiting, always sees this feeder.
	c.feedWG.Add(1)
	c.mu.Unlock()
	metrics.SetActiveTransfers(c.metrics, active)

	dispatched, err := c.prepareRun(r)
	if err != nil || dispatched == nil {
		c.feedWG.Done()
		c.removeRun(r)
		close(r.done)
		return err
	}
	if len(dispatched) == 0 {
		// All blocks complete but the blob never committed: retry the
		// finalization only.
		c.feedWG.Done()
		r.remaining.Store(1)
		c.blockSettled(r)
		return nil
	}

	r.remaining.Store(int64(len(dispatched)))
	go c.feed(r, dispatched)

	logger.InfoCtx(r.ctx, "Transfer started",
		logger.KeyDirection, blob.Type.String(),
		logger.KeySource, blob.Source,
		logger.KeyDestination, blob.Destination,
		logger.KeyDispatched, len(dispatched))
	return nil
}

// prepareRun brings a registered run to the point where its blocks can be
// dispatched. It returns nil blocks when the start is a no-op, and an empty
// non-nil slice when only finalization is outstanding.
func (c *Controller) prepareRun(r *run) ([]*transfer.BlockTransfer, error) {
	// Store writes must land even if the run is interrupted meanwhile.
	ctx := context.WithoutCancel(r.ctx)
	snap, err := store.LoadBlob(ctx, c.store, r.blob.ID)
	if err != nil {
		return nil, err
	}
	r.blob = snap.Blob

	if snap.Terminal() {
		if snap.Blob.RawState != transfer.StateCanceled && snap.Blob.RawState != transfer.StateComplete &&
			snap.IncompleteBlocks() == 0 {
			return []*transfer.BlockTransfer{}, nil
		}
		logger.InfoCtx(ctx, "Transfer is terminal, nothing to start", logger.State(snap.State()))
		return nil, nil
	}

	planned := snap.Blocks
	if !snap.Decomposed() {
		if planned, err = transfer.Decompose(snap.Blob, c.cfg.ChunkSize); err != nil {
			return nil, err
		}
	}

	// Blocks an executor cannot take are rejected before they are persisted,
	// so a blob never decomposed can be retried with another chunk size.
	if p, ok := c.executor.(Planner); ok {
		if err := p.CheckBlocks(snap.Blob, planned); err != nil {
			c.failRun(ctx, snap.Blob.ID)
			return nil, fmt.Errorf("plan transfer: %w", err)
		}
	}

	if !snap.Decomposed() {
		if err := c.store.CreateBlocks(ctx, snap.Blob.ID, planned); err != nil {
			if !errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("persist blocks: %w", err)
			}
			// Decomposed since the snapshot was read; keep the stored blocks.
			if planned, err = c.store.ListBlocks(ctx, snap.Blob.ID); err != nil {
				return nil, err
			}
		}
		snap.Blocks = planned
		logger.DebugCtx(ctx, "Transfer decomposed",
			logger.KeyBlocks, len(planned),
			logger.KeyBytes, snap.Blob.Size())
	}

	// No run was active, so an inProgress block is left over from a run
	// that died without reporting it.
	for _, b := range snap.Blocks {
		if b.State != transfer.StateInProgress {
			continue
		}
		if _, err := c.store.TransitionBlockState(ctx, b.ID, transfer.StatePaused, transfer.StateInProgress); err != nil {
			return nil, err
		}
		b.State = transfer.StatePaused
	}

	if p, ok := c.executor.(Preparer); ok {
		prepCtx, span := telemetry.StartBlobSpan(r.ctx, telemetry.SpanPrepare, snap.Blob)
		session, err := p.Prepare(prepCtx, snap.Blob)
		telemetry.RecordError(prepCtx, err)
		span.End()
		if err != nil {
			c.failRun(ctx, snap.Blob.ID)
			return nil, fmt.Errorf("prepare transfer: %w", err)
		}
		if session != snap.Blob.SessionID {
			if err := c.store.UpdateBlobSession(ctx, snap.Blob.ID, session); err != nil {
				return nil, err
			}
			snap.Blob.SessionID = session
		}
	}

	if err := c.store.UpdateBlobState(ctx, snap.Blob.ID, transfer.StateInProgress); err != nil {
		return nil, err
	}
	snap.Blob.RawState = transfer.StateInProgress

	dispatched := snap.Dispatchable()
	if dispatched == nil {
		dispatched = []*transfer.BlockTransfer{}
	}
	return dispatched, nil
}

// failRun marks a blob failed after its run could not be set up.
func (c *Controller) failRun(ctx context.Context, blobID string) {
	if err := c.store.UpdateBlobState(ctx, blobID, transfer.StateFailed); err != nil {
		logger.ErrorCtx(ctx, "Failed to persist transfer state", logger.Err(err))
	}
}

// Pause asks the active run of a blob to stop. In-flight blocks become
// paused and are resumed by the next Start. Pausing a blob with no active
// run is a no-op.
func (c *Controller) Pause(ctx context.Context, blobID string) error {
	return c.interrupt(ctx, blobID, ErrPaused)
}

// Cancel stops a blob transfer for good: every block that is not complete
// becomes canceled, and the executor's remote session, if any, is aborted.
// Blocks already complete are left untouched. Canceling a terminal transfer
// is a no-op.
func (c *Controller) Cancel(ctx context.Context, blobID string) error {
	return c.interrupt(ctx, blobID, ErrCanceled)
}

func (c *Controller) interrupt(ctx context.Context, blobID string, cause error) error {
	c.mu.Lock()
	r, active := c.runs[blobID]
	c.mu.Unlock()

	if active {
		logger.InfoCtx(r.ctx, "Interrupting transfer", logger.KeyOperation, cause.Error())
		r.cancel(cause)
		return nil
	}

	snap, err := store.LoadBlob(ctx, c.store, blobID)
	if err != nil {
		return err
	}
	if cause != ErrCanceled {
		return nil
	}
	if snap.Terminal() {
		logger.DebugCtx(ctx, "Transfer is terminal, nothing to cancel",
			logger.BlobID(blobID), logger.State(snap.State()))
		return nil
	}

	c.sweepCanceled(ctx, blobID)
	if err := c.store.UpdateBlobState(ctx, blobID, transfer.StateCanceled); err != nil {
		return err
	}
	c.abort(ctx, snap.Blob)
	logger.InfoCtx(ctx, "Transfer canceled", logger.BlobID(blobID))
	return nil
}

// Wait blocks until the active run of a blob has drained, then returns the
// blob's snapshot. It returns immediately when no run is active. A run-level
// failure, such as a failed finalization, is returned alongside the snapshot.
func (c *Controller) Wait(ctx context.Context, blobID string) (*transfer.BlobSnapshot, error) {
	c.mu.Lock()
	r, active := c.runs[blobID]
	c.mu.Unlock()

	var runErr error
	if active {
		select {
		case <-r.done:
			runErr = r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	snap, err := c.Status(ctx, blobID)
	if err != nil {
		return nil, err
	}
	return snap, runErr
}

// Status returns the current snapshot of a blob.
func (c *Controller) Status(ctx context.Context, blobID string) (*transfer.BlobSnapshot, error) {
	return store.LoadBlob(ctx, c.store, blobID)
}

// Active returns the ids of blobs with a running run.
func (c *Controller) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}
	return ids
}

// Discard deletes a blob transfer and its blocks. A running transfer is
// refused with ErrActive unless force is set, in which case it is canceled
// and drained first. Discarding an unfinished transfer aborts the
// executor's remote session.
func (c *Controller) Discard(ctx context.Context, blobID string, force bool) error {
	c.mu.Lock()
	_, active := c.runs[blobID]
	c.mu.Unlock()

	if active {
		if !force {
			return ErrActive
		}
		if err := c.Cancel(ctx, blobID); err != nil {
			return err
		}
		if _, err := c.Wait(ctx, blobID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.WarnCtx(ctx, "Discarding transfer after failed run", logger.BlobID(blobID), logger.Err(err))
		}
	}

	snap, err := store.LoadBlob(ctx, c.store, blobID)
	if err != nil {
		return err
	}
	if !active && snap.Blob.RawState != transfer.StateComplete && snap.Blob.RawState != transfer.StateCanceled {
		c.abort(ctx, snap.Blob)
	}
	if err := c.store.DeleteBlob(ctx, blobID); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "Transfer discarded", logger.BlobID(blobID))
	return nil
}

// PruneCompleted deletes every idle blob whose blocks are all complete and
// whose completion was committed. It returns the number of blobs deleted.
func (c *Controller) PruneCompleted(ctx context.Context) (int, error) {
	blobs, err := c.store.ListBlobs(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, blob := range blobs {
		c.mu.Lock()
		_, active := c.runs[blob.ID]
		c.mu.Unlock()
		if active || blob.RawState != transfer.StateComplete {
			continue
		}

		snap, err := store.LoadBlob(ctx, c.store, blob.ID)
		if err != nil {
			return pruned, err
		}
		if !snap.Decomposed() || snap.IncompleteBlocks() > 0 {
			continue
		}
		if err := c.store.DeleteBlob(ctx, blob.ID); err != nil {
			return pruned, err
		}
		pruned++
	}

	logger.Info("Pruned completed transfers", "pruned", pruned)
	return pruned, nil
}

// Close pauses every active run, waits up to timeout for the workers to
// settle their blocks, and stops the controller. The interrupted blobs keep
// raw state inProgress, so Recover restarts them in the next process. The
// store is not closed.
func (c *Controller) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	logger.Info("Stopping transfer controller", logger.KeyPending, int(c.queued.Load()), "active", len(runs))
	c.baseCancel(errShutdown)

	deadline := time.After(timeout)
	fed := make(chan struct{})
	go func() {
		c.feedWG.Wait()
		close(c.stopCh)
		close(fed)
	}()

	select {
	case <-fed:
	case <-deadline:
		logger.Warn("Transfer controller stop timed out", logger.KeyPending, int(c.queued.Load()))
		return fmt.Errorf("timed out after %s waiting for transfers to stop", timeout)
	}

	select {
	case <-c.stoppedCh:
	case <-deadline:
		logger.Warn("Transfer controller stop timed out", logger.KeyPending, int(c.queued.Load()))
		return fmt.Errorf("timed out after %s waiting for transfers to stop", timeout)
	}

	for _, r := range runs {
		select {
		case <-r.done:
		case <-deadline:
			return fmt.Errorf("timed out after %s waiting for transfers to stop", timeout)
		}
	}
	logger.Info("Transfer controller stopped")
	return nil
}

// Stats returns the number of queued blocks and the blocks completed and
// failed since the controller started.
func (c *Controller) Stats() (queued, completed, failed int) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return int(c.queued.Load()), c.completed, c.failed
}

// LastError returns the most recent block or store error and when it
// happened.
func (c *Controller) LastError() (time.Time, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.lastErrorAt, c.lastError
}

func (c *Controller) recordCompleted() {
	c.statsMu.Lock()
	c.completed++
	c.statsMu.Unlock()
}

func (c *Controller) recordError(err error) {
	c.statsMu.Lock()
	c.failed++
	c.lastError = err
	c.lastErrorAt = time.Now()
	c.statsMu.Unlock()
}
