package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

func newBatch(t *testing.T, s store.Store, sizes ...int64) (*transfer.MultiBlobTransfer, []*transfer.BlobTransfer) {
	t.Helper()
	batch := transfer.NewMultiBlobTransfer("photos")
	require.NoError(t, s.CreateBatch(t.Context(), batch))
	blobs := make([]*transfer.BlobTransfer, len(sizes))
	for i, size := range sizes {
		blobs[i] = createBlob(t, s, size, batch)
	}
	return batch, blobs
}

func TestBatch_StartAndWait(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)
	exec := &fakeExecutor{}
	c := newTestController(t, s, exec)

	batch, _ := newBatch(t, s, 250, 100, 400)
	require.NoError(t, c.StartBatch(ctx, batch.ID))

	snap, err := c.WaitBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, snap.Blobs, 3)
	assert.Equal(t, transfer.StateComplete, snap.State())
	assert.Zero(t, snap.IncompleteBlobs())
	assert.Len(t, exec.takeCalls(), 8)

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateComplete, got.RawState)
}

func TestBatch_FailedChildFailsBatch(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)
	exec := &fakeExecutor{}
	c := newTestController(t, s, exec)

	batch, blobs := newBatch(t, s, 100, 200)
	bad := blobs[1].ID
	exec.setFn(func(ctx context.Context, b *transfer.BlockTransfer) error {
		if b.BlobID == bad && b.Index == 1 {
			return errors.New("disk full")
		}
		return nil
	})

	require.NoError(t, c.StartBatch(ctx, batch.ID))
	snap, err := c.WaitBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateFailed, snap.State())
	assert.Equal(t, 1, snap.IncompleteBlobs())

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateFailed, got.RawState)
}

func TestBatch_CancelIdle(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)
	exec := &fakeExecutor{}
	c := newTestController(t, s, exec)

	batch, _ := newBatch(t, s, 100, 100)
	require.NoError(t, c.CancelBatch(ctx, batch.ID))

	snap, err := c.BatchStatus(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateCanceled, snap.Batch.RawState)
	assert.Equal(t, transfer.StateCanceled, snap.State())
	_, _, aborted := exec.counts()
	assert.Equal(t, 2, aborted)
}

func TestBatch_PauseRunning(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)
	exec := &fakeExecutor{}
	started := make(chan int, 8)
	exec.setFn(blockUntilInterrupted(started))
	c := newTestController(t, s, exec)

	batch, _ := newBatch(t, s, 100, 100)
	require.NoError(t, c.StartBatch(ctx, batch.ID))
	<-started
	<-started

	require.NoError(t, c.PauseBatch(ctx, batch.ID))
	snap, err := c.WaitBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatePaused, snap.State())
}

func TestBatch_Unknown(t *testing.T) {
	c := newTestController(t, newStore(t), &fakeExecutor{})
	assert.ErrorIs(t, c.StartBatch(t.Context(), transfer.NewID()), store.ErrNotFound)
	_, err := c.WaitBatch(t.Context(), transfer.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
