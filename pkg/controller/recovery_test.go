package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
)

func TestRecover_ResumesInterruptedTransfer(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)
	exec := &fakeExecutor{}
	c := newTestController(t, s, exec)

	blob, _ := createDecomposed(t, s, transfer.StateComplete, transfer.StateInProgress, transfer.StatePending)
	require.NoError(t, s.UpdateBlobState(ctx, blob.ID, transfer.StateInProgress))

	// Paused blobs are not restarted, but their stale blocks are reset.
	paused, _ := createDecomposed(t, s, transfer.StateInProgress)
	require.NoError(t, s.UpdateBlobState(ctx, paused.ID, transfer.StatePaused))

	stats, err := c.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.BlobsScanned)
	assert.Equal(t, 2, stats.BlocksReset)
	assert.Equal(t, 1, stats.BlobsRestarted)
	assert.Zero(t, stats.BlobsFailed)

	snap, err := c.Wait(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateComplete, snap.State())
	assert.Equal(t, []int{1, 2}, sorted(exec.takeCalls()))

	assert.Equal(t, []transfer.State{transfer.StatePaused}, blockStates(t, s, paused.ID))
}

func TestRecover_NothingToDo(t *testing.T) {
	c := newTestController(t, newStore(t), &fakeExecutor{})
	stats, err := c.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, RecoveryStats{}, *stats)
}

func TestClose_LeavesTransfersRecoverable(t *testing.T) {
	ctx := t.Context()
	s := newStore(t)

	first := &fakeExecutor{}
	started := make(chan int, 8)
	first.setFn(blockUntilInterrupted(started))
	c1 := newTestController(t, s, first)

	blob := createBlob(t, s, 300, nil)
	require.NoError(t, c1.Start(ctx, blob.ID))
	for i := 0; i < 3; i++ {
		<-started
	}
	require.NoError(t, c1.Close(5*time.Second))

	got, err := s.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInProgress, got.RawState)
	assert.Equal(t, []transfer.State{transfer.StatePaused, transfer.StatePaused, transfer.StatePaused},
		blockStates(t, s, blob.ID))

	second := &fakeExecutor{}
	c2 := newTestController(t, s, second)
	stats, err := c2.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BlobsRestarted)

	snap, err := c2.Wait(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateComplete, snap.State())
	assert.Equal(t, snap.Blob.SessionID, "session-"+blob.ID[:8], "the remote session is reused")
}
