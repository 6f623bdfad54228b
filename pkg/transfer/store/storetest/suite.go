// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// StoreFactory creates a fresh Store instance for each test. The factory
// receives *testing.T so it can use t.TempDir() and t.Cleanup().
type StoreFactory func(t *testing.T) store.Store

// RunConformanceSuite runs every conformance test against stores produced by
// factory. Each test gets a fresh store.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("BlobRoundTrip", func(t *testing.T) { testBlobRoundTrip(t, factory(t)) })
	t.Run("BlobErrors", func(t *testing.T) { testBlobErrors(t, factory(t)) })
	t.Run("BlobUpdates", func(t *testing.T) { testBlobUpdates(t, factory(t)) })
	t.Run("BlockErrors", func(t *testing.T) { testBlockErrors(t, factory(t)) })
	t.Run("DoubleDecompose", func(t *testing.T) { testDoubleDecompose(t, factory(t)) })
	t.Run("ConcurrentDecompose", func(t *testing.T) { testConcurrentDecompose(t, factory(t)) })
	t.Run("InvalidPartition", func(t *testing.T) { testInvalidPartition(t, factory(t)) })
	t.Run("BlockTransition", func(t *testing.T) { testBlockTransition(t, factory(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, factory(t)) })
	t.Run("DeleteBlobCascades", func(t *testing.T) { testDeleteBlobCascades(t, factory(t)) })
	t.Run("Batches", func(t *testing.T) { testBatches(t, factory(t)) })
	t.Run("CreateTransferValidation", func(t *testing.T) { testCreateTransferValidation(t, factory(t)) })
}

// createBlob persists a blob spanning size bytes split into chunk-sized
// blocks. The first blocks take the given states; the rest stay pending.
func createBlob(t *testing.T, s store.Store, size, chunk int64, parent *transfer.MultiBlobTransfer, states ...transfer.State) (*transfer.BlobTransfer, []*transfer.BlockTransfer) {
	t.Helper()
	blob := createUndecomposed(t, s, size, parent)

	blocks, err := transfer.Decompose(blob, chunk)
	require.NoError(t, err)
	for i, st := range states {
		blocks[i].State = st
	}
	require.NoError(t, s.CreateBlocks(t.Context(), blob.ID, blocks))
	return blob, blocks
}

func createUndecomposed(t *testing.T, s store.Store, size int64, parent *transfer.MultiBlobTransfer) *transfer.BlobTransfer {
	t.Helper()
	blob, err := store.CreateTransfer(t.Context(), s, transfer.BlobOptions{
		Source:      "/var/data/archive.tar",
		Destination: "s3://backups/archive.tar",
		Type:        transfer.TypeUpload,
		StartRange:  0,
		EndRange:    size - 1,
		Parent:      parent,
	})
	require.NoError(t, err)
	return blob
}

func testBlobRoundTrip(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob, blocks := createBlob(t, s, 300, 100, nil, transfer.StateComplete, transfer.StateFailed)

	got, err := s.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.ID, got.ID)
	assert.Equal(t, blob.Source, got.Source)
	assert.Equal(t, blob.Destination, got.Destination)
	assert.Equal(t, transfer.TypeUpload, got.Type)
	assert.Equal(t, transfer.StatePending, got.RawState)
	assert.Equal(t, int64(0), got.StartRange)
	assert.Equal(t, int64(299), got.EndRange)
	assert.Empty(t, got.ParentID)
	assert.WithinDuration(t, blob.CreatedAt, got.CreatedAt, time.Second)

	gotBlocks, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	require.Len(t, gotBlocks, 3)

	wantStates := []transfer.State{transfer.StateComplete, transfer.StateFailed, transfer.StatePending}
	for i, b := range gotBlocks {
		assert.Equal(t, blocks[i].ID, b.ID)
		assert.Equal(t, blob.ID, b.BlobID)
		assert.Equal(t, i, b.Index)
		assert.Equal(t, blocks[i].StartRange, b.StartRange)
		assert.Equal(t, blocks[i].EndRange, b.EndRange)
		assert.Equal(t, wantStates[i], b.State)
	}
	assert.NoError(t, transfer.ValidateBlocks(got, gotBlocks))

	one, err := s.GetBlock(ctx, blocks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateFailed, one.State)

	// Returned records are copies.
	got.Source = "mutated"
	again, err := s.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.Source, again.Source)

	all, err := s.ListBlobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, blob.ID, all[0].ID)
}

func testBlobErrors(t *testing.T, s store.Store) {
	ctx := t.Context()

	_, err := s.GetBlob(ctx, transfer.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)

	blob, _ := createBlob(t, s, 10, 10, nil)
	assert.ErrorIs(t, s.CreateBlob(ctx, blob), store.ErrDuplicate)

	assert.ErrorIs(t, s.UpdateBlobState(ctx, transfer.NewID(), transfer.StatePaused), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteBlob(ctx, transfer.NewID()), store.ErrNotFound)

	_, err = s.ListBlocks(ctx, transfer.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testBlobUpdates(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob, _ := createBlob(t, s, 10, 10, nil)

	require.NoError(t, s.UpdateBlobState(ctx, blob.ID, transfer.StateInProgress))
	require.NoError(t, s.UpdateBlobSession(ctx, blob.ID, "upload-session-1"))

	got, err := s.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInProgress, got.RawState)
	assert.Equal(t, "upload-session-1", got.SessionID)
}

func testBlockErrors(t *testing.T, s store.Store) {
	ctx := t.Context()

	_, err := s.GetBlock(ctx, transfer.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)

	orphan := &transfer.BlobTransfer{ID: transfer.NewID(), StartRange: 0, EndRange: 9}
	blocks, err := transfer.Decompose(orphan, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateBlocks(ctx, orphan.ID, blocks), store.ErrNotFound, "no orphan blocks")

	blob, existing := createBlob(t, s, 10, 10, nil)
	fresh := &transfer.BlockTransfer{ID: transfer.NewID(), BlobID: blob.ID, Index: 1, StartRange: 10, EndRange: 19}
	err = s.CreateBlocks(ctx, blob.ID, []*transfer.BlockTransfer{fresh, existing[0]})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.GetBlock(ctx, fresh.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "failed batch insert must not leave partial blocks")

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func testDoubleDecompose(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob, first := createBlob(t, s, 500, 100, nil)

	second, err := transfer.Decompose(blob, 100)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, second), store.ErrDuplicate)

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	require.Len(t, got, len(first))
	for i, b := range got {
		assert.Equal(t, first[i].ID, b.ID)
	}
	assert.NoError(t, transfer.ValidateBlocks(blob, got))
}

func testConcurrentDecompose(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob := createUndecomposed(t, s, 1000, nil)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			blocks, err := transfer.Decompose(blob, 100)
			if err != nil {
				t.Errorf("Decompose: %v", err)
				return
			}
			err = s.CreateBlocks(ctx, blob.ID, blocks)
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !errors.Is(err, store.ErrDuplicate):
				t.Errorf("CreateBlocks: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one decomposition is persisted")

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.NoError(t, transfer.ValidateBlocks(blob, got))
}

func testInvalidPartition(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob := createUndecomposed(t, s, 300, nil)

	mk := func(ranges ...[2]int64) []*transfer.BlockTransfer {
		out := make([]*transfer.BlockTransfer, len(ranges))
		for i, r := range ranges {
			out[i] = &transfer.BlockTransfer{
				ID: transfer.NewID(), BlobID: blob.ID, Index: i,
				StartRange: r[0], EndRange: r[1], State: transfer.StatePending,
			}
		}
		return out
	}

	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, nil), transfer.ErrValidation, "no blocks")
	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, mk([2]int64{0, 99}, [2]int64{150, 299})), transfer.ErrValidation, "gap")
	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, mk([2]int64{0, 149}, [2]int64{100, 299})), transfer.ErrValidation, "overlap")
	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, mk([2]int64{0, 399})), transfer.ErrValidation, "past the end")

	foreign := mk([2]int64{0, 299})
	foreign[0].BlobID = transfer.NewID()
	assert.ErrorIs(t, s.CreateBlocks(ctx, blob.ID, foreign), transfer.ErrValidation, "foreign block")

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	assert.Empty(t, got, "rejected partitions leave no blocks")

	require.NoError(t, s.CreateBlocks(ctx, blob.ID, mk([2]int64{0, 99}, [2]int64{100, 299})))
}

func testBlockTransition(t *testing.T, s store.Store) {
	ctx := t.Context()
	_, blocks := createBlob(t, s, 10, 10, nil)
	id := blocks[0].ID

	changed, err := s.TransitionBlockState(ctx, id, transfer.StateInProgress, transfer.StatePending, transfer.StateFailed)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.TransitionBlockState(ctx, id, transfer.StateInProgress, transfer.StatePending, transfer.StateFailed)
	require.NoError(t, err)
	assert.False(t, changed, "current state not in from set")

	changed, err = s.TransitionBlockState(ctx, id, transfer.StateComplete, transfer.StateInProgress)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.GetBlock(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateComplete, got.State)

	_, err = s.TransitionBlockState(ctx, transfer.NewID(), transfer.StateComplete, transfer.StatePending)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentTransition(t *testing.T, s store.Store) {
	ctx := t.Context()
	_, blocks := createBlob(t, s, 10, 10, nil)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := s.TransitionBlockState(ctx, blocks[0].ID, transfer.StateInProgress, transfer.StatePending)
			if err != nil {
				t.Errorf("TransitionBlockState: %v", err)
				return
			}
			if changed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one writer wins the transition")
}

func testDeleteBlobCascades(t *testing.T, s store.Store) {
	ctx := t.Context()
	blob, blocks := createBlob(t, s, 300, 100, nil)
	keep, keepBlocks := createBlob(t, s, 10, 10, nil)

	require.NoError(t, s.DeleteBlob(ctx, blob.ID))

	_, err := s.GetBlob(ctx, blob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, b := range blocks {
		_, err := s.GetBlock(ctx, b.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}

	_, err = s.GetBlob(ctx, keep.ID)
	assert.NoError(t, err)
	_, err = s.GetBlock(ctx, keepBlocks[0].ID)
	assert.NoError(t, err)
}

func testBatches(t *testing.T, s store.Store) {
	ctx := t.Context()

	batch := transfer.NewMultiBlobTransfer("photos/2024")
	require.NoError(t, s.CreateBatch(ctx, batch))
	assert.ErrorIs(t, s.CreateBatch(ctx, batch), store.ErrDuplicate)

	first, _ := createBlob(t, s, 100, 50, batch)
	second, secondBlocks := createBlob(t, s, 100, 50, batch)
	loose, _ := createBlob(t, s, 100, 50, nil)

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "photos/2024", got.Name)
	assert.Equal(t, transfer.StatePending, got.RawState)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, got.BlobIDs)

	children, err := s.ListBlobsByParent(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	require.NoError(t, s.UpdateBatchState(ctx, batch.ID, transfer.StateInProgress))
	got, err = s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateInProgress, got.RawState)

	list, err := s.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].BlobIDs, 2)

	orphan := transfer.NewMultiBlobTransfer("missing")
	_, err = store.CreateTransfer(ctx, s, transfer.BlobOptions{
		Source: "a", Destination: "b", Type: transfer.TypeDownload, EndRange: 1, Parent: orphan,
	})
	assert.ErrorIs(t, err, store.ErrNotFound, "parent batch must exist")

	require.NoError(t, s.DeleteBatch(ctx, batch.ID))
	_, err = s.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBlob(ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBlock(ctx, secondBlocks[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetBlob(ctx, loose.ID)
	assert.NoError(t, err)
}

func testCreateTransferValidation(t *testing.T, s store.Store) {
	ctx := t.Context()

	blob, err := store.CreateTransfer(ctx, s, transfer.BlobOptions{
		Source:      "/tmp/in",
		Destination: "s3://bucket/out",
		Type:        transfer.TypeUpload,
		StartRange:  500,
		EndRange:    100,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrValidation)
	assert.Nil(t, blob)

	all, err := s.ListBlobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no record is persisted for an invalid transfer")
}
