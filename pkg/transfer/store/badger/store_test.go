package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
	"github.com/marmos91/blobxfer/pkg/transfer/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		s, err := New(Config{Dir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestInMemoryConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		s, err := New(Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsBlockStates(t *testing.T) {
	ctx := t.Context()
	dir := t.TempDir()

	s, err := New(Config{Dir: dir})
	require.NoError(t, err)

	blob, err := store.CreateTransfer(ctx, s, transfer.BlobOptions{
		Source: "s3://bucket/key", Destination: "/tmp/out", Type: transfer.TypeDownload, EndRange: 2999,
	})
	require.NoError(t, err)
	blocks, err := transfer.Decompose(blob, 1000)
	require.NoError(t, err)
	require.NoError(t, s.CreateBlocks(ctx, blob.ID, blocks))
	changed, err := s.TransitionBlockState(ctx, blocks[2].ID, transfer.StateComplete, transfer.StatePending)
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, s.Close())

	s, err = New(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, transfer.StatePending, got[0].State)
	assert.Equal(t, transfer.StateComplete, got[2].State)
}

func TestBlockOrderBeyondNineBlocks(t *testing.T) {
	ctx := t.Context()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	blob, err := store.CreateTransfer(ctx, s, transfer.BlobOptions{
		Source: "a", Destination: "b", Type: transfer.TypeUpload, EndRange: 119,
	})
	require.NoError(t, err)
	blocks, err := transfer.Decompose(blob, 10)
	require.NoError(t, err)
	require.NoError(t, s.CreateBlocks(ctx, blob.ID, blocks))

	got, err := s.ListBlocks(ctx, blob.ID)
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, b := range got {
		assert.Equal(t, i, b.Index)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetBlob(t.Context(), "missing")
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
