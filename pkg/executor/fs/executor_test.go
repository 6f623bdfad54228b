package fs

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobxfer/pkg/executor"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

func setup(t *testing.T, size int) (afero.Fs, []byte, *transfer.BlobTransfer) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	data := make([]byte, size)
	rand.New(rand.NewSource(1)).Read(data)
	require.NoError(t, afero.WriteFile(fsys, "/src/object.bin", data, 0o644))

	blob, err := transfer.NewBlobTransfer(transfer.BlobOptions{
		Source:      "file:///src/object.bin",
		Destination: "/dst/copy/object.bin",
		Type:        transfer.TypeUpload,
		StartRange:  0,
		EndRange:    int64(size) - 1,
	})
	require.NoError(t, err)
	return fsys, data, blob
}

func TestExecutor_CopiesBlocksOutOfOrder(t *testing.T) {
	ctx := t.Context()
	fsys, data, blob := setup(t, 1000)
	e := New(fsys)

	session, err := e.Prepare(ctx, blob)
	require.NoError(t, err)
	assert.Empty(t, session)

	blocks, err := transfer.Decompose(blob, 300)
	require.NoError(t, err)
	for _, i := range []int{3, 1, 0, 2} {
		require.NoError(t, e.Transfer(ctx, blob, blocks[i]))
	}
	require.NoError(t, e.Finalize(ctx, blob, blocks))

	got, err := afero.ReadFile(fsys, "/dst/copy/object.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestExecutor_PartialRange(t *testing.T) {
	ctx := t.Context()
	fsys, data, blob := setup(t, 500)
	blob.StartRange, blob.EndRange = 100, 199
	e := New(fsys)

	_, err := e.Prepare(ctx, blob)
	require.NoError(t, err)
	blocks, err := transfer.Decompose(blob, 64)
	require.NoError(t, err)
	for _, b := range blocks {
		require.NoError(t, e.Transfer(ctx, blob, b))
	}

	got, err := afero.ReadFile(fsys, "/dst/copy/object.bin")
	require.NoError(t, err)
	require.Len(t, got, 200)
	assert.Equal(t, data[100:200], got[100:200])
	assert.Equal(t, make([]byte, 100), got[:100], "bytes outside the range are untouched")
}

func TestExecutor_SourceTooShort(t *testing.T) {
	fsys, _, blob := setup(t, 100)
	blob.EndRange = 199
	_, err := New(fsys).Prepare(t.Context(), blob)
	assert.ErrorContains(t, err, "transfer needs 200")
}

func TestExecutor_SourceShrunk(t *testing.T) {
	ctx := t.Context()
	fsys, _, blob := setup(t, 300)
	e := New(fsys)
	_, err := e.Prepare(ctx, blob)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fsys, "/src/object.bin", make([]byte, 250), 0o644))
	blocks, err := transfer.Decompose(blob, 100)
	require.NoError(t, err)

	assert.NoError(t, e.Transfer(ctx, blob, blocks[1]))
	assert.ErrorIs(t, e.Transfer(ctx, blob, blocks[2]), executor.ErrShortTransfer)
}

func TestExecutor_MissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	blob := &transfer.BlobTransfer{Source: "/nope", Destination: "/out", EndRange: 9}
	_, err := New(fsys).Prepare(t.Context(), blob)
	assert.Error(t, err)

	err = New(fsys).Transfer(t.Context(), blob, &transfer.BlockTransfer{EndRange: 9})
	assert.ErrorContains(t, err, "open source")
}

func TestExecutor_Canceled(t *testing.T) {
	fsys, _, blob := setup(t, 100)
	e := New(fsys)
	_, err := e.Prepare(t.Context(), blob)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	blocks, err := transfer.Decompose(blob, 100)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Transfer(ctx, blob, blocks[0]), context.Canceled)
}
