package executor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/data/a.bin", LocalPath("file:///data/a.bin"))
	assert.Equal(t, "rel/a.bin", LocalPath("rel/a.bin"))
}

func TestPrepareFile(t *testing.T) {
	fsys := afero.NewMemMapFs()

	require.NoError(t, PrepareFile(fsys, "/out/nested/file.bin", 1000))
	info, err := fsys.Stat("/out/nested/file.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), info.Size())

	// Existing content survives a second prepare.
	require.NoError(t, afero.WriteFile(fsys, "/out/keep.bin", []byte("hello"), 0o644))
	require.NoError(t, PrepareFile(fsys, "/out/keep.bin", 3))
	data, err := afero.ReadFile(fsys, "/out/keep.bin")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

type bufferAt struct{ buf []byte }

func (b *bufferAt) WriteAt(p []byte, off int64) (int, error) {
	return copy(b.buf[off:], p), nil
}

func TestCopyRange(t *testing.T) {
	src := bytes.Repeat([]byte("abcdefghij"), 300)

	t.Run("exact length", func(t *testing.T) {
		dst := &bufferAt{buf: make([]byte, 4000)}
		require.NoError(t, CopyRange(t.Context(), dst, 500, bytes.NewReader(src), int64(len(src))))
		assert.Equal(t, src, dst.buf[500:500+len(src)])
	})

	t.Run("short source", func(t *testing.T) {
		dst := &bufferAt{buf: make([]byte, 100)}
		err := CopyRange(t.Context(), dst, 0, strings.NewReader("short"), 10)
		assert.ErrorIs(t, err, ErrShortTransfer)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		dst := &bufferAt{buf: make([]byte, 100)}
		err := CopyRange(ctx, dst, 0, io.LimitReader(bytes.NewReader(src), 10), 10)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReadRange(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/in.bin", []byte("0123456789"), 0o644))

	data, err := ReadRange(fsys, "/in.bin", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	_, err = ReadRange(fsys, "/in.bin", 8, 12)
	assert.ErrorIs(t, err, ErrShortTransfer)

	_, err = ReadRange(fsys, "/missing.bin", 0, 1)
	assert.Error(t, err)
}
