// Package executor holds the pieces shared by the block executors: local
// path handling through afero and cancellable ranged copies over pooled
// buffers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/marmos91/blobxfer/pkg/bufpool"
)

// ErrShortTransfer is returned when a range could not be moved in full.
var ErrShortTransfer = errors.New("short transfer")

// copyBufferSize bounds how much is copied between two context checks.
const copyBufferSize = 1 << 20

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// LocalPath strips an optional file:// scheme from a transfer endpoint.
func LocalPath(endpoint string) string {
	return strings.TrimPrefix(endpoint, "file://")
}

// PrepareFile creates path, and its parent directories, with at least size
// bytes so that blocks can be written at their offsets in any order. An
// existing file keeps its content.
func PrepareFile(fsys afero.Fs, path string, size int64) error {
	if err := fsys.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("allocate %d bytes: %w", size, err)
		}
	}
	return nil
}

// CopyRange copies exactly n bytes from src to dst at offset off. It checks
// ctx between chunks and fails with ErrShortTransfer when src ends early.
func CopyRange(ctx context.Context, dst io.WriterAt, off int64, src io.Reader, n int64) error {
	buf := bufpool.Get(int(min(n, copyBufferSize)))
	defer bufpool.Put(buf)
	var done int64
	for done < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := buf[:min(n-done, int64(len(buf)))]
		read, err := io.ReadFull(src, chunk)
		if read > 0 {
			if _, werr := dst.WriteAt(chunk[:read], off+done); werr != nil {
				return werr
			}
			done += int64(read)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortTransfer, done, n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadRange reads the inclusive range [start,end] of a local file into a
// pooled buffer. Callers release it with bufpool.Put.
func ReadRange(fsys afero.Fs, path string, start, end int64) ([]byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := bufpool.Get(int(end - start + 1))
	n, err := f.ReadAt(buf, start)
	if n < len(buf) {
		bufpool.Put(buf)
		if err == nil || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes from %s", ErrShortTransfer, n, len(buf), path)
		}
		return nil, err
	}
	return buf, nil
}
