package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/pkg/executor"
	s3exec "github.com/marmos91/blobxfer/pkg/executor/s3"
	"github.com/marmos91/blobxfer/pkg/transfer"
	"github.com/marmos91/blobxfer/pkg/transfer/store"
)

// errEmptySource is returned for zero-byte sources: a transfer always spans
// at least one byte.
var errEmptySource = errors.New("source is empty, nothing to transfer")

// byteRange is the optional --start/--end selection of a single-blob
// transfer. A negative end means the last byte of the source.
type byteRange struct {
	start int64
	end   int64
}

func (r *byteRange) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&r.start, "start", 0, "First byte to transfer (inclusive)")
	cmd.Flags().Int64Var(&r.end, "end", -1, "Last byte to transfer (inclusive, default: end of source)")
}

func (r byteRange) partial() bool {
	return r.start != 0 || r.end >= 0
}

// resolve clamps the range to a source of size bytes.
func (r byteRange) resolve(size int64) (int64, int64, error) {
	end := r.end
	if end < 0 {
		end = size - 1
	}
	if end >= size {
		return 0, 0, fmt.Errorf("--end %d is past the end of the %d byte source", end, size)
	}
	return r.start, end, nil
}

// createLocal registers the transfer of a local file or directory to dst,
// which is an s3:// url or a local path. A directory becomes a batch with
// one blob per non-empty regular file.
func (a *app) createLocal(ctx context.Context, src, dst string, r byteRange) (target, error) {
	src = executor.LocalPath(src)
	info, err := a.fs.Stat(src)
	if err != nil {
		return target{}, fmt.Errorf("stat source: %w", err)
	}

	if !info.IsDir() {
		blob, err := a.createBlob(ctx, src, dst, transfer.TypeUpload, info.Size(), r, nil)
		if err != nil {
			return target{}, err
		}
		return target{ID: blob.ID}, nil
	}

	if r.partial() {
		return target{}, errors.New("--start and --end apply to single files only")
	}
	return a.createDir(ctx, src, dst)
}

func (a *app) createDir(ctx context.Context, dir, dst string) (target, error) {
	type file struct {
		rel  string
		size int64
	}
	var files []file
	err := afero.Walk(a.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() == 0 {
			logger.Warn("Skipping empty file", logger.KeyPath, p)
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, file{rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return target{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	if len(files) == 0 {
		return target{}, fmt.Errorf("%s has no files to transfer", dir)
	}

	batch := transfer.NewMultiBlobTransfer(dir)
	if err := a.store.CreateBatch(ctx, batch); err != nil {
		return target{}, fmt.Errorf("persist batch: %w", err)
	}
	for _, f := range files {
		src := filepath.Join(dir, f.rel)
		if _, err := a.createBlob(ctx, src, joinDestination(dst, f.rel), transfer.TypeUpload, f.size, byteRange{end: -1}, batch); err != nil {
			_ = a.store.DeleteBatch(ctx, batch.ID)
			return target{}, err
		}
	}
	logger.Info("Batch created", logger.KeyBatchID, batch.ID, "blobs", len(files))
	return target{ID: batch.ID, Batch: true}, nil
}

// createDownload registers the download of an s3:// object to a local path.
// A destination that is an existing directory receives the object's base
// name.
func (a *app) createDownload(ctx context.Context, src, dst string, r byteRange) (target, error) {
	_, key, err := s3exec.ParseURL(src)
	if err != nil {
		return target{}, err
	}
	size, err := a.s3.ObjectSize(ctx, src)
	if err != nil {
		return target{}, err
	}

	dst = executor.LocalPath(dst)
	if info, err := a.fs.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, path.Base(key))
	}

	blob, err := a.createBlob(ctx, src, dst, transfer.TypeDownload, size, r, nil)
	if err != nil {
		return target{}, err
	}
	return target{ID: blob.ID}, nil
}

func (a *app) createBlob(ctx context.Context, src, dst string, typ transfer.Type, size int64, r byteRange, parent *transfer.MultiBlobTransfer) (*transfer.BlobTransfer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%s: %w", src, errEmptySource)
	}
	start, end, err := r.resolve(size)
	if err != nil {
		return nil, err
	}
	blob, err := store.CreateTransfer(ctx, a.store, transfer.BlobOptions{
		Source:      src,
		Destination: dst,
		Type:        typ,
		StartRange:  start,
		EndRange:    end,
		Parent:      parent,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Transfer created", logger.BlobID(blob.ID),
		logger.KeySource, src, logger.KeyDestination, dst, logger.KeyBytes, blob.Size())
	return blob, nil
}

// joinDestination appends a relative file path to an s3:// prefix or a
// local directory.
func joinDestination(dst, rel string) string {
	if s3exec.IsURL(dst) {
		return strings.TrimSuffix(dst, "/") + "/" + filepath.ToSlash(rel)
	}
	return filepath.Join(executor.LocalPath(dst), rel)
}
