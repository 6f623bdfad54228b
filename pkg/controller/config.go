package controller

import (
	"time"

	"github.com/marmos91/blobxfer/internal/bytesize"
)

// Default configuration values.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 1000
	DefaultChunkSize    = int64(8 * bytesize.MiB)
	DefaultBlockTimeout = 5 * time.Minute
)

// Config configures a Controller.
type Config struct {
	// Workers is the number of blocks transferred concurrently across all
	// blobs.
	Workers int

	// QueueSize bounds the number of dispatched blocks waiting for a worker.
	QueueSize int

	// ChunkSize is the block size used when a blob is first decomposed.
	// Existing blocks are never re-split.
	ChunkSize int64

	// BlockTimeout bounds a single executor call. An expired block fails.
	BlockTimeout time.Duration
}

// ApplyDefaults fills zero fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
}
