// Package bufpool provides tiered byte buffers for block I/O.
//
// Block transfers move the same few sizes of data over and over: copy
// windows while streaming a download into place, and whole blocks while
// uploading a multipart part. Reusing those buffers keeps a busy worker
// pool from allocating a chunk-sized slice per block.
//
// Three size classes are pooled:
//   - Small (64KiB): copy windows for short blocks
//   - Medium (1MiB): the default copy window
//   - Large (16MiB): whole multipart parts up to the default chunk size
//
// Larger requests are allocated directly and never pooled.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sync"
)

// Default size classes.
const (
	DefaultSmallSize  = 64 << 10
	DefaultMediumSize = 1 << 20
	DefaultLargeSize  = 16 << 20
)

// Pool hands out byte slices from per-class sync.Pools.
type Pool struct {
	classes []class
}

type class struct {
	size int
	pool *sync.Pool
}

// Config overrides the size classes of a Pool. Zero fields use the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default size classes.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a pool. A nil config uses DefaultConfig.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.SmallSize > 0 {
			c.SmallSize = cfg.SmallSize
		}
		if cfg.MediumSize > 0 {
			c.MediumSize = cfg.MediumSize
		}
		if cfg.LargeSize > 0 {
			c.LargeSize = cfg.LargeSize
		}
	}

	p := &Pool{}
	for _, size := range []int{c.SmallSize, c.MediumSize, c.LargeSize} {
		size := size
		p.classes = append(p.classes, class{
			size: size,
			pool: &sync.Pool{New: func() any {
				buf := make([]byte, size)
				return &buf
			}},
		})
	}
	return p
}

// Get returns a slice of length size. Its capacity is the size class that
// served it, or exactly size when no class is large enough.
func (p *Pool) Get(size int) []byte {
	for _, c := range p.classes {
		if size <= c.size {
			buf := *c.pool.Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a slice obtained from Get. Slices whose capacity matches no
// class are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for _, c := range p.classes {
		if cap(buf) == c.size {
			full := buf[:c.size]
			c.pool.Put(&full)
			return
		}
	}
}

var global = NewPool(nil)

// Get returns a buffer of length size from the package pool.
func Get(size int) []byte {
	return global.Get(size)
}

// Put releases a buffer to the package pool.
func Put(buf []byte) {
	global.Put(buf)
}
