package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"tiny", 1, DefaultSmallSize},
		{"small boundary", DefaultSmallSize, DefaultSmallSize},
		{"medium", DefaultSmallSize + 1, DefaultMediumSize},
		{"large", 5 << 20, DefaultLargeSize},
		{"large boundary", DefaultLargeSize, DefaultLargeSize},
		{"oversized", DefaultLargeSize + 1, DefaultLargeSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)
			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestPutReturnsFullCapacity(t *testing.T) {
	p := NewPool(&Config{SmallSize: 16, MediumSize: 32, LargeSize: 64})

	buf := p.Get(10)
	require.Len(t, buf, 10)
	buf[0] = 'x'
	p.Put(buf)

	again := p.Get(16)
	assert.Len(t, again, 16)
	assert.Equal(t, 16, cap(again))
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	p := NewPool(nil)
	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 100))
		p.Put(make([]byte, DefaultLargeSize*2))
	})
}

func TestCustomConfigDefaults(t *testing.T) {
	p := NewPool(&Config{MediumSize: 128 << 10})
	assert.Equal(t, DefaultSmallSize, cap(p.Get(10)))
	assert.Equal(t, 128<<10, cap(p.Get(100<<10)))
	assert.Equal(t, DefaultLargeSize, cap(p.Get(1<<20)))
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get((n*j)%(2*DefaultMediumSize) + 1)
				buf[len(buf)-1] = byte(j)
				Put(buf)
			}
		}(i)
	}
	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := Get(DefaultMediumSize)
		Put(buf)
	}
}
