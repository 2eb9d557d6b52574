package utils

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// BufferPool hands out chunk buffers for streaming transfers.
// bytebufferpool manages size classes automatically, which keeps the pool
// from fragmenting when transfers use different chunk sizes.
type BufferPool struct {
	pool *bytebufferpool.Pool
}

var (
	globalPool     *BufferPool
	globalPoolOnce sync.Once
)

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: &bytebufferpool.Pool{},
	}
}

// Get retrieves a buffer from the pool
func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	return bp.pool.Get()
}

// GetSized retrieves a buffer whose backing slice holds at least n bytes,
// with its length set to exactly n.
func (bp *BufferPool) GetSized(n int) *bytebufferpool.ByteBuffer {
	buf := bp.pool.Get()
	if cap(buf.B) < n {
		buf.B = make([]byte, n)
	} else {
		buf.B = buf.B[:n]
	}
	return buf
}

// Put returns a buffer to the pool
func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	bp.pool.Put(buf)
}

// Global returns the global buffer pool instance
func Global() *BufferPool {
	globalPoolOnce.Do(func() {
		globalPool = NewBufferPool()
	})
	return globalPool
}

// GetSized is a convenience function that uses the global pool
func GetSized(n int) *bytebufferpool.ByteBuffer {
	return Global().GetSized(n)
}

// Put is a convenience function that uses the global pool
func Put(buf *bytebufferpool.ByteBuffer) {
	Global().Put(buf)
}
