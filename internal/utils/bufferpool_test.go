package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSized_ExactLength(t *testing.T) {
	for _, n := range []int{1, 512, 64 * 1024, 1 << 20} {
		buf := GetSized(n)
		assert.Len(t, buf.B, n)
		Put(buf)
	}
}

func TestGetSized_ReusedBufferIsResized(t *testing.T) {
	pool := NewBufferPool()

	big := pool.GetSized(4096)
	pool.Put(big)

	small := pool.GetSized(16)
	assert.Len(t, small.B, 16)
	pool.Put(small)
}

func TestGlobal_SameInstance(t *testing.T) {
	assert.Same(t, Global(), Global())
}
