package sources

import (
	"bytes"
	"io"
)

// Reader adapts any io.Reader into a pump source. Close is forwarded when
// the underlying reader is an io.Closer and is a no-op otherwise.
type Reader struct {
	r    io.Reader
	size int64
}

// NewReader wraps r. size below zero means unknown.
func NewReader(r io.Reader, size int64) *Reader {
	return &Reader{r: r, size: size}
}

// NewBytes wraps an in-memory payload, as carried by inline transfer requests.
func NewBytes(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data), size: int64(len(data))}
}

func (s *Reader) Read(buf []byte) (int, error) {
	return s.r.Read(buf)
}

// Size returns the total length, or a negative value when unknown.
func (s *Reader) Size() int64 {
	return s.size
}

func (s *Reader) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
