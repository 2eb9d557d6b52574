package sinks

import "bytes"

// Buffer accumulates chunks in memory. Intended for small payloads and
// tests; it grows without bound and never reports a full backlog.
type Buffer struct {
	buf       bytes.Buffer
	chunks    [][]byte
	drained   chan struct{}
	finalized bool
}

// NewBuffer returns an empty in-memory sink.
func NewBuffer() *Buffer {
	return &Buffer{drained: make(chan struct{})}
}

// Submit copies the chunk; the pump may reuse the slice immediately.
func (s *Buffer) Submit(chunk []byte) (bool, error) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.chunks = append(s.chunks, cp)
	s.buf.Write(cp)
	return true, nil
}

// Drained never signals: this sink is never at capacity.
func (s *Buffer) Drained() <-chan struct{} {
	return s.drained
}

// Finalize marks the buffer complete.
func (s *Buffer) Finalize() error {
	s.finalized = true
	return nil
}

// Close is a no-op for in-memory buffers.
func (s *Buffer) Close() error {
	return nil
}

// Bytes returns everything submitted so far, in delivery order.
func (s *Buffer) Bytes() []byte {
	return s.buf.Bytes()
}

// Chunks returns the individual chunks in delivery order.
func (s *Buffer) Chunks() [][]byte {
	return s.chunks
}

// Finalized reports whether the producer signalled end of data.
func (s *Buffer) Finalized() bool {
	return s.finalized
}
