package contracts

import "io"

// Source produces the bytes a pump moves. Read follows the io.Reader
// contract: it fills at most one chunk per call and returns io.EOF when the
// source is exhausted. A source is owned exclusively by the pump draining it.
type Source interface {
	io.Reader
	io.Closer
}

// Sink consumes chunks in the order they were read.
//
// Submit accepts the chunk and returns a synchronous capacity signal: true
// means another chunk may be submitted immediately, false means the sink's
// backlog is full and the caller must wait for Drained before submitting the
// next chunk. The chunk is not retained after Submit returns.
//
// Finalize signals that no more writes will occur; Close releases the sink's
// resources whether or not the transfer completed.
type Sink interface {
	Submit(chunk []byte) (bool, error)
	Drained() <-chan struct{}
	Finalize() error
	io.Closer
}

// SizedSource is an optional Source extension reporting total length up
// front, used for Content-Length headers and progress totals.
type SizedSource interface {
	Source
	Size() int64
}
