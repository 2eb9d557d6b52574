package sinks

import (
	"bufio"
	"errors"

	"github.com/boubkhaled/streampump/internal/pump/contracts"

	"github.com/valyala/fasthttp"
)

// ErrClientDisconnected is returned when the HTTP peer goes away mid-stream.
var ErrClientDisconnected = errors.New("client disconnected")

// ConnectionState tracks whether the HTTP peer is still reachable.
type ConnectionState interface {
	IsConnected() bool
	Done() <-chan struct{}
}

// HTTP streams chunks into an HTTP response body. Submitted bytes accumulate
// in the buffered writer; once the backlog crosses the high-water mark the
// sink reports it is at capacity, flushes the backlog to the wire, and then
// signals drained.
type HTTP struct {
	writer     *bufio.Writer
	connState  ConnectionState
	highWater  int
	pending    int
	totalBytes int64
	drained    chan struct{}
}

// NewHTTP wraps the response body writer. highWater values of zero or below
// fall back to the writer's own buffer size.
func NewHTTP(writer *bufio.Writer, connState ConnectionState, highWater int) *HTTP {
	if highWater <= 0 {
		highWater = writer.Size()
	}
	return &HTTP{
		writer:    writer,
		connState: connState,
		highWater: highWater,
		drained:   make(chan struct{}, 1),
	}
}

// Submit writes the chunk into the response backlog. When the backlog
// reaches the high-water mark the capacity signal is false: the sink flushes
// to the wire and emits one drained signal once the peer has taken the bytes.
func (s *HTTP) Submit(chunk []byte) (bool, error) {
	if !s.connState.IsConnected() {
		return false, ErrClientDisconnected
	}

	n, err := s.writer.Write(chunk)
	if n > 0 {
		// Account for actual bytes written, even on partial write or error
		s.totalBytes += int64(n)
		s.pending += n
	}
	if err != nil {
		if contracts.IsConnectionClosed(err) {
			return false, ErrClientDisconnected
		}
		return false, err
	}

	if s.pending < s.highWater {
		return true, nil
	}

	if err := s.flush(); err != nil {
		return false, err
	}
	s.signalDrained()
	return false, nil
}

// Drained yields one signal per capacity-full Submit, after the backlog has
// been flushed to the peer.
func (s *HTTP) Drained() <-chan struct{} {
	return s.drained
}

// Finalize flushes any remaining backlog.
func (s *HTTP) Finalize() error {
	if !s.connState.IsConnected() {
		return ErrClientDisconnected
	}
	return s.flush()
}

// Close flushes whatever the peer can still take. The connection itself is
// owned by the HTTP server.
func (s *HTTP) Close() error {
	if !s.connState.IsConnected() {
		return nil
	}
	return s.flush()
}

// TotalBytes returns total bytes written into the response.
func (s *HTTP) TotalBytes() int64 {
	return s.totalBytes
}

func (s *HTTP) flush() error {
	if err := s.writer.Flush(); err != nil {
		if contracts.IsConnectionClosed(err) {
			return ErrClientDisconnected
		}
		return err
	}
	s.pending = 0
	return nil
}

func (s *HTTP) signalDrained() {
	select {
	case s.drained <- struct{}{}:
	default:
	}
}

// FastHTTPConnectionState adapts a fasthttp request context to
// ConnectionState.
type FastHTTPConnectionState struct {
	ctx *fasthttp.RequestCtx
}

// NewFastHTTPConnectionState creates connection state from a fasthttp context.
func NewFastHTTPConnectionState(ctx *fasthttp.RequestCtx) *FastHTTPConnectionState {
	return &FastHTTPConnectionState{ctx: ctx}
}

// IsConnected checks if the client is still connected.
func (c *FastHTTPConnectionState) IsConnected() bool {
	if c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Done returns a channel that closes when the client disconnects.
func (c *FastHTTPConnectionState) Done() <-chan struct{} {
	if c.ctx == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.ctx.Done()
}
