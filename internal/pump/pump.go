// Package pump moves bytes from a source to a sink in bounded chunks,
// respecting the sink's write capacity. At most one chunk is in flight at any
// time; chunks reach the sink in read order. A pump delivers exactly one
// terminal result, never retries, and never buffers more than one chunk.
package pump

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/boubkhaled/streampump/internal/pump/contracts"
	"github.com/boubkhaled/streampump/internal/utils"
)

// DefaultChunkSize is the high-water mark used when no chunk size is given.
const DefaultChunkSize = 64 * 1024

// Result is the single terminal notification of a pump run.
type Result struct {
	State      State
	BytesMoved int64
	Chunks     int64
	Err        error
}

// CompletionFunc receives the terminal result. It is invoked exactly once.
type CompletionFunc func(Result)

// ProgressFunc observes the running byte and chunk counters after every
// delivered chunk.
type ProgressFunc func(bytesMoved, chunks int64)

// Option configures a pump at construction time.
type Option func(*Pump)

// WithChunkSize overrides the default high-water mark.
func WithChunkSize(n int) Option {
	return func(p *Pump) { p.chunkSize = n }
}

// WithCompletion registers the terminal callback.
func WithCompletion(fn CompletionFunc) Option {
	return func(p *Pump) { p.onDone = fn }
}

// WithProgress registers a per-chunk observer.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pump) { p.onProgress = fn }
}

// Pump transfers an unbounded byte stream from a source to a sink without
// buffering the whole stream. The source and sink are owned exclusively by
// the pump for the duration of the run and are closed when it terminates.
type Pump struct {
	source     contracts.Source
	sink       contracts.Sink
	chunkSize  int
	onDone     CompletionFunc
	onProgress ProgressFunc

	state  atomic.Int32
	once   sync.Once
	done   chan struct{}
	result Result
}

// New validates the configuration and returns an Idle pump. A chunk size of
// zero or below is rejected with a configuration error.
func New(source contracts.Source, sink contracts.Sink, opts ...Option) (*Pump, error) {
	p := &Pump{
		source:    source,
		sink:      sink,
		chunkSize: DefaultChunkSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.chunkSize <= 0 {
		return nil, contracts.NewConfigurationError("chunk size must be a positive integer")
	}
	return p, nil
}

// State returns the current pump state.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Done is closed once the terminal result is available.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the pump terminates and returns its terminal result.
func (p *Pump) Result() Result {
	<-p.done
	return p.result
}

// Start runs the transfer on its own goroutine. Completion is observable
// through Done, Result and the completion callback.
func (p *Pump) Start(ctx context.Context) {
	go p.Run(ctx)
}

// Run executes the transfer to its terminal state and returns the result.
// Cancelling ctx aborts the transfer with a cancellation error; a cancelled
// run never reports Finished.
func (p *Pump) Run(ctx context.Context) Result {
	if !p.state.CompareAndSwap(int32(Idle), int32(Active)) {
		// Already running or terminal; there is only one result.
		return p.Result()
	}

	buf := utils.GetSized(p.chunkSize)
	defer utils.Put(buf)
	chunk := buf.B

	var bytesMoved, chunks int64

	for {
		if err := ctx.Err(); err != nil {
			return p.terminate(Failed, bytesMoved, chunks, contracts.NewCancellationError(err))
		}

		n, readErr := p.source.Read(chunk)
		if n > 0 {
			ok, writeErr := p.sink.Submit(chunk[:n])
			if writeErr != nil {
				return p.terminate(Failed, bytesMoved, chunks, contracts.NewSinkWriteError(writeErr))
			}
			bytesMoved += int64(n)
			chunks++
			if p.onProgress != nil {
				p.onProgress(bytesMoved, chunks)
			}

			if !ok {
				// Sink backlog is full: stop requesting chunks until it drains.
				p.state.Store(int32(Draining))
				select {
				case <-ctx.Done():
					return p.terminate(Failed, bytesMoved, chunks, contracts.NewCancellationError(ctx.Err()))
				case <-p.sink.Drained():
					p.state.Store(int32(Active))
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				if err := p.sink.Finalize(); err != nil {
					return p.terminate(Failed, bytesMoved, chunks, contracts.NewSinkWriteError(err))
				}
				return p.terminate(Finished, bytesMoved, chunks, nil)
			}
			return p.terminate(Failed, bytesMoved, chunks, contracts.NewSourceReadError(readErr))
		}
	}
}

// terminate records the terminal result exactly once, releases the source and
// sink, and notifies the completion callback. Later terminal events are
// discarded; the first one wins.
func (p *Pump) terminate(state State, bytesMoved, chunks int64, terminalErr error) Result {
	p.once.Do(func() {
		_ = p.source.Close()
		if closeErr := p.sink.Close(); closeErr != nil && state == Finished {
			state = Failed
			terminalErr = contracts.NewSinkWriteError(closeErr)
		}

		p.state.Store(int32(state))
		p.result = Result{
			State:      state,
			BytesMoved: bytesMoved,
			Chunks:     chunks,
			Err:        terminalErr,
		}
		close(p.done)

		if p.onDone != nil {
			p.onDone(p.result)
		}
	})
	return p.result
}
