package transfer

import (
	"sync"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Worker executes queued transfers on a fixed goroutine pool. One transfer
// runs on exactly one goroutine; the pump itself stays single-threaded.
type Worker struct {
	service  *Service
	tasks    chan Task
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// Task identifies one queued transfer.
type Task struct {
	TransferID uuid.UUID
}

// NewWorker creates a transfer worker pool of the given size.
func NewWorker(service *Service, poolSize, bufferSize int) *Worker {
	if poolSize <= 0 {
		poolSize = 4
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}

	w := &Worker{
		service: service,
		tasks:   make(chan Task, bufferSize),
		stopped: make(chan struct{}),
	}

	for range poolSize {
		w.wg.Add(1)
		go w.run()
	}

	return w
}

// Submit enqueues a transfer for execution. It reports false when the worker
// has stopped or the queue is full; callers must surface that to the client
// rather than drop the transfer silently.
func (w *Worker) Submit(transferID uuid.UUID) bool {
	select {
	case <-w.stopped:
		fiberlog.Warnf("[%s] worker stopped, rejecting transfer", transferID)
		return false
	case w.tasks <- Task{TransferID: transferID}:
		return true
	default:
		fiberlog.Warnf("[%s] transfer queue full, rejecting transfer", transferID)
		return false
	}
}

// run processes tasks until the pool stops.
func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopped:
			return
		case task := <-w.tasks:
			w.service.execute(task.TransferID)
		}
	}
}

// Stop gracefully stops the worker pool. In-flight transfers run to their
// terminal state first.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
		w.wg.Wait()
	})
}
