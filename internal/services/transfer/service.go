// Package transfer owns the lifecycle of transfer jobs: validation,
// persistence, execution through the pump, cancellation, and the event fanout
// that keeps the audit trail and the live status mirror current.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boubkhaled/streampump/internal/emitter"
	"github.com/boubkhaled/streampump/internal/models"
	"github.com/boubkhaled/streampump/internal/pump"
	"github.com/boubkhaled/streampump/internal/pump/contracts"
	"github.com/boubkhaled/streampump/internal/sequence"
	"github.com/boubkhaled/streampump/internal/services/circuitbreaker"
	"github.com/boubkhaled/streampump/internal/services/database"
	"github.com/boubkhaled/streampump/internal/services/status"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// progressInterval throttles progress events to every N delivered chunks.
const progressInterval = 16

// Options tunes a transfer service.
type Options struct {
	ChunkSize   int
	SpoolDir    string
	HTTPTimeout time.Duration
	PoolSize    int
	QueueSize   int
	Breaker     circuitbreaker.Config
}

// Service creates, runs and cancels transfers.
type Service struct {
	db          *database.DB
	redisClient *redis.Client
	statusStore *status.Store
	events      *emitter.Emitter[models.TransferEvent]

	chunkSize   int
	spoolDir    string
	httpTimeout time.Duration
	breakerCfg  circuitbreaker.Config

	worker *Worker

	mu       sync.Mutex
	running  map[uuid.UUID]context.CancelFunc
	payloads map[uuid.UUID][]byte
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// NewService wires the transfer service. redisClient may be nil, in which
// case the live status mirror and remote-host breakers are disabled.
func NewService(db *database.DB, redisClient *redis.Client, opts Options) *Service {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = pump.DefaultChunkSize
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 2 * time.Minute
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = circuitbreaker.DefaultConfig()
	}

	s := &Service{
		db:          db,
		redisClient: redisClient,
		events:      emitter.New[models.TransferEvent](),
		chunkSize:   opts.ChunkSize,
		spoolDir:    opts.SpoolDir,
		httpTimeout: opts.HTTPTimeout,
		breakerCfg:  opts.Breaker,
		running:     make(map[uuid.UUID]context.CancelFunc),
		payloads:    make(map[uuid.UUID][]byte),
		breakers:    make(map[string]*circuitbreaker.CircuitBreaker),
	}

	if redisClient != nil {
		s.statusStore = status.New(redisClient)
	}

	// Registration order is the delivery order: persist first so the
	// record is authoritative before the mirror and the log see the event.
	s.events.Subscribe(s.persistEvent)
	s.events.Subscribe(s.mirrorEvent)
	s.events.Subscribe(logEvent)

	s.worker = NewWorker(s, opts.PoolSize, opts.QueueSize)
	return s
}

// Events exposes the transfer event stream for additional subscribers.
func (s *Service) Events() *emitter.Emitter[models.TransferEvent] {
	return s.events
}

// Close stops the worker pool. In-flight transfers finish first.
func (s *Service) Close() {
	s.worker.Stop()
}

// Create validates, persists and enqueues a transfer.
func (s *Service) Create(ctx context.Context, req *models.CreateTransferRequest) (*models.Transfer, error) {
	if appErr := s.validateRequest(req); appErr != nil {
		return nil, appErr
	}

	if req.Source.Type == models.EndpointHTTP {
		host, _ := hostOf(req.Source.URL)
		if cb := s.breakerFor(host); cb != nil && !cb.CanExecute() {
			return nil, models.NewCircuitBreakerError(host)
		}
	}

	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.chunkSize
	}

	t := &models.Transfer{
		ID:        uuid.New(),
		Source:    req.Source,
		Sink:      req.Sink,
		ChunkSize: chunkSize,
		State:     models.TransferQueued,
	}
	// Inline payloads stay in memory until the transfer runs.
	payload := t.Source.Data
	t.Source.Data = nil

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, models.NewInternalError("failed to persist transfer", err)
	}

	if t.Source.Type == models.EndpointInline {
		s.mu.Lock()
		s.payloads[t.ID] = payload
		s.mu.Unlock()
	}

	if !s.worker.Submit(t.ID) {
		s.events.Emit(models.TransferEvent{
			TransferID: t.ID,
			Type:       models.EventFailed,
			Error:      "transfer queue full",
		})
		return nil, models.NewInternalError("transfer queue full", nil)
	}

	return t, nil
}

// Get returns a transfer, overlaying live counters from the status mirror
// while the transfer is still moving.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	var t models.Transfer
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("transfer")
		}
		return nil, models.NewInternalError("failed to load transfer", err)
	}

	if !t.State.IsTerminal() && s.statusStore != nil {
		live, ok, err := s.statusStore.Get(ctx, id)
		if err != nil {
			fiberlog.Warnf("[%s] live status unavailable: %v", id, err)
		} else if ok {
			t.State = live.State
			t.BytesMoved = live.BytesMoved
			t.Chunks = live.Chunks
		}
	}

	return &t, nil
}

// List returns the most recent transfers, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.Transfer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var transfers []models.Transfer
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&transfers).Error; err != nil {
		return nil, models.NewInternalError("failed to list transfers", err)
	}
	return transfers, nil
}

// Cancel aborts a queued or running transfer. A cancelled transfer never
// reports finished; cancelling a terminal transfer is a conflict.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.State.IsTerminal() {
		return models.NewConflictError(fmt.Sprintf("transfer is already %s", t.State))
	}

	s.mu.Lock()
	cancel, isRunning := s.running[id]
	s.mu.Unlock()

	if isRunning {
		// The pump observes the cancelled context and emits the
		// terminal event itself.
		cancel()
		return nil
	}

	// Still queued: mark it cancelled so the worker skips it.
	s.events.Emit(models.TransferEvent{
		TransferID: id,
		Type:       models.EventCancelled,
		Error:      "cancelled before start",
	})
	return nil
}

// errNotQueued marks a dequeued task whose transfer already left the
// queued state, typically cancelled before the worker reached it. Whoever
// flipped the state emitted the terminal event, so the task is dropped
// without a second one.
var errNotQueued = errors.New("transfer no longer queued")

// execute runs one queued transfer to its terminal state. Called from the
// worker pool.
func (s *Service) execute(id uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	s.running[id] = cancel
	payload := s.payloads[id]
	delete(s.payloads, id)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	var (
		t       models.Transfer
		src     contracts.Source
		snk     contracts.Sink
		pumpRan bool
	)

	chain := sequence.New().
		Then("load", func(ctx context.Context) error {
			if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
				return fmt.Errorf("failed to load transfer: %w", err)
			}
			if t.State != models.TransferQueued {
				return fmt.Errorf("transfer is %s: %w", t.State, errNotQueued)
			}
			return nil
		}).
		Then("open-source", func(ctx context.Context) error {
			var err error
			src, err = s.openSource(ctx, &t, payload)
			return err
		}).
		Then("open-sink", func(ctx context.Context) error {
			var err error
			snk, err = s.openSink(&t)
			return err
		}).
		Then("pump", func(ctx context.Context) error {
			p, err := pump.New(src, snk,
				pump.WithChunkSize(t.ChunkSize),
				pump.WithProgress(func(bytesMoved, chunks int64) {
					if chunks%progressInterval == 0 {
						s.events.Emit(models.TransferEvent{
							TransferID: id,
							Type:       models.EventProgress,
							Bytes:      bytesMoved,
							Chunks:     chunks,
						})
					}
				}),
			)
			if err != nil {
				return err
			}

			s.events.Emit(models.TransferEvent{TransferID: id, Type: models.EventStarted})

			pumpRan = true
			res := p.Run(ctx)
			s.recordBreakerOutcome(&t, res)
			s.events.Emit(terminalEvent(id, res))
			return res.Err
		})

	if err := chain.Run(ctx); err != nil {
		if errors.Is(err, errNotQueued) {
			fiberlog.Debugf("[%s] dropping stale task: %v", id, err)
			return
		}
		fiberlog.Errorf("[%s] transfer did not finish: %v", id, err)
		if !pumpRan {
			// The pump owns resource cleanup only once it runs.
			if src != nil {
				_ = src.Close()
			}
			if snk != nil {
				_ = snk.Close()
			}
			ev := models.TransferEvent{
				TransferID: id,
				Type:       models.EventFailed,
				Error:      err.Error(),
			}
			if errors.Is(err, context.Canceled) {
				ev.Type = models.EventCancelled
			}
			s.events.Emit(ev)
		}
	}
}

// terminalEvent maps a pump result to its audit event.
func terminalEvent(id uuid.UUID, res pump.Result) models.TransferEvent {
	ev := models.TransferEvent{
		TransferID: id,
		Bytes:      res.BytesMoved,
		Chunks:     res.Chunks,
	}

	switch {
	case res.State == pump.Finished:
		ev.Type = models.EventFinished
	case contracts.IsCancellation(res.Err):
		ev.Type = models.EventCancelled
		ev.Error = res.Err.Error()
	default:
		ev.Type = models.EventFailed
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
	}
	return ev
}

// persistEvent keeps the relational record authoritative: state flips on
// started/terminal events plus an append-only audit row.
func (s *Service) persistEvent(ev models.TransferEvent) {
	now := time.Now()

	switch {
	case ev.Type == models.EventStarted:
		updates := map[string]any{
			"state":      models.TransferRunning,
			"started_at": &now,
		}
		if err := s.db.Model(&models.Transfer{}).Where("id = ?", ev.TransferID).Updates(updates).Error; err != nil {
			fiberlog.Errorf("[%s] failed to mark transfer running: %v", ev.TransferID, err)
		}
	case ev.Type.IsTerminal():
		updates := map[string]any{
			"state":       stateForEvent(ev.Type),
			"bytes_moved": ev.Bytes,
			"chunks":      ev.Chunks,
			"error":       ev.Error,
			"finished_at": &now,
		}
		if err := s.db.Model(&models.Transfer{}).Where("id = ?", ev.TransferID).Updates(updates).Error; err != nil {
			fiberlog.Errorf("[%s] failed to record terminal state: %v", ev.TransferID, err)
		}
	default:
		// progress events only touch the live mirror
		return
	}

	row := ev
	if err := s.db.Create(&row).Error; err != nil {
		fiberlog.Errorf("[%s] failed to append audit event: %v", ev.TransferID, err)
	}
}

// mirrorEvent pushes the latest counters into redis for cheap polling.
func (s *Service) mirrorEvent(ev models.TransferEvent) {
	if s.statusStore == nil {
		return
	}

	st := models.TransferStatus{
		State:      stateForEvent(ev.Type),
		BytesMoved: ev.Bytes,
		Chunks:     ev.Chunks,
	}
	s.statusStore.Set(context.Background(), ev.TransferID, st)
}

func logEvent(ev models.TransferEvent) {
	switch ev.Type {
	case models.EventProgress:
		fiberlog.Debugf("[%s] progress: %d chunks, %d bytes", ev.TransferID, ev.Chunks, ev.Bytes)
	case models.EventFailed:
		fiberlog.Errorf("[%s] transfer failed after %d bytes: %s", ev.TransferID, ev.Bytes, ev.Error)
	default:
		fiberlog.Infof("[%s] transfer %s: %d chunks, %d bytes", ev.TransferID, ev.Type, ev.Chunks, ev.Bytes)
	}
}

func stateForEvent(t models.TransferEventType) models.TransferState {
	switch t {
	case models.EventFinished:
		return models.TransferFinished
	case models.EventFailed:
		return models.TransferFailed
	case models.EventCancelled:
		return models.TransferCancelled
	default:
		return models.TransferRunning
	}
}

// recordBreakerOutcome feeds the per-host breaker after remote downloads.
func (s *Service) recordBreakerOutcome(t *models.Transfer, res pump.Result) {
	if t.Source.Type != models.EndpointHTTP {
		return
	}
	host, err := hostOf(t.Source.URL)
	if err != nil {
		return
	}
	cb := s.breakerFor(host)
	if cb == nil {
		return
	}

	// Cancellations say nothing about the host's health.
	if contracts.IsCancellation(res.Err) {
		return
	}
	if res.State == pump.Finished {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
}

// breakerFor lazily creates the breaker for a host. Without redis there is
// no shared breaker state, so gating is disabled.
func (s *Service) breakerFor(host string) *circuitbreaker.CircuitBreaker {
	if s.redisClient == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[host]; ok {
		return cb
	}
	cb := circuitbreaker.NewWithConfig(s.redisClient, host, s.breakerCfg)
	s.breakers[host] = cb
	return cb
}
