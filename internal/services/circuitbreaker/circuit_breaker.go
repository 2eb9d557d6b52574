// Package circuitbreaker guards remote download hosts. Breaker state lives
// in redis so every instance sharing the store sees the same view of a
// misbehaving host.
package circuitbreaker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	ResetAfter       time.Duration
}

// DefaultConfig suits flaky public download hosts: open after five straight
// failures, retry a probe after thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		ResetAfter:       2 * time.Minute,
	}
}

const (
	breakerKeyPrefix   = "streampump:breaker:"
	stateKey           = "state"
	failureCountKey    = "failure_count"
	successCountKey    = "success_count"
	lastFailureTimeKey = "last_failure_time"
	lastStateChangeKey = "last_state_change"
	defaultTimeout     = 1 * time.Second
	maxRetries         = 3
)

// Lua scripts keep count/transition updates atomic without client-side
// retry loops.
const (
	// recordSuccessScript: KEYS = state, failure_count, success_count,
	// last_state_change; ARGV = success threshold, now (unix seconds).
	recordSuccessScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		redis.call('SET', KEYS[2], 0)

		if state == 2 then  -- HalfOpen
			local count = redis.call('INCR', KEYS[3])
			if count >= tonumber(ARGV[1]) then
				redis.call('SET', KEYS[1], 0)       -- back to Closed
				redis.call('SET', KEYS[3], 0)
				redis.call('SET', KEYS[4], ARGV[2])
				return 2
			end
			return 1
		end
		return 0
	`

	// recordFailureScript: KEYS = state, failure_count, last_failure_time,
	// last_state_change, success_count; ARGV = failure threshold, now.
	recordFailureScript = `
		local state = tonumber(redis.call('GET', KEYS[1]) or '0')
		local failureCount = redis.call('INCR', KEYS[2])
		redis.call('SET', KEYS[3], ARGV[2])

		local shouldOpen = (state == 0 and failureCount >= tonumber(ARGV[1])) or state == 2

		if shouldOpen then
			redis.call('SET', KEYS[1], 1)
			redis.call('SET', KEYS[4], ARGV[2])
			redis.call('SET', KEYS[5], '0')
			return 1
		end
		return 0
	`
)

// CircuitBreaker tracks the health of one remote host.
type CircuitBreaker struct {
	redisClient *redis.Client
	host        string
	config      Config
	keyPrefix   string
}

// NewForHost returns a breaker for the given download host with defaults.
func NewForHost(redisClient *redis.Client, host string) *CircuitBreaker {
	return NewWithConfig(redisClient, host, DefaultConfig())
}

// NewWithConfig returns a breaker for the given host with explicit tuning.
func NewWithConfig(redisClient *redis.Client, host string, config Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		redisClient: redisClient,
		host:        host,
		config:      config,
		keyPrefix:   breakerKeyPrefix + host + ":",
	}

	cb.initializeState()
	return cb
}

func (cb *CircuitBreaker) key(field string) string {
	return cb.keyPrefix + field
}

func (cb *CircuitBreaker) initializeState() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	exists, err := cb.redisClient.Exists(ctx, cb.key(stateKey)).Result()
	if err != nil {
		fiberlog.Errorf("circuitbreaker: failed to check state existence for %s: %v", cb.host, err)
		return
	}
	if exists > 0 {
		return
	}

	pipe := cb.redisClient.Pipeline()
	pipe.Set(ctx, cb.key(stateKey), int(Closed), 0)
	pipe.Set(ctx, cb.key(failureCountKey), 0, 0)
	pipe.Set(ctx, cb.key(successCountKey), 0, 0)
	pipe.Set(ctx, cb.key(lastStateChangeKey), time.Now().Unix(), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("circuitbreaker: failed to initialize state for %s: %v", cb.host, err)
	}
}

// CanExecute reports whether a download from the host may start. An Open
// breaker lets one probe through once the timeout has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	state, err := cb.getState(ctx)
	if err != nil {
		fiberlog.Errorf("circuitbreaker: failed to get state for %s, allowing execution: %v", cb.host, err)
		return true
	}

	switch state {
	case Closed, HalfOpen:
		return true
	case Open:
		lastFailureTime, err := cb.redisClient.Get(ctx, cb.key(lastFailureTimeKey)).Int64()
		if err != nil {
			fiberlog.Errorf("circuitbreaker: failed to get last failure time for %s: %v", cb.host, err)
			return false
		}

		if time.Since(time.Unix(lastFailureTime, 0)) > cb.config.Timeout {
			return cb.transitionToState(HalfOpen)
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a completed download and closes the breaker once the
// success threshold is met in HalfOpen.
func (cb *CircuitBreaker) RecordSuccess() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	keys := []string{
		cb.key(stateKey),
		cb.key(failureCountKey),
		cb.key(successCountKey),
		cb.key(lastStateChangeKey),
	}
	args := []any{cb.config.SuccessThreshold, time.Now().Unix()}

	result, err := cb.redisClient.Eval(ctx, recordSuccessScript, keys, args...).Int()
	if err != nil {
		fiberlog.Errorf("circuitbreaker: failed to record success for %s: %v", cb.host, err)
		return
	}

	if result == 2 {
		fiberlog.Infof("circuitbreaker: %s transitioned to Closed after success", cb.host)
	}
}

// RecordFailure notes a failed download and opens the breaker once the
// failure threshold is met.
func (cb *CircuitBreaker) RecordFailure() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	keys := []string{
		cb.key(stateKey),
		cb.key(failureCountKey),
		cb.key(lastFailureTimeKey),
		cb.key(lastStateChangeKey),
		cb.key(successCountKey),
	}
	args := []any{cb.config.FailureThreshold, time.Now().Unix()}

	result, err := cb.redisClient.Eval(ctx, recordFailureScript, keys, args...).Int()
	if err != nil {
		fiberlog.Errorf("circuitbreaker: failed to record failure for %s: %v", cb.host, err)
		return
	}

	if result == 1 {
		fiberlog.Warnf("circuitbreaker: %s transitioned to Open after failure", cb.host)
	}
}

// GetState returns the current breaker state, defaulting to Closed on
// redis errors.
func (cb *CircuitBreaker) GetState() State {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	state, err := cb.getState(ctx)
	if err != nil {
		fiberlog.Errorf("circuitbreaker: failed to get state for %s, returning Closed: %v", cb.host, err)
		return Closed
	}
	return state
}

func (cb *CircuitBreaker) getState(ctx context.Context) (State, error) {
	stateStr, err := cb.redisClient.Get(ctx, cb.key(stateKey)).Result()
	if err != nil {
		return Closed, fmt.Errorf("failed to get circuit breaker state: %w", err)
	}

	stateInt, err := strconv.Atoi(stateStr)
	if err != nil {
		return Closed, fmt.Errorf("invalid state value '%s': %w", stateStr, err)
	}

	return State(stateInt), nil
}

func (cb *CircuitBreaker) transitionToState(newState State) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Optimistic locking with retries.
	for attempt := range maxRetries {
		err := cb.redisClient.Watch(ctx, func(tx *redis.Tx) error {
			currentState, err := cb.getState(ctx)
			if err != nil {
				return err
			}
			if currentState == newState {
				return nil
			}

			pipe := tx.TxPipeline()
			pipe.Set(ctx, cb.key(stateKey), int(newState), 0)
			pipe.Set(ctx, cb.key(lastStateChangeKey), time.Now().Unix(), 0)
			if newState != HalfOpen {
				pipe.Set(ctx, cb.key(successCountKey), 0, 0)
			}

			_, err = pipe.Exec(ctx)
			return err
		}, cb.key(stateKey))

		if err == nil {
			fiberlog.Debugf("circuitbreaker: %s transitioned to %s", cb.host, newState)
			return true
		}
		if err != redis.TxFailedErr {
			fiberlog.Errorf("circuitbreaker: %s state transition failed: %v", cb.host, err)
			return false
		}

		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}

	fiberlog.Errorf("circuitbreaker: %s state transition failed after %d attempts", cb.host, maxRetries)
	return false
}
