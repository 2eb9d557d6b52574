// Package status mirrors live transfer counters into redis so pollers see
// progress without hitting the relational store on every request.
package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/boubkhaled/streampump/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix  = "streampump:transfer:"
	stateField = "state"
	bytesField = "bytes_moved"
	chunkField = "chunks"

	// Status entries outlive the transfer long enough for pollers to
	// observe the terminal state, then expire.
	entryTTL = 24 * time.Hour

	opTimeout = 2 * time.Second
)

// Store reads and writes live transfer status.
type Store struct {
	client *redis.Client
	group  singleflight.Group
}

// New returns a store over the given client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Set records the latest counters for a transfer. Errors are logged, not
// propagated: the relational record stays authoritative and a stale mirror
// only delays what pollers see.
func (s *Store) Set(ctx context.Context, id uuid.UUID, st models.TransferStatus) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key(id),
		stateField, string(st.State),
		bytesField, st.BytesMoved,
		chunkField, st.Chunks,
	)
	pipe.Expire(ctx, key(id), entryTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		fiberlog.Errorf("status: failed to mirror transfer %s: %v", id, err)
	}
}

// Get returns the live status for a transfer. Concurrent lookups for the
// same transfer are collapsed into a single redis round trip.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (models.TransferStatus, bool, error) {
	v, err, _ := s.group.Do(id.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		fields, err := s.client.HGetAll(ctx, key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read transfer status: %w", err)
		}
		if len(fields) == 0 {
			return nil, nil
		}

		st := models.TransferStatus{State: models.TransferState(fields[stateField])}
		st.BytesMoved, _ = strconv.ParseInt(fields[bytesField], 10, 64)
		st.Chunks, _ = strconv.ParseInt(fields[chunkField], 10, 64)
		return &st, nil
	})
	if err != nil {
		return models.TransferStatus{}, false, err
	}
	if v == nil {
		return models.TransferStatus{}, false, nil
	}

	st := v.(*models.TransferStatus)
	return *st, true, nil
}
