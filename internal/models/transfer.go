package models

import (
	"time"

	"github.com/google/uuid"
)

// TransferState is the persisted lifecycle of a transfer job.
type TransferState string

const (
	TransferQueued    TransferState = "queued"
	TransferRunning   TransferState = "running"
	TransferFinished  TransferState = "finished"
	TransferFailed    TransferState = "failed"
	TransferCancelled TransferState = "cancelled"
)

// IsTerminal reports whether no further state changes can occur.
func (s TransferState) IsTerminal() bool {
	return s == TransferFinished || s == TransferFailed || s == TransferCancelled
}

// Endpoint kinds accepted in transfer requests.
const (
	EndpointFile   = "file"
	EndpointHTTP   = "http"
	EndpointInline = "inline"
)

// SourceSpec names where a transfer reads from. Exactly one of Path, URL or
// Data is set depending on Type. Inline payloads are never persisted; only
// their size is recorded.
type SourceSpec struct {
	Type string `json:"type" yaml:"type" gorm:"column:type"`
	Path string `json:"path,omitzero" yaml:"path,omitempty" gorm:"column:path"`
	URL  string `json:"url,omitzero" yaml:"url,omitempty" gorm:"column:url"`
	Data []byte `json:"data,omitzero" yaml:"-" gorm:"-"`
}

// SinkSpec names where a transfer writes to.
type SinkSpec struct {
	Type string `json:"type" yaml:"type" gorm:"column:type"`
	Path string `json:"path,omitzero" yaml:"path,omitempty" gorm:"column:path"`
}

// Transfer is the persisted record of one pump run.
type Transfer struct {
	ID         uuid.UUID     `json:"id" gorm:"type:string;primaryKey"`
	Source     SourceSpec    `json:"source" gorm:"embedded;embeddedPrefix:source_"`
	Sink       SinkSpec      `json:"sink" gorm:"embedded;embeddedPrefix:sink_"`
	ChunkSize  int           `json:"chunk_size"`
	State      TransferState `json:"state" gorm:"index"`
	BytesMoved int64         `json:"bytes_moved"`
	Chunks     int64         `json:"chunks"`
	Error      string        `json:"error,omitzero"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	StartedAt  *time.Time    `json:"started_at,omitzero"`
	FinishedAt *time.Time    `json:"finished_at,omitzero"`
}

// TransferEventType classifies audit events emitted while a transfer runs.
type TransferEventType string

const (
	EventStarted   TransferEventType = "started"
	EventProgress  TransferEventType = "progress"
	EventFinished  TransferEventType = "finished"
	EventFailed    TransferEventType = "failed"
	EventCancelled TransferEventType = "cancelled"
)

// IsTerminal reports whether the event ends the transfer.
func (t TransferEventType) IsTerminal() bool {
	return t == EventFinished || t == EventFailed || t == EventCancelled
}

// TransferEvent is one append-only audit row. Progress events carry the byte
// and chunk counters observed when they were emitted.
type TransferEvent struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	TransferID uuid.UUID         `json:"transfer_id" gorm:"type:string;index"`
	Type       TransferEventType `json:"type"`
	Bytes      int64             `json:"bytes"`
	Chunks     int64             `json:"chunks"`
	Error      string            `json:"error,omitzero"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CreateTransferRequest is the POST /v1/transfers body.
type CreateTransferRequest struct {
	Source    SourceSpec `json:"source"`
	Sink      SinkSpec   `json:"sink"`
	ChunkSize int        `json:"chunk_size,omitzero"`
}

// TransferStatus is the live view merged from redis on reads.
type TransferStatus struct {
	State      TransferState `json:"state"`
	BytesMoved int64         `json:"bytes_moved"`
	Chunks     int64         `json:"chunks"`
}
