package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// TransferErrorType categorizes terminal transfer failures. All of them end
// the transfer; none is retried.
type TransferErrorType int

const (
	// Configuration rejects a transfer before any byte moves.
	Configuration TransferErrorType = iota
	// SourceRead means the source failed mid-transfer.
	SourceRead
	// SinkWrite means the sink rejected a write or finalize.
	SinkWrite
	// Cancellation means the caller aborted the transfer.
	Cancellation
)

func (t TransferErrorType) String() string {
	switch t {
	case Configuration:
		return "configuration"
	case SourceRead:
		return "source_read"
	case SinkWrite:
		return "sink_write"
	case Cancellation:
		return "cancellation"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// TransferError is the single error shape a pump surfaces to its caller.
type TransferError struct {
	Type    TransferErrorType
	Message string
	Cause   error
}

func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError reports an invalid pump configuration.
func NewConfigurationError(message string) *TransferError {
	return &TransferError{
		Type:    Configuration,
		Message: message,
	}
}

// NewSourceReadError reports a mid-transfer source failure.
func NewSourceReadError(cause error) *TransferError {
	return &TransferError{
		Type:    SourceRead,
		Message: "source read failed",
		Cause:   cause,
	}
}

// NewSinkWriteError reports a sink rejecting a write.
func NewSinkWriteError(cause error) *TransferError {
	return &TransferError{
		Type:    SinkWrite,
		Message: "sink write failed",
		Cause:   cause,
	}
}

// NewCancellationError reports a caller-initiated abort.
func NewCancellationError(cause error) *TransferError {
	return &TransferError{
		Type:    Cancellation,
		Message: "transfer cancelled",
		Cause:   cause,
	}
}

// IsType checks whether err is a TransferError of the given type.
func IsType(err error, t TransferErrorType) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Type == t
	}
	return false
}

// IsCancellation checks whether err is a caller-initiated abort.
func IsCancellation(err error) bool {
	return IsType(err, Cancellation)
}

// IsConnectionClosed checks if err indicates the peer went away, which a
// HTTP sink reports as an expected condition rather than a sink defect.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "use of closed network connection")
}
