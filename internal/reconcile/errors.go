package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Syncer lifecycle errors
var (
	ErrSyncerStopped   = errors.New("syncer has been stopped")
	ErrAlreadyStarted  = errors.New("syncer already started")
	ErrPlayerNotReady  = errors.New("player is not ready")
	ErrUnsupported     = errors.New("player does not support this command")
	ErrUnexpectedReply = errors.New("unexpected cross-check response")
)

// ErrorType represents the kind of sync failure
type ErrorType int

const (
	// ErrorTypePlayerUnavailable means no player could be created
	ErrorTypePlayerUnavailable ErrorType = iota
	// ErrorTypePlayerFailed means a running player reported an error
	ErrorTypePlayerFailed
	// ErrorTypeCommandFailed means a load or seek was rejected
	ErrorTypeCommandFailed
	// ErrorTypeTransport means a cross-check or broadcast transport failed
	ErrorTypeTransport
	// ErrorTypeTimeout means an operation timed out
	ErrorTypeTimeout
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypePlayerUnavailable:
		return "player_unavailable"
	case ErrorTypePlayerFailed:
		return "player_failed"
	case ErrorTypeCommandFailed:
		return "command_failed"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ErrorSeverity represents how loudly a failure is reported
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of ErrorSeverity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncError is a classified reconciliation failure
type SyncError struct {
	Type        ErrorType
	Severity    ErrorSeverity
	Message     string
	Cause       error
	Recoverable bool
}

// NewSyncError creates a SyncError with the attributes of its type
func NewSyncError(errorType ErrorType, message string, cause error) *SyncError {
	severity, recoverable := classifyErrorTypeAttributes(errorType)
	return &SyncError{
		Type:        errorType,
		Severity:    severity,
		Message:     message,
		Cause:       cause,
		Recoverable: recoverable,
	}
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// classifyErrorTypeAttributes returns severity and recoverability for an error type.
// Every sync failure is retried; none of them invalidates the schedule.
func classifyErrorTypeAttributes(errorType ErrorType) (ErrorSeverity, bool) {
	switch errorType {
	case ErrorTypePlayerUnavailable, ErrorTypePlayerFailed:
		return SeverityError, true
	case ErrorTypeCommandFailed, ErrorTypeTimeout:
		return SeverityWarning, true
	case ErrorTypeTransport:
		return SeverityInfo, true
	default:
		return SeverityError, true
	}
}

// ClassifyError wraps a plain error into a SyncError, keeping existing classifications
func ClassifyError(err error, fallback ErrorType) *SyncError {
	if err == nil {
		return nil
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timed out") {
		return NewSyncError(ErrorTypeTimeout, "operation timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, ErrCircuitOpen) {
		return NewSyncError(ErrorTypeTransport, "transport failure", err)
	}

	return NewSyncError(fallback, fallback.String(), err)
}
