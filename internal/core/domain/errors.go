// Package domain defines the core domain models for storyline.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes have the form SL-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "SL-HIST-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true // Only check if it's a DomainError
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// History errors (HIST). Structural: never repaired locally.
var (
	// ErrHistoryMalformed indicates a moment array or delta chain cannot be used.
	ErrHistoryMalformed = NewDomainError("SL-HIST-4000", "malformed history")

	// ErrIndexOutOfRange indicates a history index outside [0, len-1].
	ErrIndexOutOfRange = NewDomainError("SL-HIST-4001", "history index out of range")

	// ErrHistoryEmpty indicates an index-based operation on an empty history.
	ErrHistoryEmpty = NewDomainError("SL-HIST-4002", "history is empty")

	// ErrNilMoment indicates a nil moment was supplied for activation.
	ErrNilMoment = NewDomainError("SL-HIST-4003", "moment is nil")
)

// Snapshot errors (SNAP).
var (
	// ErrSnapshotInvalid indicates a snapshot violates its wire shape.
	ErrSnapshotInvalid = NewDomainError("SL-SNAP-4000", "invalid snapshot")

	// ErrSnapshotAmbiguous indicates a snapshot carries both history and delta.
	ErrSnapshotAmbiguous = NewDomainError("SL-SNAP-4001", "snapshot has both history and delta")

	// ErrSnapshotNoHistory indicates a snapshot carries neither history nor delta.
	ErrSnapshotNoHistory = NewDomainError("SL-SNAP-4002", "snapshot has no history")

	// ErrSnapshotNoIndex indicates a snapshot without an index.
	ErrSnapshotNoIndex = NewDomainError("SL-SNAP-4003", "snapshot has no index")
)

// Store errors (STORE).
var (
	// ErrBackendUnavailable indicates the object store cannot be opened.
	ErrBackendUnavailable = NewDomainError("SL-STORE-5030", "storage backend unavailable")

	// ErrTransactionFailed indicates a transaction errored or aborted.
	ErrTransactionFailed = NewDomainError("SL-STORE-5001", "storage transaction failed")

	// ErrQuotaExceeded indicates a capacity-bounded store rejected a write.
	ErrQuotaExceeded = NewDomainError("SL-STORE-4130", "storage quota exceeded")

	// ErrLocked indicates another mutating operation is in flight.
	ErrLocked = NewDomainError("SL-STORE-4230", "save store busy")

	// ErrSlotNotFound indicates no save exists in the slot.
	ErrSlotNotFound = NewDomainError("SL-STORE-4040", "save slot not found")

	// ErrSlotInvalid indicates an unusable slot number.
	ErrSlotInvalid = NewDomainError("SL-STORE-4000", "invalid save slot")

	// ErrPayloadInvalid indicates a save payload without history.
	ErrPayloadInvalid = NewDomainError("SL-STORE-4001", "save payload has no history")

	// ErrStoreClosed indicates use of a closed store.
	ErrStoreClosed = NewDomainError("SL-STORE-5002", "store closed")
)

// Quarantine errors (QUAR).
var (
	// ErrUnserializable indicates a value with no registered codec.
	ErrUnserializable = NewDomainError("SL-QUAR-4000", "value cannot be serialized")

	// ErrQuarantinePath indicates a recorded path no longer resolves.
	ErrQuarantinePath = NewDomainError("SL-QUAR-4001", "quarantine path does not resolve")

	// ErrCodecUnknown indicates a quarantine kind with no registered codec.
	ErrCodecUnknown = NewDomainError("SL-QUAR-4002", "unknown quarantine codec")
)

// Argument errors (ARG).
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("SL-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SL-ARG-1002", "missing required argument")

	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = NewDomainError("SL-SYS-5000", "internal error")
)
