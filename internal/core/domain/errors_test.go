// Package domain defines the core domain models for storyline.
package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("SL-TEST-1000", "test message"),
			expected: "[SL-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("SL-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[SL-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("SL-TEST-1000", "message 1")
	err2 := NewDomainError("SL-TEST-1000", "message 2") // Same code, different message
	err3 := NewDomainError("SL-TEST-1001", "message 1") // Different code

	// Same code should match
	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}

	// Different code should not match
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}

	// Should not match non-DomainError
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := NewDomainError("SL-TEST-1000", "wrapper").WithCause(cause)

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Without cause
	errNoCause := NewDomainError("SL-TEST-1000", "no cause")
	if errors.Unwrap(errNoCause) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_WithDetails(t *testing.T) {
	original := NewDomainError("SL-TEST-1000", "original message")
	withDetails := original.WithDetails("additional details")

	// Check original is unchanged
	if original.Details != "" {
		t.Error("WithDetails should not modify original error")
	}

	// Check new error has details
	if withDetails.Details != "additional details" {
		t.Errorf("Details = %q, want %q", withDetails.Details, "additional details")
	}

	// Check code and message are preserved
	if withDetails.Code != original.Code {
		t.Errorf("Code = %q, want %q", withDetails.Code, original.Code)
	}
	if withDetails.Message != original.Message {
		t.Errorf("Message = %q, want %q", withDetails.Message, original.Message)
	}
}

func TestDomainError_WithCause(t *testing.T) {
	original := NewDomainError("SL-TEST-1000", "original message")
	cause := fmt.Errorf("root cause")
	withCause := original.WithCause(cause)

	// Check original is unchanged
	if original.Cause != nil {
		t.Error("WithCause should not modify original error")
	}

	// Check new error has cause
	if withCause.Cause != cause {
		t.Errorf("Cause = %v, want %v", withCause.Cause, cause)
	}

	// Check code and message are preserved
	if withCause.Code != original.Code {
		t.Errorf("Code = %q, want %q", withCause.Code, original.Code)
	}
}

func TestDomainError_Wrap(t *testing.T) {
	original := NewDomainError("SL-TEST-1000", "original")
	cause := fmt.Errorf("cause")
	wrapped := original.Wrap(cause)

	if wrapped.Cause != cause {
		t.Errorf("Wrap() should set cause, got %v", wrapped.Cause)
	}
}

func TestIsDomainError(t *testing.T) {
	err := ErrSlotNotFound

	if !IsDomainError(err, "SL-STORE-4040") {
		t.Error("IsDomainError should return true for matching code")
	}

	if IsDomainError(err, "SL-STORE-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}

	if IsDomainError(fmt.Errorf("regular error"), "SL-STORE-4040") {
		t.Error("IsDomainError should return false for non-DomainError")
	}

	wrapped := fmt.Errorf("wrapped: %w", ErrSlotNotFound)
	if !IsDomainError(wrapped, "SL-STORE-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "domain error",
			err:      ErrLocked,
			expected: "SL-STORE-4230",
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("wrapped: %w", ErrSnapshotAmbiguous),
			expected: "SL-SNAP-4001",
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("regular error"),
			expected: "",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *DomainError
		code string
	}{
		// History errors
		{ErrHistoryMalformed, "SL-HIST-4000"},
		{ErrIndexOutOfRange, "SL-HIST-4001"},
		{ErrHistoryEmpty, "SL-HIST-4002"},
		{ErrNilMoment, "SL-HIST-4003"},

		// Snapshot errors
		{ErrSnapshotInvalid, "SL-SNAP-4000"},
		{ErrSnapshotAmbiguous, "SL-SNAP-4001"},
		{ErrSnapshotNoHistory, "SL-SNAP-4002"},
		{ErrSnapshotNoIndex, "SL-SNAP-4003"},

		// Store errors
		{ErrBackendUnavailable, "SL-STORE-5030"},
		{ErrTransactionFailed, "SL-STORE-5001"},
		{ErrQuotaExceeded, "SL-STORE-4130"},
		{ErrLocked, "SL-STORE-4230"},
		{ErrSlotNotFound, "SL-STORE-4040"},
		{ErrSlotInvalid, "SL-STORE-4000"},
		{ErrPayloadInvalid, "SL-STORE-4001"},
		{ErrStoreClosed, "SL-STORE-5002"},

		// Quarantine errors
		{ErrUnserializable, "SL-QUAR-4000"},
		{ErrQuarantinePath, "SL-QUAR-4001"},
		{ErrCodecUnknown, "SL-QUAR-4002"},

		// Argument errors
		{ErrInvalidArgument, "SL-ARG-1001"},
		{ErrMissingArgument, "SL-ARG-1002"},
		{ErrInternal, "SL-SYS-5000"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Error code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Error message should not be empty")
			}
		})
	}
}

func TestErrorChaining(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ErrTransactionFailed.
		WithDetails("slot: 3").
		WithCause(cause)

	if err.Code != "SL-STORE-5001" {
		t.Errorf("Code = %q, want %q", err.Code, "SL-STORE-5001")
	}
	if err.Details != "slot: 3" {
		t.Errorf("Details = %q", err.Details)
	}
	if err.Cause != cause {
		t.Error("Cause should be preserved")
	}

	if !errors.Is(err, ErrTransactionFailed) {
		t.Error("errors.Is should work after chaining")
	}
}
