// Package kvstore provides the synchronous key-value stores used for the
// legacy save layout, settings and transient session snapshots.
//
// Stores may be capacity-bounded: a Set that would exceed the quota fails
// with ErrQuotaExceeded and leaves the previous value in place.
package kvstore

import (
	"context"
	"errors"

	"github.com/yndnr/storyline-go/internal/core/domain"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrQuotaExceeded is returned when a write does not fit.
	ErrQuotaExceeded = domain.ErrQuotaExceeded

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("kvstore: empty key")
)

// Store is a synchronous key-value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys in unspecified order.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key.
	Clear(ctx context.Context) error
}

// Usage is implemented by stores that track their size.
type Usage interface {
	// Used returns the bytes currently stored.
	Used() int64

	// Quota returns the capacity in bytes, 0 meaning unbounded.
	Quota() int64
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
