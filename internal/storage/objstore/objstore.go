// Package objstore defines the asynchronous transactional object store the
// save store is built on, plus an in-memory implementation.
//
// A database holds named tables keyed by integer slot. Tables are created
// only inside the versioned upgrade callback passed to Open. Every write
// goes through a transaction spanning one or more tables; Commit returns a
// Completion that resolves once the backend reports complete, error or
// abort. A transaction is all-or-nothing: an aborted commit leaves every
// table it touched unchanged.
package objstore

import (
	"context"
	"errors"
)

// Mode is the transaction mode.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

var (
	ErrNotFound      = errors.New("objstore: key not found")
	ErrKeyExists     = errors.New("objstore: key already exists")
	ErrTableNotFound = errors.New("objstore: table not found")
	ErrTableExists   = errors.New("objstore: table already exists")
	ErrReadOnly      = errors.New("objstore: transaction is read-only")
	ErrTxDone        = errors.New("objstore: transaction already finished")
	ErrAborted       = errors.New("objstore: transaction aborted")
	ErrClosed        = errors.New("objstore: database closed")
	ErrVersion       = errors.New("objstore: requested version is lower than stored version")
)

// Entry is one table row.
type Entry struct {
	Key   int
	Value []byte
}

// Schema is handed to the upgrade callback.
type Schema interface {
	CreateTable(name string) error
	DeleteTable(name string) error
	Tables() []string
}

// UpgradeFunc migrates the schema from oldVersion to newVersion. It runs
// once, when the stored version is lower than the requested one; a fresh
// database has version 0.
type UpgradeFunc func(s Schema, oldVersion, newVersion int) error

// Opener opens databases by name.
type Opener interface {
	Open(ctx context.Context, name string, version int, upgrade UpgradeFunc) (DB, error)
}

// DB is an open database.
type DB interface {
	Name() string
	Version() int
	Tables() []string

	// Transaction starts a transaction over tables.
	Transaction(tables []string, mode Mode) (Tx, error)

	Close() error
}

// Tx is a transaction. Table handles are only valid until Commit or Abort.
type Tx interface {
	Table(name string) (Table, error)

	// Commit submits the transaction. The returned Completion resolves
	// with nil on success, or with an error wrapping ErrAborted or the
	// backend failure.
	Commit() *Completion

	// Abort discards the transaction.
	Abort()
}

// Table is a table handle inside a transaction. Reads observe the
// transaction's own writes.
type Table interface {
	Get(key int) ([]byte, error)

	// Add inserts a row and fails with ErrKeyExists if key is present.
	Add(key int, value []byte) error

	// Delete removes a row. Deleting a missing key is not an error.
	Delete(key int) error

	Clear() error

	// GetAll returns every row ordered by key.
	GetAll() ([]Entry, error)
}
