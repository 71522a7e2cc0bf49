// Package storage provides the durable backends behind the save store.
//
// BadgerOpener implements objstore.Opener on top of Badger. Each named
// database gets its own directory under the data dir; tables are key
// prefixes and rows are keyed by slot. Opening the same name twice shares
// one Badger handle, and the handle is closed when the last DB is closed.
//
// Subpackages:
//
//   - objstore: the table-and-transaction interface and an in-memory backend
//   - kvstore: the flat key-value store for legacy saves, settings and
//     session snapshots, with file and memory backends
package storage
