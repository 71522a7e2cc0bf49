// Package savestore persists slot-addressed saves over an asynchronous
// transactional object store.
//
// Two tables hold every slot: saves keeps the full snapshot and details
// the lightweight listing record. Each mutation commits one transaction
// over both tables, so a slot is either entirely old or entirely new.
//
// At most one mutation (Set, Delete, Clear) runs at a time. A mutation
// requested while another is in flight is rejected with StatusBusy rather
// than queued. Reads are never blocked by the lock.
//
// When the object store cannot be opened, or a transaction fails, the
// store switches to degraded mode and keeps saves in the legacy key-value
// store, one key per slot.
package savestore
