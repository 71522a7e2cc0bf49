// Package session keeps a recoverable copy of the live history in a
// transient, capacity-bounded key-value store.
//
// The transient store is expected to run out of space. Write shrinks the
// retained depth and retries until the snapshot fits; only when nothing
// fits does the quota error reach the caller.
package session
