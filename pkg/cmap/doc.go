// Package cmap provides a concurrent-safe string-keyed map split into
// shards, each guarded by its own lock.
package cmap
