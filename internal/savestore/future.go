package savestore

import (
	"context"
	"fmt"
)

// Status is the outcome of a mutation.
type Status int

const (
	// StatusOK means the mutation was committed.
	StatusOK Status = iota

	// StatusBusy means another mutation was in flight and nothing was
	// done. Callers should retry later; nothing failed.
	StatusBusy

	// StatusFailed means the mutation was attempted and rolled back, or
	// rejected for invalid input.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Future is the pending result of a mutation. It always resolves, also
// when the mutation panics.
type Future struct {
	done   chan struct{}
	status Status
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolvedFuture(status Status, err error) *Future {
	f := newFuture()
	f.resolve(status, err)
	return f
}

func (f *Future) resolve(status Status, err error) {
	f.status = status
	f.err = err
	close(f.done)
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done. Giving up on the
// wait does not cancel the mutation.
func (f *Future) Wait(ctx context.Context) (Status, error) {
	select {
	case <-f.done:
		return f.status, f.err
	case <-ctx.Done():
		return StatusFailed, ctx.Err()
	}
}

// Result blocks until the future resolves.
func (f *Future) Result() (Status, error) {
	<-f.done
	return f.status, f.err
}

// OK blocks until the future resolves and reports whether it committed.
func (f *Future) OK() bool {
	st, _ := f.Result()
	return st == StatusOK
}
