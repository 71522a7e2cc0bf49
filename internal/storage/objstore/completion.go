package objstore

import (
	"context"
	"sync"
)

// Completion is the outcome of a committed transaction.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion creates an unresolved Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns a Completion already resolved with err.
func Completed(err error) *Completion {
	c := NewCompletion()
	c.Resolve(err)
	return c
}

// Resolve settles the completion. Only the first call has an effect.
func (c *Completion) Resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed once the completion is resolved.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the outcome. It is only meaningful after Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the completion resolves or ctx is done. A cancelled
// wait does not cancel the transaction.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
