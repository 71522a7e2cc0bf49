package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds the hooks when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Hook is a cleanup function. It should return before ctx is done.
type Hook func(ctx context.Context) error

// Handler runs registered hooks in reverse order, once.
type Handler struct {
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	once sync.Once
	err  error
	done chan struct{}
}

// NewHandler creates a handler. timeout <= 0 uses DefaultTimeout.
func NewHandler(timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a hook. Hooks run in reverse order of
// registration.
func (h *Handler) OnShutdown(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Shutdown runs the hooks. Later calls wait for the first and return
// its result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]Hook(nil), h.hooks...)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})
	<-h.done
	return h.err
}

// Watch runs Shutdown when SIGINT or SIGTERM arrives or ctx is done.
// The returned stop function detaches the signal handler without
// running the hooks.
func (h *Handler) Watch(ctx context.Context) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	detach := make(chan struct{})
	var once sync.Once

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			_ = h.Shutdown()
		case <-ctx.Done():
			_ = h.Shutdown()
		case <-detach:
		case <-h.done:
		}
	}()
	return func() { once.Do(func() { close(detach) }) }
}

// Done closes once the hooks have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
