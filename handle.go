package modtree

import (
	"context"
	"sync"
)

// Handle is a one-shot completion signal for a single init or deinit cycle.
// It settles exactly once and is never reused by a later cycle.
type Handle struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func settledHandle(err error) *Handle {
	h := newHandle()
	h.settle(err)
	return h
}

func (h *Handle) settle(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done returns a channel that is closed once the handle settles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Settled reports whether the handle has settled.
func (h *Handle) Settled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the error the handle settled with. It is nil while the handle
// is pending.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the handle settles or ctx is done, whichever is first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
