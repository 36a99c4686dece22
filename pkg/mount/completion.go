package mount

import (
	"context"
	"sync"
)

// Completion is a one-shot, multi-waiter notification primitive used to
// report asynchronous teardown finishing.
//
// It transitions exactly once from pending to fulfilled. Every waiter,
// including one that subscribes after fulfillment, observes the same
// outcome; there is no missed-wakeup race because waiters block on a
// channel that is closed at fulfillment time.
type Completion struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// fulfill records the outcome and wakes all waiters. Only the first call
// has any effect.
func (c *Completion) fulfill(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Done returns a channel that is closed when the completion is fulfilled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion is fulfilled or the context is
// cancelled. It returns the teardown outcome, or the context error if the
// caller gave up first. Giving up does not cancel the underlying teardown.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the recorded outcome. It is only meaningful once Done() is
// closed; before fulfillment it returns nil.
func (c *Completion) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
