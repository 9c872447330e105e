package autofill

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/autofill/pkg/strategy"
)

// Controller is the trigger surface: the first Toggle starts a run, a second
// Toggle while it is running aborts it.
type Controller struct {
	run func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewController returns a controller that starts run on Toggle.
func NewController(run func(ctx context.Context) error) *Controller {
	return &Controller{run: run}
}

// Toggle starts a run and reports true, or cancels the active run and
// reports false.
func (c *Controller) Toggle(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.err = nil

	go func() {
		defer close(done)
		err := c.run(runCtx)
		cancel()

		c.mu.Lock()
		if errors.Is(err, strategy.ErrAborted) || errors.Is(err, context.Canceled) {
			err = nil
		}
		c.err = err
		c.cancel = nil
		c.mu.Unlock()
	}()
	return true
}

// Running reports whether a run is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Wait blocks until the current run ends and returns its error. Aborted
// runs return nil.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
