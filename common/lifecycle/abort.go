package lifecycle

import (
	"sync"
	"sync/atomic"
)

// AbortController is the process-wide fast-shutdown flag.
//
// The controller is set exactly once, on the first call to Abort; it is never
// reset. The scheduler loop checks Signaled once per iteration, and the
// shutdown path uses it to choose between abrupt and graceful worker
// termination. Collaborators that block may select on Done instead of polling.
//
// Repeated calls to Abort are idempotent no-ops. There is no escalation on a
// second signal; the first one already commits the process to fast shutdown.
type AbortController struct {
	once     sync.Once
	signaled atomic.Bool
	done     chan struct{}
}

// NewAbortController creates a new AbortController and returns a pointer to it.
func NewAbortController() *AbortController {
	return &AbortController{
		done: make(chan struct{}),
	}
}

// Abort sets the abort flag. It returns true if this call was the one that
// set the flag, and false if the flag had already been set.
func (c *AbortController) Abort() bool {
	first := false
	c.once.Do(func() {
		c.signaled.Store(true)
		close(c.done)
		first = true
	})

	return first
}

// Signaled returns true if the abort flag has been set.
func (c *AbortController) Signaled() bool {
	return c.signaled.Load()
}

// Done returns a channel that is closed once the abort flag has been set.
func (c *AbortController) Done() <-chan struct{} {
	return c.done
}
