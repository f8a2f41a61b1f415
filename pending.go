package marionette

import (
	"context"
	"fmt"
	"sync"
)

// pending is a single-resolution slot for one outstanding query command.
// The worker goroutine resolves it exactly once; the issuing caller waits
// on done. A caller that stops waiting (context cancellation) simply never
// reads the slot; the worker still resolves and discards it.
type pending struct {
	done  chan struct{}
	value any
	err   error
}

// correlator maps outstanding request IDs to pending result slots. It is
// the only queue state besides the command channel touched by both caller
// goroutines (add, wait) and the worker (resolve, fail).
type correlator struct {
	mu      sync.Mutex
	pending map[uint64]*pending
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[uint64]*pending)}
}

// add registers a slot for req. Called by the enqueuing goroutine before
// the command is visible to the worker.
func (c *correlator) add(req uint64) *pending {
	p := &pending{done: make(chan struct{})}
	c.mu.Lock()
	c.pending[req] = p
	c.mu.Unlock()
	return p
}

// resolve completes req with a value or error and removes it from the
// outstanding set. Resolving an already-resolved or unknown request is an
// internal invariant violation and panics with ErrDuplicateCompletion.
func (c *correlator) resolve(req uint64, value any, err error) {
	c.mu.Lock()
	p, ok := c.pending[req]
	delete(c.pending, req)
	c.mu.Unlock()

	if !ok {
		panic(fmt.Errorf("request %d: %w", req, ErrDuplicateCompletion))
	}
	p.value = value
	p.err = err
	close(p.done)
}

// failAll resolves every outstanding request with err. Called once during
// teardown so no caller hangs on a query the worker will never execute.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	outstanding := c.pending
	c.pending = make(map[uint64]*pending)
	c.mu.Unlock()

	for _, p := range outstanding {
		p.err = err
		close(p.done)
	}
}

// outstanding reports the number of unresolved requests.
func (c *correlator) outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// wait blocks until p resolves or ctx is done, whichever comes first.
func (p *pending) wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
