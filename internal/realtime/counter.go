package realtime

import (
	"context"
	"sync"
	"time"
)

// CountFunc re-derives a count from the backend
type CountFunc func(ctx context.Context) (int, error)

// Counter is a badge count kept live by re-running a CountFunc whenever an
// INSERT or UPDATE arrives on one of its topics.
type Counter struct {
	count   CountFunc
	timeout time.Duration

	mu       sync.Mutex
	started  uint64 // recounts begun
	applied  uint64 // newest recount whose result is stored
	value    int
	err      error
	closed   bool
	onChange func(int)
	subs     Group
}

// WatchCount subscribes before taking the first count so that no change
// between the two is missed.
func (h *Hub) WatchCount(ctx context.Context, topics []Topic, count CountFunc) (*Counter, error) {
	c := &Counter{count: count, timeout: 5 * time.Second}

	subs, err := h.SubscribeAll(topics, func(Event) { c.Refresh(context.Background()) })
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.subs = subs
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return c, nil
}

// OnChange registers fn to receive every new value
func (c *Counter) OnChange(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Refresh recounts now. A failed recount keeps the last known value, and a
// recount that began before the stored one is discarded.
func (c *Counter) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	c.started++
	attempt := c.started
	c.mu.Unlock()

	n, err := c.count(ctx)

	c.mu.Lock()
	if c.closed || attempt < c.applied {
		c.mu.Unlock()
		return nil
	}
	c.err = err
	if err != nil {
		c.mu.Unlock()
		log.Warn("Recount failed: %v", err)
		return err
	}
	changed := n != c.value
	c.value = n
	c.applied = attempt
	fn := c.onChange
	c.mu.Unlock()

	if changed && fn != nil {
		fn(n)
	}
	return nil
}

func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Err returns the error of the last recount, if it failed
func (c *Counter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Counter) Close() {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.mu.Unlock()

	subs.Unsubscribe()
}
