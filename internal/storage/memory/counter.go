package memory

import (
	"context"
	"fmt"
	"sync"
)

// Counter is an in-process registration number counter.
type Counter struct {
	mu   sync.Mutex
	next int64
}

// NewCounter returns a counter whose first reservation starts at start.
func NewCounter(start int64) *Counter {
	if start < 1 {
		start = 1
	}
	return &Counter{next: start}
}

func (c *Counter) Reserve(ctx context.Context, count int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, fmt.Errorf("reserve count must be positive, got %d", count)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	first := c.next
	c.next += int64(count)
	return first, nil
}

// Next returns the number the next reservation would start at.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}
