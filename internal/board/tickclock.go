package board

import (
	"sync/atomic"
	"time"
)

// TickClock is the simulated systick: it fires a handler at a fixed
// interval and counts firings atomically.
type TickClock struct {
	count atomic.Int64
	stop  chan struct{}
}

// NewTickClock creates a clock that is not yet running.
func NewTickClock() *TickClock {
	return &TickClock{stop: make(chan struct{})}
}

// Start begins firing the handler once per interval until Stop.
func (c *TickClock) Start(interval time.Duration, fire func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				fire()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop signals the clock to stop firing.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Count returns the number of firings so far.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
