package usecase

import (
	"sync"
	"sync/atomic"
	"time"
)

// sessionClock counts elapsed seconds while an interview is in progress.
// It is owned by one session and torn down on close, reset and completion.
type sessionClock struct {
	interval time.Duration
	elapsed  atomic.Int64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newSessionClock(interval time.Duration) *sessionClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &sessionClock{interval: interval}
}

// Start resumes counting from the given value. onTick, when set, runs on the
// clock goroutine after each increment. Starting a running clock is a no-op.
func (c *sessionClock) Start(from int, onTick func(elapsed int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.elapsed.Store(int64(from))
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done, onTick)
}

func (c *sessionClock) run(stop <-chan struct{}, done chan<- struct{}, onTick func(int)) {
	defer close(done)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			v := int(c.elapsed.Add(1))
			if onTick != nil {
				onTick(v)
			}
		}
	}
}

// Stop halts the clock and waits for the goroutine to exit. It is idempotent.
// It must not be called from inside onTick.
func (c *sessionClock) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the clock goroutine is active.
func (c *sessionClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Elapsed returns the current count.
func (c *sessionClock) Elapsed() int { return int(c.elapsed.Load()) }
