package hal

import (
	"context"
	"sync/atomic"
)

// DefaultQueueDepth is the number of raised events that can wait for the main loop.
const DefaultQueueDepth = 64

// Controller is a software interrupt controller. Board code raises events
// from any goroutine (the ISR side); the main loop waits for them one at a
// time. Each source has an enable bit and a pending generation: disabling
// or clearing a source invalidates every event it raised before, so a
// stale event never reaches a handler.
//
// Raise never blocks and takes no locks, so it is safe to call from a
// TinyGo interrupt handler.
type Controller struct {
	enabled [NumSources]atomic.Bool
	gen     [NumSources]atomic.Uint32
	queue   chan Event
	drops   atomic.Uint32
}

// NewController creates a controller with every source disabled.
func NewController(depth int) *Controller {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Controller{queue: make(chan Event, depth)}
}

// Enable arms a source.
func (c *Controller) Enable(src Source) {
	c.enabled[src].Store(true)
}

// Disable disarms a source and discards its pending events.
func (c *Controller) Disable(src Source) {
	c.enabled[src].Store(false)
	c.gen[src].Add(1)
}

// ClearPending discards pending events without changing the enable bit.
func (c *Controller) ClearPending(src Source) {
	c.gen[src].Add(1)
}

// Enabled reports whether a source is armed.
func (c *Controller) Enabled(src Source) bool {
	return c.enabled[src].Load()
}

// Mask disables a source and returns a func restoring its prior enable
// state. Events raised while masked are lost.
//
//	defer irq.Mask(hal.SourceTick)()
func (c *Controller) Mask(src Source) (restore func()) {
	was := c.enabled[src].Swap(false)
	c.gen[src].Add(1)
	return func() {
		if was {
			c.enabled[src].Store(true)
		}
	}
}

// Raise queues an event. It returns false when the source is disabled or
// the queue is full; full-queue drops are counted.
func (c *Controller) Raise(ev Event) bool {
	if ev.Source >= NumSources || !c.enabled[ev.Source].Load() {
		return false
	}
	ev.gen = c.gen[ev.Source].Load()
	select {
	case c.queue <- ev:
		return true
	default:
		c.drops.Add(1)
		return false
	}
}

// Wait blocks until a live event arrives or ctx is done.
func (c *Controller) Wait(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case ev := <-c.queue:
			if c.live(ev) {
				return ev, nil
			}
		}
	}
}

// Poll returns the next live event without blocking.
func (c *Controller) Poll() (Event, bool) {
	for {
		select {
		case ev := <-c.queue:
			if c.live(ev) {
				return ev, true
			}
		default:
			return Event{}, false
		}
	}
}

// Drops returns the number of events lost to a full queue.
func (c *Controller) Drops() uint32 {
	return c.drops.Load()
}

func (c *Controller) live(ev Event) bool {
	return c.enabled[ev.Source].Load() && c.gen[ev.Source].Load() == ev.gen
}
