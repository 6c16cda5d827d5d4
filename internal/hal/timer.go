package hal

import (
	"sync"
	"time"
)

// TickerTimer is a Timer that raises SourceTick on a Controller from a
// goroutine driven by time.Ticker.
type TickerTimer struct {
	irq *Controller

	mu   sync.Mutex
	cfg  TimerConfig
	stop chan struct{}
	done chan struct{}
}

var _ Timer = (*TickerTimer)(nil)

// NewTickerTimer creates a stopped timer raising ticks on irq.
func NewTickerTimer(irq *Controller) *TickerTimer {
	return &TickerTimer{irq: irq}
}

// Configure sets the period used by the next Start.
func (t *TickerTimer) Configure(cfg TimerConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// Start begins ticking. A running timer is left alone.
func (t *TickerTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	d := t.cfg.Duration()
	if d <= 0 {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(d, t.stop, t.done)
}

// Stop halts the timer and waits for the tick goroutine to exit, so no
// tick is raised after Stop returns. Safe to call when stopped.
func (t *TickerTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
}

// Running reports whether the timer is ticking.
func (t *TickerTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *TickerTimer) run(d time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A tick taken just as Stop closes stop is discarded.
			select {
			case <-stop:
				return
			default:
			}
			t.irq.Raise(Event{Source: SourceTick})
		}
	}
}
