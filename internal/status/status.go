// Package status provides a thread-safe status tracker for the mat-logger daemon.
// It is designed to be read by HTTP handlers and the metrics loop.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/mat-logger/internal/firmware"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip         string
	SensorPin    int
	PresencePin  int
	SerialPort   string
	StorageImage string
	HTTPAddr     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Machine   firmware.Snapshot
	Updated   bool // false until the first machine snapshot arrives
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Clock returns the logger clock as wall time, or the zero time while unset.
func (s Snapshot) Clock() time.Time {
	if !s.Machine.ClockSet {
		return time.Time{}
	}
	return time.Unix(int64(s.Machine.Timestamp), 0).UTC()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the latest machine snapshot.
// Called from the status loop once per second.
func (t *Tracker) Update(m firmware.Snapshot) {
	t.mu.Lock()
	t.snap.Machine = m
	t.snap.Updated = true
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
