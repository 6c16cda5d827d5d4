package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{SerialPort: "/dev/ttyAMA0", HTTPAddr: ":8080", SensorPin: 17}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SerialPort != "/dev/ttyAMA0" {
		t.Errorf("Config.SerialPort: got %q", snap.Config.SerialPort)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Updated {
		t.Error("expected Updated=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(firmware.Snapshot{
		Mode:      firmware.ModeSensing,
		Timestamp: 1000,
		ClockSet:  true,
		Previous:  logic.StateOpen,
		Log:       logic.Stats{Stored: 8, Buffered: 3, Capacity: 136},
	})

	snap := tr.Snapshot()
	if !snap.Updated {
		t.Error("expected Updated=true")
	}
	if snap.Machine.Mode != firmware.ModeSensing {
		t.Errorf("Mode: got %v, want SENSING", snap.Machine.Mode)
	}
	if snap.Machine.Log.Count() != 11 {
		t.Errorf("Log.Count: got %d, want 11", snap.Machine.Log.Count())
	}
	if want := time.Unix(1000, 0).UTC(); !snap.Clock().Equal(want) {
		t.Errorf("Clock: got %v, want %v", snap.Clock(), want)
	}
}

func TestClockUnset(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(firmware.Snapshot{Mode: firmware.ModeIdle})

	if !tr.Snapshot().Clock().IsZero() {
		t.Error("expected zero clock while unset")
	}
}

func TestSnapshotSetsNow(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now %v not between %v and %v", snap.Now, before, after)
	}
}

func TestUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Minute)}

	if got := snap.Uptime(); got != 90*time.Minute {
		t.Errorf("Uptime: got %v, want 90m", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.Update(firmware.Snapshot{Mode: firmware.ModeSensing, Timestamp: uint32(i)})
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Machine: firmware.Snapshot{
			Mode:      firmware.ModeSensing,
			Timestamp: 1767225600,
			ClockSet:  true,
			Previous:  logic.StateClosed,
			Log:       logic.Stats{Stored: 16, Buffered: 2, Dropped: 1, Capacity: 136},
			IRQDrops:  4,
		},
		Updated:   true,
		StartTime: start,
		Now:       start.Add(125 * time.Second),
		Config:    Config{Chip: "gpiochip0", SensorPin: 17, PresencePin: 27, HTTPAddr: ":8080"},
	}

	var out StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := out.Status

	if s.Mode != "SENSING" {
		t.Errorf("mode: got %q", s.Mode)
	}
	if s.Mat != "CLOSED" {
		t.Errorf("mat: got %q", s.Mat)
	}
	if !s.ClockSet || s.Clock != "2026-01-01T00:00:00Z" {
		t.Errorf("clock: got set=%v %q", s.ClockSet, s.Clock)
	}
	if s.Log.Count != 18 || s.Log.Stored != 16 || s.Log.Buffered != 2 || s.Log.Dropped != 1 || s.Log.Capacity != 136 {
		t.Errorf("log: got %+v", s.Log)
	}
	if s.IRQDrops != 4 {
		t.Errorf("irq_drops: got %d", s.IRQDrops)
	}
	if s.UptimeSeconds != 125 {
		t.Errorf("uptime_seconds: got %d", s.UptimeSeconds)
	}
	if s.Config.PresencePin != 27 || s.Config.HTTPAddr != ":8080" {
		t.Errorf("config: got %+v", s.Config)
	}
}

func TestFormatJSONBeforeFirstUpdate(t *testing.T) {
	now := time.Now()
	data := FormatJSON(Snapshot{StartTime: now, Now: now})

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["status"]["mode"] != "STARTING" {
		t.Errorf("mode: got %v, want STARTING", raw["status"]["mode"])
	}
	if _, ok := raw["status"]["clock"]; ok {
		t.Error("clock should be omitted while unset")
	}
}
