package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/gpio"
	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logic"
	"github.com/sweeney/mat-logger/internal/status"
)

type fakeMachine struct {
	mu   sync.Mutex
	snap firmware.Snapshot
}

func (f *fakeMachine) set(s firmware.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeMachine) Snapshot() firmware.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStatusLoopUpdatesTracker(t *testing.T) {
	m := &fakeMachine{}
	m.set(firmware.Snapshot{Mode: firmware.ModeIdle})
	tr := status.NewTracker(time.Now(), status.Config{})

	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		statusLoop(ctx, m, tr, tick)
		close(done)
	}()

	tick <- time.Now()
	waitFor(t, func() bool { return tr.Snapshot().Updated })
	if got := tr.Snapshot().Machine.Mode; got != firmware.ModeIdle {
		t.Errorf("Mode: got %v, want IDLE", got)
	}

	m.set(firmware.Snapshot{
		Mode:     firmware.ModeSensing,
		ClockSet: true,
		Log:      logic.Stats{Stored: 8, Buffered: 2, Capacity: 136},
	})
	tick <- time.Now()
	waitFor(t, func() bool { return tr.Snapshot().Machine.Mode == firmware.ModeSensing })
	if got := tr.Snapshot().Machine.Log.Count(); got != 10 {
		t.Errorf("Log.Count: got %d, want 10", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("statusLoop did not return after cancel")
	}
}

func TestStatusLoopNoTickNoUpdate(t *testing.T) {
	m := &fakeMachine{}
	tr := status.NewTracker(time.Now(), status.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	statusLoop(ctx, m, tr, make(chan time.Time))

	if tr.Snapshot().Updated {
		t.Error("tracker updated without a tick")
	}
}

func TestReportMetricsTracksDropped(t *testing.T) {
	// Metrics are disabled here; only the dropped bookkeeping is observable.
	last := 0
	reportMetrics(firmware.Snapshot{Log: logic.Stats{Dropped: 3}}, &last)
	if last != 3 {
		t.Errorf("lastDropped: got %d, want 3", last)
	}
	reportMetrics(firmware.Snapshot{Log: logic.Stats{Dropped: 0}}, &last)
	if last != 0 {
		t.Errorf("lastDropped after clear: got %d, want 0", last)
	}
}

func TestPrintPins(t *testing.T) {
	r := gpio.NewFakeReader([]gpio.Sample{{Sensor: true, Presence: false}})
	if err := printPins(r); err != nil {
		t.Fatalf("printPins: %v", err)
	}
}

func TestPrintPinsError(t *testing.T) {
	r := gpio.NewFakeReader([]gpio.Sample{{}})
	r.ReadError = errors.New("line busy")
	if err := printPins(r); err == nil {
		t.Error("expected error")
	}
}

func TestFakeReaderIsBoardPins(t *testing.T) {
	// The Linux board wires a gpio.Reader in as hal.Pins.
	var _ hal.Pins = gpio.NewFakeReader(nil)
}
