package firmware

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logic"
)

// Snapshot is a copy of the machine state, safe to read from any goroutine.
type Snapshot struct {
	Mode      Mode
	Timestamp uint32
	ClockSet  bool
	Previous  logic.SensorState
	Log       logic.Stats
	IRQDrops  uint32
}

// Machine is the logger state machine. Create with New, arm with Start,
// then drive with Run (or Dispatch in tests).
type Machine struct {
	board hal.Board
	irq   *hal.Controller

	clock    logic.Clock
	log      *logic.EventLog
	recorder *logic.Recorder
	proto    protocol

	mode         Mode
	stableTicks  int
	clearedOnce  bool
	logFullNoted bool

	handlers [hal.NumSources]func(hal.Event)

	mu   sync.RWMutex
	snap Snapshot
}

// New builds a machine over board and irq and restores any log that
// survived in the board's flash.
func New(board hal.Board, irq *hal.Controller) (*Machine, error) {
	if err := board.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{board: board, irq: irq}

	eventLog, err := logic.NewEventLog(guardedFlash{Flash: board.Flash, irq: irq})
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	restored, err := eventLog.Restore()
	if err != nil {
		return nil, fmt.Errorf("restore event log: %w", err)
	}
	if restored > 0 {
		log.Info().Int("records", restored).Msg("Restored event log from storage")
	}

	m.log = eventLog
	m.recorder = logic.NewRecorder(&m.clock, eventLog)
	m.handlers = [hal.NumSources]func(hal.Event){
		hal.SourcePresenceEdge: m.onPresence,
		hal.SourceTick:         m.onTick,
		hal.SourceByteReceived: m.onByte,
	}
	m.publish()
	return m, nil
}

// Start arms the machine: Idle with the clock unset, Sensing otherwise.
func (m *Machine) Start() {
	m.enterIdleOrSensing()
	m.publish()
}

// Dispatch runs the handler for one event.
func (m *Machine) Dispatch(ev hal.Event) {
	if ev.Source < hal.NumSources {
		m.handlers[ev.Source](ev)
	}
	m.publish()
}

// Mode returns the current mode. Only call from the handler goroutine;
// other goroutines use Snapshot.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Snapshot returns the state as of the last dispatched event.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Machine) publish() {
	s := Snapshot{
		Mode:      m.mode,
		Timestamp: m.clock.Timestamp(),
		ClockSet:  m.clock.IsSet(),
		Previous:  m.recorder.Previous(),
		Log:       m.log.Stats(),
		IRQDrops:  m.irq.Drops(),
	}
	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
}

func (m *Machine) setMode(next Mode) {
	if next != m.mode {
		log.Debug().Stringer("from", m.mode).Stringer("to", next).Msg("Mode transition")
	}
	m.mode = next
	m.stableTicks = 0
}

// armTimer reprograms the shared timer: disable its interrupt, stop,
// reprogram, clear stale ticks, re-enable, start.
func (m *Machine) armTimer(cfg hal.TimerConfig) {
	m.irq.Disable(hal.SourceTick)
	m.board.Timer.Stop()
	m.board.Timer.Configure(cfg)
	m.irq.ClearPending(hal.SourceTick)
	m.irq.Enable(hal.SourceTick)
	m.board.Timer.Start()
}

func (m *Machine) stopTimer() {
	m.irq.Disable(hal.SourceTick)
	m.board.Timer.Stop()
}

func (m *Machine) armPresence() {
	m.irq.ClearPending(hal.SourcePresenceEdge)
	m.irq.Enable(hal.SourcePresenceEdge)
}

// enterIdleOrSensing is the dispatch after power-up and after a link closes.
// Sensing is never entered with the clock unset.
func (m *Machine) enterIdleOrSensing() {
	if !m.clock.IsSet() {
		m.setMode(ModeIdle)
		m.stopTimer()
		m.armPresence()
		return
	}

	m.setMode(ModeSensing)
	m.recorder.Reset()
	m.logFullNoted = false
	if !m.clearedOnce {
		m.clearLog()
	}
	m.armPresence()
	m.armTimer(sensingTimer)
}

func (m *Machine) startAwaitingLink() {
	m.irq.Disable(hal.SourcePresenceEdge)
	m.setMode(ModeAwaitingLink)
	m.armTimer(awaitLinkTimer)
}

func (m *Machine) startCommunicating() {
	m.stopTimer()
	m.setMode(ModeCommunicating)
	m.proto.reset()

	if err := m.board.Serial.Enable(); err != nil {
		log.Error().Err(err).Msg("Failed to enable serial")
	}
	m.irq.ClearPending(hal.SourceByteReceived)
	m.irq.Enable(hal.SourceByteReceived)
	// A falling presence line that stays low ends the session without a
	// clock update.
	m.armPresence()
}

func (m *Machine) startLinkClosing() {
	m.irq.Disable(hal.SourceByteReceived)
	m.irq.Disable(hal.SourcePresenceEdge)
	if err := m.board.Serial.Disable(); err != nil {
		log.Error().Err(err).Msg("Failed to disable serial")
	}
	m.setMode(ModeLinkClosing)
	m.armTimer(linkClosingTimer)
}

// clearLog erases the log with the tick interrupt masked.
func (m *Machine) clearLog() {
	defer m.irq.Mask(hal.SourceTick)()
	if err := m.log.Clear(); err != nil {
		log.Error().Err(err).Msg("Failed to clear event log")
		return
	}
	m.clearedOnce = true
	m.logFullNoted = false
	log.Debug().Msg("Event log cleared")
}

func (m *Machine) onPresence(ev hal.Event) {
	switch m.mode {
	case ModeIdle, ModeSensing:
		if ev.Level {
			m.startAwaitingLink()
		}
	case ModeCommunicating:
		if !ev.Level {
			m.startDropCheck()
		}
	}
}

// startDropCheck times a falling presence line during a session. The
// session only ends if the line stays low for dropStableTicks.
func (m *Machine) startDropCheck() {
	if m.irq.Enabled(hal.SourceTick) {
		return
	}
	m.stableTicks = 0
	m.armTimer(dropCheckTimer)
}

func (m *Machine) onTick(hal.Event) {
	switch m.mode {
	case ModeAwaitingLink:
		present, ok := m.readPresence()
		if !ok {
			return
		}
		if !present {
			m.stableTicks = 0
			return
		}
		m.stableTicks++
		if m.stableTicks >= linkStableTicks {
			m.startCommunicating()
		}

	case ModeCommunicating:
		present, ok := m.readPresence()
		if !ok {
			return
		}
		if present {
			log.Debug().Msg("Presence glitch ignored")
			m.stableTicks = 0
			m.stopTimer()
			return
		}
		m.stableTicks++
		if m.stableTicks >= dropStableTicks {
			log.Info().Msg("Link dropped before clock update")
			m.startLinkClosing()
		}

	case ModeLinkClosing:
		m.clock.Advance(linkClosingAdvance)
		present, ok := m.readPresence()
		if !ok {
			return
		}
		if present {
			m.stableTicks = 0
			return
		}
		m.stableTicks++
		if m.stableTicks >= releaseStableTicks {
			m.enterIdleOrSensing()
		}

	case ModeSensing:
		m.clock.Advance(sensingAdvance)
		m.sample()
	}
}

func (m *Machine) sample() {
	level, err := m.board.Pins.Sensor()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read sensor pin")
		return
	}

	rec, changed, err := m.recorder.RecordIfChanged(level)
	switch {
	case !changed:
	case errors.Is(err, logic.ErrLogFull):
		if !m.logFullNoted {
			log.Warn().Stringer("record", rec).Msg("Event log full, dropping records")
			m.logFullNoted = true
		}
	case err != nil:
		log.Error().Err(err).Stringer("record", rec).Msg("Failed to store record")
	default:
		log.Debug().Stringer("state", rec.State()).Uint32("timestamp", rec.Timestamp()).Msg("Recorded transition")
	}
}

func (m *Machine) readPresence() (bool, bool) {
	present, err := m.board.Pins.Presence()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read presence pin")
		return false, false
	}
	return present, true
}

// guardedFlash masks the tick interrupt for the duration of every erase
// and program.
type guardedFlash struct {
	hal.Flash
	irq *hal.Controller
}

func (g guardedFlash) Erase() error {
	defer g.irq.Mask(hal.SourceTick)()
	return g.Flash.Erase()
}

func (g guardedFlash) Program(start int, words []uint32) error {
	defer g.irq.Mask(hal.SourceTick)()
	if err := g.Flash.Program(start, words); err != nil {
		return err
	}
	log.Debug().Int("start", start).Int("words", len(words)).Msg("Flushed buffer to storage")
	return nil
}
