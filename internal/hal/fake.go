package hal

// FakeBoard is a test double implementing Timer, Serial, Pins and Power,
// with a MemFlash for storage. Pin levels are plain fields; everything the
// core drives is recorded.
type FakeBoard struct {
	SensorLevel   bool
	PresenceLevel bool
	// PinError, if set, is returned by Sensor and Presence.
	PinError error

	TimerConfigs []TimerConfig
	TimerRunning bool
	TimerStarts  int
	TimerStops   int

	SerialEnabled bool
	// WriteError, if set, is returned by WriteByte.
	WriteError error
	TX         []byte

	PowerLevels []PowerLevel

	Flash *MemFlash
}

var (
	_ Timer  = (*FakeBoard)(nil)
	_ Serial = (*FakeBoard)(nil)
	_ Pins   = (*FakeBoard)(nil)
	_ Power  = (*FakeBoard)(nil)
)

// NewFakeBoard creates a fake with an erased flash of n words.
func NewFakeBoard(n int) *FakeBoard {
	return &FakeBoard{Flash: NewMemFlash(n)}
}

// Board returns the fake wired as every collaborator.
func (f *FakeBoard) Board() Board {
	return Board{Timer: f, Serial: f, Pins: f, Flash: f.Flash, Power: f}
}

func (f *FakeBoard) Stop() {
	f.TimerRunning = false
	f.TimerStops++
}

func (f *FakeBoard) Configure(cfg TimerConfig) {
	f.TimerConfigs = append(f.TimerConfigs, cfg)
}

func (f *FakeBoard) Start() {
	f.TimerRunning = true
	f.TimerStarts++
}

// LastTimerConfig returns the most recent Configure argument.
func (f *FakeBoard) LastTimerConfig() TimerConfig {
	if len(f.TimerConfigs) == 0 {
		return TimerConfig{}
	}
	return f.TimerConfigs[len(f.TimerConfigs)-1]
}

func (f *FakeBoard) Enable() error {
	f.SerialEnabled = true
	return nil
}

func (f *FakeBoard) Disable() error {
	f.SerialEnabled = false
	return nil
}

func (f *FakeBoard) WriteByte(b byte) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.TX = append(f.TX, b)
	return nil
}

// TakeTX returns and clears the transmitted bytes.
func (f *FakeBoard) TakeTX() []byte {
	tx := f.TX
	f.TX = nil
	return tx
}

func (f *FakeBoard) Sensor() (bool, error) {
	if f.PinError != nil {
		return false, f.PinError
	}
	return f.SensorLevel, nil
}

func (f *FakeBoard) Presence() (bool, error) {
	if f.PinError != nil {
		return false, f.PinError
	}
	return f.PresenceLevel, nil
}

func (f *FakeBoard) Idle(level PowerLevel) {
	f.PowerLevels = append(f.PowerLevels, level)
}
