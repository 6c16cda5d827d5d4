package logic

// Recorder turns sensor samples into log records, one per change of level.
// There is no debounce filter beyond sampling once per Sensing tick.
type Recorder struct {
	clock    *Clock
	log      *EventLog
	previous SensorState
}

// NewRecorder creates a recorder whose previous state is Unknown.
func NewRecorder(clock *Clock, log *EventLog) *Recorder {
	return &Recorder{clock: clock, log: log, previous: StateUnknown}
}

// Reset forgets the previous state so the next sample is always recorded.
func (r *Recorder) Reset() {
	r.previous = StateUnknown
}

// Previous returns the last recorded state.
func (r *Recorder) Previous() SensorState {
	return r.previous
}

// RecordIfChanged appends a record stamped with the current clock when the
// sampled level differs from the previous state. The previous state only
// moves once the record is accepted by the log, so a dropped record is
// retried on the next sample.
// Returns the record and whether a change was seen; err is non-nil when the
// record could not be stored (ErrLogFull or a storage failure).
func (r *Recorder) RecordIfChanged(high bool) (Record, bool, error) {
	state := StateFromLevel(high)
	if state == r.previous {
		return 0, false, nil
	}
	rec := Encode(state, r.clock.Timestamp())
	if err := r.log.Append(rec); err != nil {
		return rec, true, err
	}
	r.previous = state
	return rec, true, nil
}
