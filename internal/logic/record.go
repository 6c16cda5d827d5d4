package logic

import (
	"fmt"
	"time"
)

// TimestampMask selects the 31 timestamp bits of a Record.
const TimestampMask uint32 = 0x7FFFFFFF

const stateBit uint32 = 1 << 31

// Record is one logged transition, packed into a 32-bit word:
// bit 31 = sensor state (1 = Open), bits 0..30 = timestamp.
// This is both the storage format and the wire format.
type Record uint32

// Encode packs a state and timestamp into a Record.
// The timestamp is masked to 31 bits; any state other than Open encodes as Closed.
func Encode(state SensorState, timestamp uint32) Record {
	r := timestamp & TimestampMask
	if state == StateOpen {
		r |= stateBit
	}
	return Record(r)
}

// State returns the sensor state held in the record.
func (r Record) State() SensorState {
	if uint32(r)&stateBit != 0 {
		return StateOpen
	}
	return StateClosed
}

// Timestamp returns the 31-bit timestamp held in the record.
func (r Record) Timestamp() uint32 {
	return uint32(r) & TimestampMask
}

// Time interprets the timestamp as seconds since the Unix epoch.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp()), 0).UTC()
}

func (r Record) String() string {
	return fmt.Sprintf("%s@%d", r.State(), r.Timestamp())
}
