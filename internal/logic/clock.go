package logic

// Clock holds the current epoch timestamp in seconds.
// Zero is reserved to mean "not set"; an unset clock never free-runs.
type Clock struct {
	ts uint32
}

// Timestamp returns the current timestamp. It has no side effects.
func (c *Clock) Timestamp() uint32 {
	return c.ts
}

// IsSet reports whether the clock has been given a time by the host.
func (c *Clock) IsSet() bool {
	return c.ts != 0
}

// Set overwrites the timestamp with its low 31 bits, the width a record
// can carry. A value whose low 31 bits are zero leaves the clock unset.
func (c *Clock) Set(ts uint32) {
	c.ts = ts & TimestampMask
}

// Advance adds delta seconds, but only once the clock is set.
func (c *Clock) Advance(delta uint32) {
	if c.ts == 0 {
		return
	}
	c.ts += delta
}
