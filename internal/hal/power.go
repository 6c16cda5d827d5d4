package hal

import "github.com/rs/zerolog/log"

// LogPower is the Power of boards without a halt instruction. Idle returns
// immediately; the main loop then blocks on the Controller instead.
// Changes of level are logged at debug.
type LogPower struct {
	last  PowerLevel
	valid bool
}

var _ Power = (*LogPower)(nil)

// Idle records the requested level.
func (p *LogPower) Idle(level PowerLevel) {
	if p.valid && p.last == level {
		return
	}
	p.last, p.valid = level, true
	log.Debug().Stringer("level", level).Msg("Power level")
}
