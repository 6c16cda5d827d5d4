package firmware

import (
	"encoding/binary"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/hal"
)

// Command bytes accepted during a link session.
const (
	CmdSetClock   byte = 'q'
	CmdReset      byte = 'r'
	CmdCount      byte = 'd'
	CmdNextRecord byte = 'e'

	// Ack acknowledges CmdSetClock and CmdReset.
	Ack byte = '!'
)

// timestampLen is the number of little-endian bytes following CmdSetClock.
const timestampLen = 4

// protocol is the per-session state of the command handler.
type protocol struct {
	receivingTimestamp bool
	received           int
	acc                uint32
	cursor             int
}

func (p *protocol) reset() {
	*p = protocol{}
}

func (m *Machine) onByte(ev hal.Event) {
	if m.mode != ModeCommunicating {
		return
	}
	p := &m.proto

	if p.receivingTimestamp {
		p.acc |= uint32(ev.Byte) << (8 * p.received)
		p.received++
		if p.received < timestampLen {
			return
		}
		m.clock.Set(p.acc)
		p.receivingTimestamp = false
		log.Info().Uint32("timestamp", p.acc).Msg("Clock set by host")
		m.startLinkClosing()
		return
	}

	switch ev.Byte {
	case CmdSetClock:
		p.receivingTimestamp = true
		p.received = 0
		p.acc = 0
		m.send(Ack)

	case CmdReset:
		m.clearLog()
		m.send(Ack)

	case CmdCount:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(m.log.Count()))
		m.send(b[:]...)
		p.cursor = 0

	case CmdNextRecord:
		if p.cursor >= m.log.Count() {
			return
		}
		rec, err := m.log.At(p.cursor)
		if err != nil {
			log.Error().Err(err).Int("index", p.cursor).Msg("Failed to read record")
			return
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(rec))
		m.send(b[:]...)
		p.cursor++

	default:
		log.Debug().Uint8("byte", ev.Byte).Msg("Ignoring unknown command")
	}
}

func (m *Machine) send(bs ...byte) {
	for _, b := range bs {
		if err := m.board.Serial.WriteByte(b); err != nil {
			log.Error().Err(err).Msg("Failed to write serial byte")
			return
		}
	}
}
