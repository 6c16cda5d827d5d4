package firmware

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logic"
)

// withRecords returns a harness in Communicating holding n recorded transitions.
func withRecords(t *testing.T, n int) (*harness, []logic.Record) {
	t.Helper()
	h := newHarness(t)
	h.connect()
	h.setClock(5000)
	h.release()

	var recs []logic.Record
	level := true
	for i := 0; i < n; i++ {
		h.sense(level)
		r, err := h.m.log.At(i)
		require.NoError(t, err)
		recs = append(recs, r)
		level = !level
	}
	h.connect()
	return h, recs
}

func TestProtocolCountAndNext(t *testing.T) {
	h, recs := withRecords(t, 3)

	h.send(CmdCount)
	assert.Equal(t, []byte{0x03, 0x00}, h.fb.TakeTX())

	for i, want := range recs {
		h.send(CmdNextRecord)
		tx := h.fb.TakeTX()
		require.Len(t, tx, 4, "record %d", i)
		assert.Equal(t, uint32(want), binary.LittleEndian.Uint32(tx))
	}

	h.send(CmdNextRecord)
	assert.Empty(t, h.fb.TakeTX(), "read past count yields no response")

	// Count resets the cursor
	h.send(CmdCount, CmdNextRecord)
	tx := h.fb.TakeTX()
	require.Len(t, tx, 6)
	assert.Equal(t, uint32(recs[0]), binary.LittleEndian.Uint32(tx[2:]))
}

func TestProtocolRecordEncoding(t *testing.T) {
	h, recs := withRecords(t, 1)
	require.Equal(t, logic.StateOpen, recs[0].State())

	h.send(CmdCount, CmdNextRecord)
	tx := h.fb.TakeTX()
	require.Len(t, tx, 6)
	assert.Equal(t, byte(0x80), tx[5]&0x80, "top bit carries the open state")
}

func TestProtocolCountAcrossTiers(t *testing.T) {
	h, recs := withRecords(t, logic.BufferCapacity+3)

	h.send(CmdCount)
	assert.Equal(t, []byte{byte(len(recs)), 0}, h.fb.TakeTX())
	for _, want := range recs {
		h.send(CmdNextRecord)
		assert.Equal(t, uint32(want), binary.LittleEndian.Uint32(h.fb.TakeTX()))
	}
}

func TestProtocolReset(t *testing.T) {
	h, _ := withRecords(t, 3)
	erases := h.fb.Flash.Erases

	h.send(CmdReset)
	assert.Equal(t, []byte{Ack}, h.fb.TakeTX())
	assert.Equal(t, erases+1, h.fb.Flash.Erases)
	assert.False(t, h.irq.Enabled(hal.SourceTick), "mask must not arm the stopped timer")

	h.send(CmdCount)
	assert.Equal(t, []byte{0, 0}, h.fb.TakeTX())
	h.send(CmdNextRecord)
	assert.Empty(t, h.fb.TakeTX())
}

func TestProtocolIgnoresUnknownBytes(t *testing.T) {
	h := newHarness(t)
	h.connect()

	h.send('x', 0x00, 0xFF, '\n', 'Q')
	assert.Empty(t, h.fb.TakeTX())
	assert.Equal(t, ModeCommunicating, h.m.Mode())
}

func TestProtocolTimestampBytesAreNotCommands(t *testing.T) {
	h := newHarness(t)
	h.connect()

	// 'd' and 'r' inside the timestamp must not be interpreted
	h.send(CmdSetClock, CmdCount, CmdReset, 0x00, 0x00)
	assert.Equal(t, []byte{Ack}, h.fb.TakeTX())
	assert.Equal(t, uint32(CmdCount)|uint32(CmdReset)<<8, h.m.clock.Timestamp())
	assert.Zero(t, h.fb.Flash.Erases)
}

func TestBytesIgnoredOutsideSession(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.fire(hal.Event{Source: hal.SourceByteReceived, Byte: CmdCount}))

	// Dispatched directly, the handler still refuses outside Communicating
	h.m.Dispatch(hal.Event{Source: hal.SourceByteReceived, Byte: CmdCount})
	assert.Empty(t, h.fb.TakeTX())
}

func TestWriteErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.fb.WriteError = assert.AnError

	h.send(CmdCount)
	assert.Empty(t, h.fb.TakeTX())
	assert.Equal(t, ModeCommunicating, h.m.Mode())
}
