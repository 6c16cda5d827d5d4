package link

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logic"
)

// pipeSerial is the logger's serial peripheral wired to an io.Pipe.
type pipeSerial struct {
	w *io.PipeWriter
}

func (s pipeSerial) Enable() error  { return nil }
func (s pipeSerial) Disable() error { return nil }
func (s pipeSerial) WriteByte(b byte) error {
	_, err := s.w.Write([]byte{b})
	return err
}

type hostConn struct {
	io.Reader
	io.Writer
}

type linked struct {
	client *Client
	m      *firmware.Machine
	recs   []logic.Record
}

// newLinked runs a logger holding n restored records (n a multiple of the
// buffer size) and opens a session to it.
func newLinked(t *testing.T, n int) *linked {
	t.Helper()

	fb := hal.NewFakeBoard(logic.StorageCapacity)
	var recs []logic.Record
	for i := 0; i < n; i++ {
		r := logic.Encode(logic.SensorState(i%2), uint32(1000+15*i))
		recs = append(recs, r)
		require.NoError(t, fb.Flash.Program(i, []uint32{uint32(r)}))
	}
	fb.PresenceLevel = true

	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()

	irq := hal.NewController(64)
	board := fb.Board()
	board.Serial = pipeSerial{w: devW}
	m, err := firmware.New(board, irq)
	require.NoError(t, err)
	m.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	go func() {
		buf := make([]byte, 16)
		for {
			n, err := devR.Read(buf)
			for _, b := range buf[:n] {
				irq.Raise(hal.Event{Source: hal.SourceByteReceived, Byte: b})
			}
			if err != nil {
				return
			}
		}
	}()

	client := NewClient(hostConn{Reader: hostR, Writer: hostW}, 100*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		hostW.Close()
		devW.Close()
	})

	require.True(t, irq.Raise(hal.Event{Source: hal.SourcePresenceEdge, Level: true}))
	require.Eventually(t, func() bool {
		return m.Snapshot().Mode == firmware.ModeAwaitingLink
	}, time.Second, time.Millisecond)
	irq.Raise(hal.Event{Source: hal.SourceTick})
	irq.Raise(hal.Event{Source: hal.SourceTick})
	require.Eventually(t, func() bool {
		return m.Snapshot().Mode == firmware.ModeCommunicating
	}, time.Second, time.Millisecond)

	return &linked{client: client, m: m, recs: recs}
}

func TestReadAll(t *testing.T) {
	l := newLinked(t, 16)

	got, err := l.client.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, l.recs, got)
}

func TestNextPastEnd(t *testing.T) {
	l := newLinked(t, 8)

	n, err := l.client.Count()
	require.NoError(t, err)
	require.Equal(t, 8, n)
	for i := 0; i < n; i++ {
		_, err := l.client.Next()
		require.NoError(t, err)
	}

	_, err = l.client.Next()
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestReset(t *testing.T) {
	l := newLinked(t, 8)

	require.NoError(t, l.client.Reset())
	n, err := l.client.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := l.client.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSetClockEndsSession(t *testing.T) {
	l := newLinked(t, 0)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.client.SetClock(now))
	require.Eventually(t, func() bool {
		s := l.m.Snapshot()
		return s.Mode == firmware.ModeLinkClosing && s.Timestamp == uint32(now.Unix())
	}, time.Second, time.Millisecond)

	// Session is over: commands go unanswered
	_, err := l.client.Count()
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestBadAck(t *testing.T) {
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	defer hostW.Close()
	defer devW.Close()

	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := devR.Read(buf); err != nil {
				return
			}
			devW.Write([]byte{'?'})
		}
	}()

	c := NewClient(hostConn{Reader: hostR, Writer: hostW}, 100*time.Millisecond)
	assert.ErrorIs(t, c.Reset(), ErrBadAck)
	assert.ErrorIs(t, c.SetClock(time.Now()), ErrBadAck)
}

func TestClosedStream(t *testing.T) {
	hostR, devW := io.Pipe()
	devW.Close()

	c := NewClient(hostConn{Reader: hostR, Writer: io.Discard}, time.Second)
	_, err := c.Count()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResponse)
	assert.NoError(t, c.Close())
}

func TestReadAllIncomplete(t *testing.T) {
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	defer hostW.Close()
	defer devW.Close()

	want := []logic.Record{
		logic.Encode(logic.StateOpen, 1000),
		logic.Encode(logic.StateClosed, 1015),
	}
	// Counts three records but answers only two.
	go func() {
		buf := make([]byte, 1)
		sent := 0
		for {
			if _, err := devR.Read(buf); err != nil {
				return
			}
			switch buf[0] {
			case firmware.CmdCount:
				devW.Write([]byte{3, 0})
			case firmware.CmdNextRecord:
				if sent < len(want) {
					r := uint32(want[sent])
					devW.Write([]byte{byte(r), byte(r >> 8), byte(r >> 16), byte(r >> 24)})
					sent++
				}
			}
		}
	}()

	c := NewClient(hostConn{Reader: hostR, Writer: hostW}, 100*time.Millisecond)
	got, err := c.ReadAll()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Equal(t, want, got)
}
