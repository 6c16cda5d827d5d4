// Package link is the host side of the logger's serial protocol.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/logic"
	"github.com/sweeney/mat-logger/internal/serialport"
)

// DefaultTimeout is how long to wait for each response.
const DefaultTimeout = 500 * time.Millisecond

var (
	// ErrNoResponse is returned when the logger stays silent. After Count,
	// a silent Next means the end of the log.
	ErrNoResponse = errors.New("no response from logger")
	// ErrBadAck is returned when an acknowledgement byte is wrong.
	ErrBadAck = errors.New("unexpected acknowledgement")
	// ErrIncomplete is returned by ReadAll when fewer records arrive than
	// the logger counted.
	ErrIncomplete = errors.New("incomplete download")
)

// Client speaks the command protocol over a byte stream. Responses are
// read by a background goroutine so every read can time out.
type Client struct {
	w       io.Writer
	closer  io.Closer
	timeout time.Duration

	rx   chan byte
	errc chan error
}

// NewClient starts a client over rw. If rw is an io.Closer, Close closes it.
func NewClient(rw io.ReadWriter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		w:       rw,
		timeout: timeout,
		rx:      make(chan byte, 256),
		errc:    make(chan error, 1),
	}
	if cl, ok := rw.(io.Closer); ok {
		c.closer = cl
	}
	go c.pump(rw)
	return c
}

// Open opens a serial device and starts a client on it.
func Open(port string, baud int, timeout time.Duration) (*Client, error) {
	if baud == 0 {
		baud = serialport.DefaultBaudRate
	}
	conn, err := serialport.OpenSerial(port, baud)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	// Short read timeout keeps the pump responsive; the client applies its own.
	if err := conn.SetReadTimeout(50 * time.Millisecond); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return NewClient(conn, timeout), nil
}

func (c *Client) pump(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			c.rx <- b
		}
		if err != nil {
			c.errc <- err
			close(c.rx)
			return
		}
	}
}

// Close closes the underlying stream if it can be closed.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Count asks for the number of records and rewinds the read cursor.
func (c *Client) Count() (int, error) {
	b, err := c.command(firmware.CmdCount, 2)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// Next reads the record at the cursor. ErrNoResponse means the end of the log.
func (c *Client) Next() (logic.Record, error) {
	b, err := c.command(firmware.CmdNextRecord, 4)
	if err != nil {
		return 0, fmt.Errorf("next: %w", err)
	}
	return logic.Record(binary.LittleEndian.Uint32(b)), nil
}

// ReadAll downloads the whole log. If the logger goes silent before every
// counted record has arrived, the records read so far are returned with an
// error wrapping ErrIncomplete.
func (c *Client) ReadAll() ([]logic.Record, error) {
	n, err := c.Count()
	if err != nil {
		return nil, err
	}

	recs := make([]logic.Record, 0, n)
	for i := 0; i < n; i++ {
		r, err := c.Next()
		if errors.Is(err, ErrNoResponse) {
			log.Warn().Int("expected", n).Int("received", i).Msg("Logger stopped sending records")
			return recs, fmt.Errorf("%w: %d of %d records: %w", ErrIncomplete, i, n, err)
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// Reset clears the logger's log.
func (c *Client) Reset() error {
	if err := c.expectAck(firmware.CmdReset); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// SetClock sends the time and ends the session. The logger replies to the
// command byte only; the timestamp bytes are not acknowledged.
func (c *Client) SetClock(t time.Time) error {
	if err := c.expectAck(firmware.CmdSetClock); err != nil {
		return fmt.Errorf("set clock: %w", err)
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(t.Unix())&logic.TimestampMask)
	if _, err := c.w.Write(b[:]); err != nil {
		return fmt.Errorf("set clock: write timestamp: %w", err)
	}
	return nil
}

func (c *Client) expectAck(cmd byte) error {
	b, err := c.command(cmd, 1)
	if err != nil {
		return err
	}
	if b[0] != firmware.Ack {
		return fmt.Errorf("%w: got %#02x", ErrBadAck, b[0])
	}
	return nil
}

// command discards stale input, sends cmd and reads n response bytes.
func (c *Client) command(cmd byte, n int) ([]byte, error) {
	c.drain()
	if _, err := c.w.Write([]byte{cmd}); err != nil {
		return nil, fmt.Errorf("write command %q: %w", cmd, err)
	}
	return c.read(n)
}

func (c *Client) drain() {
	for {
		select {
		case _, ok := <-c.rx:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) read(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	for len(out) < n {
		select {
		case b, ok := <-c.rx:
			if !ok {
				return nil, c.streamErr()
			}
			out = append(out, b)
		case <-deadline.C:
			return nil, ErrNoResponse
		}
	}
	return out, nil
}

func (c *Client) streamErr() error {
	select {
	case err := <-c.errc:
		c.errc <- err
		return fmt.Errorf("read: %w", err)
	default:
		return fmt.Errorf("read: %w", io.ErrClosedPipe)
	}
}
