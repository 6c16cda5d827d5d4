package logic

import (
	"errors"
	"fmt"
)

// Default tier sizes.
const (
	BufferCapacity  = 8
	StorageCapacity = 128
)

// erasedWord is the value of a storage word after erase.
const erasedWord uint32 = 0xFFFFFFFF

var (
	// ErrLogFull is returned by Append when both tiers are full.
	ErrLogFull = errors.New("event log full")
	// ErrOutOfRange is returned by At for an index past the record count.
	ErrOutOfRange = errors.New("record index out of range")
)

// Storage is the non-volatile tier: one erasable block of write-once 32-bit words.
type Storage interface {
	// Erase sets every word to the erased value.
	Erase() error
	// Program writes words starting at index start. Target words must be erased.
	Program(start int, words []uint32) error
	// Word reads the word at index i.
	Word(i int) (uint32, error)
	// Len returns the number of words in the region.
	Len() int
}

// EventLog is an append-only sequence of Records split over a RAM buffer
// and a Storage region. The buffer is flushed to storage as a whole.
// Once both tiers are full, new records are dropped; old data is never overwritten.
//
// EventLog is not safe for concurrent use.
type EventLog struct {
	storage  Storage
	buf      [BufferCapacity]Record
	buffered int
	stored   int
	dropped  int
}

// NewEventLog creates an event log over storage. The storage length must be
// a non-zero multiple of BufferCapacity.
func NewEventLog(storage Storage) (*EventLog, error) {
	n := storage.Len()
	if n <= 0 || n%BufferCapacity != 0 {
		return nil, fmt.Errorf("storage length %d is not a multiple of buffer capacity %d", n, BufferCapacity)
	}
	return &EventLog{storage: storage}, nil
}

// Append adds a record. If the buffer is full and storage has room for a
// whole buffer, the buffer is flushed first. Returns ErrLogFull when the
// record had to be dropped.
func (l *EventLog) Append(r Record) error {
	if l.buffered == BufferCapacity && l.stored+BufferCapacity <= l.storage.Len() {
		if err := l.flush(); err != nil {
			l.dropped++
			return err
		}
	}
	if l.buffered == BufferCapacity {
		l.dropped++
		return ErrLogFull
	}
	l.buf[l.buffered] = r
	l.buffered++
	return nil
}

// flush programs the whole buffer into the next free storage slots in one call.
func (l *EventLog) flush() error {
	words := make([]uint32, BufferCapacity)
	for i, r := range l.buf {
		words[i] = uint32(r)
	}
	if err := l.storage.Program(l.stored, words); err != nil {
		return fmt.Errorf("flush buffer at %d: %w", l.stored, err)
	}
	l.stored += BufferCapacity
	l.buffered = 0
	return nil
}

// Clear resets both tiers and erases storage.
func (l *EventLog) Clear() error {
	l.stored = 0
	l.buffered = 0
	l.dropped = 0
	if err := l.storage.Erase(); err != nil {
		return fmt.Errorf("erase storage: %w", err)
	}
	return nil
}

// Restore re-derives the stored count from a storage image written by a
// previous run: leading non-erased words, rounded down to whole buffers.
// The RAM buffer starts empty. Returns the restored count.
//
// A record equal to the erased value cannot be told apart from free space.
func (l *EventLog) Restore() (int, error) {
	n := 0
	for ; n < l.storage.Len(); n++ {
		w, err := l.storage.Word(n)
		if err != nil {
			return 0, fmt.Errorf("read storage word %d: %w", n, err)
		}
		if w == erasedWord {
			break
		}
	}
	l.stored = n - n%BufferCapacity
	l.buffered = 0
	return l.stored, nil
}

// Count returns the total number of records in both tiers.
func (l *EventLog) Count() int {
	return l.stored + l.buffered
}

// At returns the record at logical index i. Storage comes first, then the buffer.
func (l *EventLog) At(i int) (Record, error) {
	switch {
	case i < 0 || i >= l.Count():
		return 0, ErrOutOfRange
	case i < l.stored:
		w, err := l.storage.Word(i)
		if err != nil {
			return 0, fmt.Errorf("read storage word %d: %w", i, err)
		}
		return Record(w), nil
	default:
		return l.buf[i-l.stored], nil
	}
}

// Stats returns the occupancy of both tiers.
func (l *EventLog) Stats() Stats {
	return Stats{
		Stored:   l.stored,
		Buffered: l.buffered,
		Dropped:  l.dropped,
		Capacity: l.storage.Len() + BufferCapacity,
	}
}
