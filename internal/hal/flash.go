package hal

import (
	"errors"
	"fmt"
)

// ErasedWord is the value of a flash word after erase.
const ErasedWord uint32 = 0xFFFFFFFF

var (
	// ErrNotErased is returned when programming over a word that was not erased.
	ErrNotErased = errors.New("flash word not erased")
	// ErrOutOfRange is returned for an access outside the region.
	ErrOutOfRange = errors.New("flash access out of range")
)

// MemFlash is an in-memory Flash with write-once word semantics.
type MemFlash struct {
	words []uint32

	// Erases and Programs count calls, for tests and status.
	Erases   int
	Programs int
}

var _ Flash = (*MemFlash)(nil)

// NewMemFlash creates an erased region of n words.
func NewMemFlash(n int) *MemFlash {
	f := &MemFlash{words: make([]uint32, n)}
	f.fill()
	return f
}

func (f *MemFlash) fill() {
	for i := range f.words {
		f.words[i] = ErasedWord
	}
}

// Erase sets every word to ErasedWord.
func (f *MemFlash) Erase() error {
	f.fill()
	f.Erases++
	return nil
}

// Program writes words at start. Every target word must be erased; on
// error nothing is written.
func (f *MemFlash) Program(start int, words []uint32) error {
	if err := f.check(start, len(words)); err != nil {
		return err
	}
	for i := range words {
		if f.words[start+i] != ErasedWord {
			return fmt.Errorf("program word %d: %w", start+i, ErrNotErased)
		}
	}
	copy(f.words[start:], words)
	f.Programs++
	return nil
}

// Word reads the word at index i.
func (f *MemFlash) Word(i int) (uint32, error) {
	if err := f.check(i, 1); err != nil {
		return 0, err
	}
	return f.words[i], nil
}

// Len returns the region size in words.
func (f *MemFlash) Len() int {
	return len(f.words)
}

func (f *MemFlash) check(start, n int) error {
	if start < 0 || n < 0 || start+n > len(f.words) {
		return fmt.Errorf("words [%d,%d) of %d: %w", start, start+n, len(f.words), ErrOutOfRange)
	}
	return nil
}
