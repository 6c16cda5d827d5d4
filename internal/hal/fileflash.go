package hal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const wordSize = 4

// FileFlash is a Flash persisted to a file image of little-endian words.
// Reads are served from memory; erase and program write through and sync.
type FileFlash struct {
	mem  *MemFlash
	file *os.File
}

var _ Flash = (*FileFlash)(nil)

// OpenFileFlash opens or creates an image of n words at path. A missing or
// short image is padded with erased words.
func OpenFileFlash(path string, n int) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}

	ff := &FileFlash{mem: NewMemFlash(n), file: f}
	if err := ff.load(); err != nil {
		f.Close()
		return nil, err
	}
	return ff, nil
}

func (ff *FileFlash) load() error {
	buf := make([]byte, ff.mem.Len()*wordSize)
	got, err := io.ReadFull(ff.file, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read flash image: %w", err)
	}
	for i := 0; i < got/wordSize; i++ {
		ff.mem.words[i] = binary.LittleEndian.Uint32(buf[i*wordSize:])
	}
	if got < len(buf) {
		return ff.writeAt(got/wordSize, ff.mem.words[got/wordSize:])
	}
	return nil
}

// Erase erases the image.
func (ff *FileFlash) Erase() error {
	if err := ff.mem.Erase(); err != nil {
		return err
	}
	return ff.writeAt(0, ff.mem.words)
}

// Program writes words at start with write-once semantics.
func (ff *FileFlash) Program(start int, words []uint32) error {
	if err := ff.mem.Program(start, words); err != nil {
		return err
	}
	return ff.writeAt(start, words)
}

// Word reads the word at index i.
func (ff *FileFlash) Word(i int) (uint32, error) {
	return ff.mem.Word(i)
}

// Len returns the region size in words.
func (ff *FileFlash) Len() int {
	return ff.mem.Len()
}

// Close closes the image file.
func (ff *FileFlash) Close() error {
	return ff.file.Close()
}

func (ff *FileFlash) writeAt(start int, words []uint32) error {
	buf := make([]byte, len(words)*wordSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*wordSize:], w)
	}
	if _, err := ff.file.WriteAt(buf, int64(start*wordSize)); err != nil {
		return fmt.Errorf("write flash image: %w", err)
	}
	if err := ff.file.Sync(); err != nil {
		return fmt.Errorf("sync flash image: %w", err)
	}
	return nil
}
