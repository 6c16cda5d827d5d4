package gpio

import "errors"

// FakeReader is a test double that returns scripted GPIO values.
type FakeReader struct {
	// Samples contains scripted pin levels. Sensor and Presence each walk
	// the list independently, one sample per call.
	Samples []Sample

	// sensorIdx and presenceIdx track each pin's position in Samples
	sensorIdx   int
	presenceIdx int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Sensor and Presence
	ReadError error
}

var _ Reader = (*FakeReader)(nil)

// Sample represents a single reading of both pins.
type Sample struct {
	Sensor   bool // true = open
	Presence bool // true = host attached
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Sensor returns the next scripted sensor level.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Sensor() (bool, error) {
	s, err := f.next(&f.sensorIdx)
	return s.Sensor, err
}

// Presence returns the next scripted presence level.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Presence() (bool, error) {
	s, err := f.next(&f.presenceIdx)
	return s.Presence, err
}

func (f *FakeReader) next(idx *int) (Sample, error) {
	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	sample := f.Samples[*idx]
	if *idx < len(f.Samples)-1 {
		*idx++
	}
	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.sensorIdx = 0
	f.presenceIdx = 0
	f.Closed = false
}
