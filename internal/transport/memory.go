package transport

import "sync"

// Memory is a device that keeps frames in memory. It backs dry runs and
// tests.
type Memory struct {
	// Record keeps every frame in Frames; otherwise only the last is kept.
	Record bool

	mu     sync.Mutex
	frames [][]byte
	count  int
	closed bool
}

// WriteFrame stores a copy of frame.
func (m *Memory) WriteFrame(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := append([]byte(nil), frame...)
	if m.Record || len(m.frames) == 0 {
		m.frames = append(m.frames, f)
	} else {
		m.frames[0] = f
	}
	m.count++
	return nil
}

// Frames returns the stored frames.
func (m *Memory) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

// Last returns the last frame written, or nil.
func (m *Memory) Last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// Count returns the number of frames written.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Close marks the device closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
