package ringbuffer

import (
	"errors"
	"sync"
)

// ErrInsufficientData is returned by Latest when fewer samples than requested
// have ever been pushed
var ErrInsufficientData = errors.New("insufficient data in ring buffer")

// Buffer is a fixed-capacity circular store of audio samples
// When full, each push overwrites the oldest sample. Consumers never pop;
// they read the most recent samples with Latest
//
// Safe for one concurrent writer and any number of readers
type Buffer struct {
	mu       sync.Mutex
	data     []float32
	writePos int
	total    uint64 // samples ever pushed
}

// New creates a buffer holding at most capacity samples
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data: make([]float32, capacity),
	}
}

// NewSeconds creates a buffer holding the given duration of audio at sampleRate
func NewSeconds(seconds float64, sampleRate int) *Buffer {
	return New(int(seconds * float64(sampleRate)))
}

// Push appends one sample, evicting the oldest when at capacity
func (b *Buffer) Push(sample float32) {
	b.mu.Lock()
	b.push(sample)
	b.mu.Unlock()
}

// PushBlock appends a block of samples in order under a single lock
// It is the path used by the capture callback
func (b *Buffer) PushBlock(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A block larger than the buffer only leaves its tail behind
	if len(samples) > len(b.data) {
		skipped := len(samples) - len(b.data)
		b.total += uint64(skipped)
		samples = samples[skipped:]
	}

	for len(samples) > 0 {
		n := copy(b.data[b.writePos:], samples)
		samples = samples[n:]
		b.writePos = (b.writePos + n) % len(b.data)
		b.total += uint64(n)
	}
}

func (b *Buffer) push(sample float32) {
	b.data[b.writePos] = sample
	b.writePos = (b.writePos + 1) % len(b.data)
	b.total++
}

// Latest returns a copy of the n most recent samples in chronological order
func (b *Buffer) Latest(n int) ([]float32, error) {
	out := make([]float32, n)
	if err := b.LatestInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestInto fills dst with the len(dst) most recent samples in chronological
// order without allocating
func (b *Buffer) LatestInto(dst []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(dst)
	if n > len(b.data) || uint64(n) > b.total {
		return ErrInsufficientData
	}
	if n == 0 {
		return nil
	}

	capacity := len(b.data)
	start := (b.writePos - n + capacity) % capacity
	if start+n <= capacity {
		copy(dst, b.data[start:start+n])
	} else {
		first := copy(dst, b.data[start:])
		copy(dst[first:], b.data[:n-first])
	}
	return nil
}

// Len returns the number of samples currently held
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total > uint64(len(b.data)) {
		return len(b.data)
	}
	return int(b.total)
}

// Cap returns the fixed capacity
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Total returns the number of samples ever pushed
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
