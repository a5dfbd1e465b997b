// ABOUTME: Lock-free single-producer/single-consumer ring buffer
// ABOUTME: Used for every audio handoff that must never block the callback
package ringbuffer

import (
	"sync/atomic"
)

const cacheLineSize = 64

// RingBuffer is a bounded SPSC queue of T. Exactly one goroutine may call
// Write and exactly one goroutine may call Read. The backing array is a
// power of two and one slot is always left empty so that full and empty
// are distinguishable from the two indices alone.
type RingBuffer[T any] struct {
	buf  []T
	mask uint64

	_        [cacheLineSize]byte
	writeIdx atomic.Uint64 // owned by the producer
	_        [cacheLineSize - 8]byte
	readIdx  atomic.Uint64 // owned by the consumer
	_        [cacheLineSize - 8]byte
}

// New creates a ring buffer that can hold at least capacity elements.
// The backing storage is rounded up to the next power of two above capacity.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	size := nextPow2(uint64(capacity) + 1)
	return &RingBuffer[T]{
		buf:  make([]T, size),
		mask: size - 1,
	}
}

// Capacity returns the number of usable slots.
func (rb *RingBuffer[T]) Capacity() int {
	return int(rb.mask)
}

// AvailableToRead returns how many elements the consumer can read. Advisory
// when called from any goroutine other than the producer or consumer.
func (rb *RingBuffer[T]) AvailableToRead() int {
	w := rb.writeIdx.Load()
	r := rb.readIdx.Load()
	return int((w - r) & rb.mask)
}

// AvailableToWrite returns how many elements the producer can write.
func (rb *RingBuffer[T]) AvailableToWrite() int {
	return int(rb.mask) - rb.AvailableToRead()
}

// Write copies as many elements of src as fit and returns the count.
// It never blocks and never overwrites unread data.
func (rb *RingBuffer[T]) Write(src []T) int {
	w := rb.writeIdx.Load()
	r := rb.readIdx.Load()

	free := rb.mask - ((w - r) & rb.mask)
	n := uint64(len(src))
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	start := w & rb.mask
	first := uint64(len(rb.buf)) - start
	if first > n {
		first = n
	}
	copy(rb.buf[start:start+first], src[:first])
	copy(rb.buf[:n-first], src[first:n])

	// Publish after the copy so the consumer never sees unwritten slots.
	rb.writeIdx.Store((w + n) & rb.mask)
	return int(n)
}

// Read copies up to len(dst) elements into dst and returns the count.
// Returns 0 when the buffer is empty.
func (rb *RingBuffer[T]) Read(dst []T) int {
	r := rb.readIdx.Load()
	w := rb.writeIdx.Load()

	avail := (w - r) & rb.mask
	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	start := r & rb.mask
	first := uint64(len(rb.buf)) - start
	if first > n {
		first = n
	}
	copy(dst[:first], rb.buf[start:start+first])
	copy(dst[first:n], rb.buf[:n-first])

	rb.readIdx.Store((r + n) & rb.mask)
	return int(n)
}

// Discard drops up to n readable elements without copying them.
// Consumer side only.
func (rb *RingBuffer[T]) Discard(n int) int {
	r := rb.readIdx.Load()
	w := rb.writeIdx.Load()

	avail := (w - r) & rb.mask
	if n < 0 {
		n = 0
	}
	k := uint64(n)
	if k > avail {
		k = avail
	}
	rb.readIdx.Store((r + k) & rb.mask)
	return int(k)
}

// Reset empties the buffer. Only valid while neither side is active.
func (rb *RingBuffer[T]) Reset() {
	rb.writeIdx.Store(0)
	rb.readIdx.Store(0)
	var zero T
	for i := range rb.buf {
		rb.buf[i] = zero
	}
}

func nextPow2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
