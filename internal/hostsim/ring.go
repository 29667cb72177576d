// Package hostsim provides a concrete, in-memory implementation of the
// engine's IOBuffers host contract: four fixed-capacity byte rings plus a
// monotonic clock. It is the host side cmd/overwitch bridges the engine to,
// both against real hardware and in loopback demo mode; the engine's own
// tests use an equivalent in-package ring (engine_test.go), since this
// package imports engine. It is not a production host audio-server
// integration (that remains out of scope, per spec's Non-goals).
//
// The ring itself is a straightforward byte FIFO guarded by a mutex,
// grounded on the general shape of the intermediate ring buffer described
// in the retrieved audiostream example
// (other_examples/7cd26634_renan-campos-sound-utils__pkg-audiostream-audiostream.go.go):
// a fixed-capacity buffer written in one chunk size and read in another.
package hostsim

import "sync"

// Ring is a fixed-capacity single-producer/single-consumer byte FIFO.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	head int
	tail int
	size int // bytes currently stored
}

// NewRing allocates a ring with the given byte capacity.
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// ReadSpace returns the number of bytes currently available to read.
func (r *Ring) ReadSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// WriteSpace returns the number of bytes currently free to write.
func (r *Ring) WriteSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.size
}

// Write copies src into the ring, up to its free space. It returns the
// number of bytes actually written.
func (r *Ring) Write(src []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := len(r.buf) - r.size
	n := len(src)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.buf[r.tail] = src[i]
		r.tail = (r.tail + 1) % len(r.buf)
	}
	r.size += n
	return n
}

// Read copies up to n bytes out of the ring into dst (if dst is nil, the
// bytes are discarded instead). It returns the number of bytes actually
// consumed, capped at the ring's available data and, when dst is
// non-nil, at len(dst).
func (r *Ring) Read(dst []byte, n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if dst != nil && n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		if dst != nil {
			dst[i] = r.buf[r.head]
		}
		r.head = (r.head + 1) % len(r.buf)
	}
	r.size -= n
	return n
}
