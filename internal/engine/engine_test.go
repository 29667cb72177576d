package engine

import (
	"sync"
	"time"

	"github.com/dolcy/overwitch/internal/device"
)

// testDesc is a small, easy-to-reason-about descriptor used across this
// package's tests: 2 channels each way keeps block math simple to hand
// compute.
var testDesc = device.Descriptor{
	Name: "test device", Vendor: 0x1935, Product: 0xffff,
	Inputs: 2, Outputs: 2,
}

const (
	testFramesPerBlock    = 4
	testBlocksPerTransfer = 2
)

// newTestEngine builds an Engine around a fakeTransport, bypassing Init's
// real USB discovery entirely, the way the teacher's own table-driven
// tests construct a driver around a fake backend rather than real
// hardware.
func newTestEngine() (*Engine, *fakeTransport) {
	ft := newFakeTransport()
	e := newEngine(ft, testDesc, testBlocksPerTransfer, testFramesPerBlock)
	return e, ft
}

// audioInBlock builds one raw device->host audio block (testDesc.Outputs
// channels) carrying the same sample value in every slot, with the given
// block counter.
func audioInBlock(counter uint16, sample float32) []byte {
	raw := make([]byte, blockLen(testFramesPerBlock, testDesc.Outputs))
	blk := newBlockView(raw)
	blk.setHeader(obHeaderMagic)
	blk.setFrames(counter)
	samples := make([]float32, testFramesPerBlock*testDesc.Outputs)
	for i := range samples {
		samples[i] = sample
	}
	encodeBlockFrom(blk, testFramesPerBlock, testDesc.Outputs, samples)
	return raw
}

// audioInTransfer concatenates blocksPerTransfer blocks into one raw
// transfer payload, the shape ReadAudioIn hands back in one call.
func audioInTransfer(counterStart uint16, sample float32) []byte {
	blockSz := blockLen(testFramesPerBlock, testDesc.Outputs)
	out := make([]byte, testBlocksPerTransfer*blockSz)
	for i := 0; i < testBlocksPerTransfer; i++ {
		blk := audioInBlock(counterStart+uint16(i), sample)
		copy(out[i*blockSz:(i+1)*blockSz], blk)
	}
	return out
}

// memRing is a small single-producer/single-consumer byte FIFO, a
// hand-rolled stand-in for internal/hostsim.Ring: hostsim imports this
// package for its own IOBuffers wiring, so these tests build their own
// minimal ring rather than importing a package that imports engine back.
type memRing struct {
	mu   sync.Mutex
	buf  []byte
	head int
	tail int
	size int
}

func newMemRing(capacity int) *memRing {
	return &memRing{buf: make([]byte, capacity)}
}

func (r *memRing) ReadSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *memRing) WriteSpace() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.size
}

func (r *memRing) Write(src []byte) int {
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

func (r *memRing) Read(dst []byte, n int) int {
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

// testHost bundles four memRings into an IOBuffers, standing in for
// hostsim.Host inside this package's own tests.
type testHost struct {
	p2oAudio, o2pAudio, p2oMidi, o2pMidi *memRing
	start                                time.Time
}

func newTestHost(audioCap, midiCap int) *testHost {
	h := &testHost{
		p2oAudio: newMemRing(audioCap),
		o2pAudio: newMemRing(audioCap),
		start:    time.Now(),
	}
	if midiCap > 0 {
		h.p2oMidi = newMemRing(midiCap)
		h.o2pMidi = newMemRing(midiCap)
	}
	return h
}

func (h *testHost) Time() float64 { return time.Since(h.start).Seconds() }

func (h *testHost) ring(r Ring) *memRing {
	switch r {
	case RingP2OAudio:
		return h.p2oAudio
	case RingO2PAudio:
		return h.o2pAudio
	case RingP2OMidi:
		return h.p2oMidi
	case RingO2PMidi:
		return h.o2pMidi
	default:
		return nil
	}
}

func (h *testHost) ioBuffers() *IOBuffers {
	return &IOBuffers{
		ReadSpace: func(r Ring) int {
			if ring := h.ring(r); ring != nil {
				return ring.ReadSpace()
			}
			return 0
		},
		WriteSpace: func(r Ring) int {
			if ring := h.ring(r); ring != nil {
				return ring.WriteSpace()
			}
			return 0
		},
		Read: func(r Ring, dst []byte, n int) int {
			if ring := h.ring(r); ring != nil {
				return ring.Read(dst, n)
			}
			return 0
		},
		Write: func(r Ring, src []byte) int {
			if ring := h.ring(r); ring != nil {
				return ring.Write(src)
			}
			return 0
		},
		Time: h.Time,

		HasP2OAudio: h.p2oAudio != nil,
		HasO2PAudio: h.o2pAudio != nil,
		HasP2OMidi:  h.p2oMidi != nil,
		HasO2PMidi:  h.o2pMidi != nil,
	}
}
