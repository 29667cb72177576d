package engine

import (
	"errors"
	"sync"

	"github.com/dolcy/overwitch/internal/device"
)

// loopbackTransport is the CLI's demo backend (spec §4.8's "loopback demo
// mode"): no bus, no hardware. Every audio-out transfer is echoed straight
// back as the next audio-in transfer, and MIDI is looped the same way, so
// the whole pipeline (encode, decode, ring traffic, MIDI pacing) runs
// against itself for a quick end-to-end check.
//
// Nothing in loopback mode ever feeds the p2o MIDI ring, so ReadMidiIn has
// no data of its own to return; like fakeTransport, its blocking reads
// select on a stopCh that Close() closes, so Stop/Destroy can't hang
// waiting on a read that would otherwise never complete (spec §8 scenario
// S6).
type loopbackTransport struct {
	audioLoop chan []byte
	midiLoop  chan []byte

	closeOnce sync.Once
	stopCh    chan struct{}
}

var errLoopbackClosed = errors.New("loopback transport: closed")

func newLoopbackTransport() *loopbackTransport {
	return &loopbackTransport{
		audioLoop: make(chan []byte, 4),
		midiLoop:  make(chan []byte, 4),
		stopCh:    make(chan struct{}),
	}
}

func (t *loopbackTransport) Close() error {
	t.closeOnce.Do(func() { close(t.stopCh) })
	return nil
}

func (t *loopbackTransport) ReadAudioIn(buf []byte) (int, error) {
	select {
	case blk := <-t.audioLoop:
		return copy(buf, blk), nil
	case <-t.stopCh:
		return 0, errLoopbackClosed
	}
}

func (t *loopbackTransport) WriteAudioOut(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	select {
	case t.audioLoop <- cp:
	default:
	}
	return len(buf), nil
}

func (t *loopbackTransport) ReadMidiIn(buf []byte) (int, error) {
	select {
	case blk := <-t.midiLoop:
		return copy(buf, blk), nil
	case <-t.stopCh:
		return 0, errLoopbackClosed
	}
}

func (t *loopbackTransport) WriteMidiOut(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	select {
	case t.midiLoop <- cp:
	default:
	}
	return len(buf), nil
}

// NewLoopback builds an Engine around loopbackTransport instead of a real
// USB device, for the CLI's --loopback demo mode.
func NewLoopback(desc device.Descriptor, blocksPerTransfer, framesPerBlock int) *Engine {
	return newEngine(newLoopbackTransport(), desc, blocksPerTransfer, framesPerBlock)
}
