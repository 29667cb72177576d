package engine

import (
	"errors"
	"sync"
)

// fakeTransport is the mock USB backend spec §4.9 calls for: no real bus,
// just channels the test drives directly, standing in for the four
// one-in-flight transfer channels a real device exposes.
//
// audioInBlocks/midiInEvents are preloaded by the test with the exact
// device->host payloads a scenario needs; once drained, further reads
// block on stopCh so a test-driven Stop() unblocks them promptly, mirroring
// a real device completing its in-flight transfer within one period of the
// call to Stop (spec §8 invariant, scenario S6).
type fakeTransport struct {
	audioInBlocks chan []byte
	audioOutSink  chan []byte

	midiInEvents chan []byte // nil entry == benign timeout
	midiOutSink  chan []byte

	stopOnce sync.Once
	stopCh   chan struct{}
}

var errTransportStopped = errors.New("fake transport: stopped")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		audioInBlocks: make(chan []byte, 256),
		audioOutSink:  make(chan []byte, 256),
		midiInEvents:  make(chan []byte, 256),
		midiOutSink:   make(chan []byte, 256),
		stopCh:        make(chan struct{}),
	}
}

// stop unblocks any pending Read call; idempotent.
func (t *fakeTransport) stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *fakeTransport) Close() error {
	t.stop()
	return nil
}

func (t *fakeTransport) ReadAudioIn(buf []byte) (int, error) {
	select {
	case blk, ok := <-t.audioInBlocks:
		if !ok {
			return 0, errTransportStopped
		}
		return copy(buf, blk), nil
	case <-t.stopCh:
		return 0, errTransportStopped
	}
}

func (t *fakeTransport) WriteAudioOut(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	select {
	case t.audioOutSink <- cp:
	default:
	}
	return len(buf), nil
}

func (t *fakeTransport) ReadMidiIn(buf []byte) (int, error) {
	select {
	case ev, ok := <-t.midiInEvents:
		if !ok {
			return 0, errTransportStopped
		}
		if ev == nil {
			return 0, errMidiTimeout
		}
		return copy(buf, ev), nil
	case <-t.stopCh:
		return 0, errTransportStopped
	}
}

func (t *fakeTransport) WriteMidiOut(buf []byte) (int, error) {
	cp := append([]byte(nil), buf...)
	select {
	case t.midiOutSink <- cp:
	default:
	}
	return len(buf), nil
}
