package engine

import (
	"encoding/binary"
	"math"
	"time"
)

// midiEventSize is the in-process ring encoding of one MIDI event: the
// 4 raw USB-MIDI bytes plus an 8-byte host timestamp, native byte order
// (this never crosses the wire; the 4-byte form is what actually goes
// over USB).
const midiEventSize = 4 + 8

func encodeMidiEvent(dst []byte, raw [4]byte, t float64) {
	copy(dst[0:4], raw[:])
	binary.NativeEndian.PutUint64(dst[4:12], math.Float64bits(t))
}

func decodeMidiEvent(src []byte) (raw [4]byte, t float64) {
	copy(raw[:], src[0:4])
	t = math.Float64frombits(binary.NativeEndian.Uint64(src[4:12]))
	return
}

// midiSleepDuration converts a whole-plus-fractional-seconds gap into a
// time.Duration. engine.c computes this as two separate integer fields
// (tv_sec = (time_t) diff, tv_nsec = (diff - tv_sec) * 1e9); a single
// float-to-Duration conversion is equivalent for any diff that fits in an
// int64 of nanoseconds, without the original's separate-field rounding
// behavior at whole-second boundaries.
func midiSleepDuration(diff float64) time.Duration {
	return time.Duration(diff * float64(time.Second))
}

// isValidMidiEvent reports whether byte 0 is a recognized USB-MIDI Code
// Index Number: note-off, note-on, poly key-press, control change, program
// change, channel pressure, pitch bend, or single byte.
func isValidMidiEvent(b0 byte) bool {
	return b0 >= 0x08 && b0 <= 0x0f
}

// runO2PMidi drives the device->host MIDI path (spec §4.4): block for a
// MIDI-in transfer, process it, resubmit.
func (e *Engine) runO2PMidi() {
	if !e.midi {
		return
	}
	for {
		if e.GetStatus() <= StatusStop {
			return
		}
		n, err := e.transport.ReadMidiIn(e.midiInBuf)
		if err != nil {
			if e.GetStatus() <= StatusStop {
				// Transport closed out from under us by a clean Stop
				// (lifecycle.go); not a fault.
				return
			}
			if !isMidiTimeout(err) {
				errorPrint("midi in transfer failed: %v", err)
			}
			continue
		}
		e.processO2PMidi(n)
	}
}

func (e *Engine) processO2PMidi(actualLength int) {
	if e.GetStatus() < StatusRun {
		return
	}

	now := e.io.Time()
	var encoded [midiEventSize]byte

	for off := 0; off+4 <= actualLength; off += 4 {
		b0 := e.midiInBuf[off]
		if !isValidMidiEvent(b0) {
			continue
		}
		debugPrint(2, "o2p MIDI: %02x, %02x, %02x, %02x (%f)",
			e.midiInBuf[off], e.midiInBuf[off+1], e.midiInBuf[off+2], e.midiInBuf[off+3], now)

		if e.io.WriteSpace(RingO2PMidi) < midiEventSize {
			errorPrint("o2p MIDI ring overflow, discarding event")
			continue
		}
		var raw [4]byte
		copy(raw[:], e.midiInBuf[off:off+4])
		encodeMidiEvent(encoded[:], raw, now)
		e.io.Write(RingO2PMidi, encoded[:])
	}
}

// runP2OMidi is the dedicated pacing thread for host->device MIDI (spec
// §4.5): it batches events sharing a host timestamp into one 512-byte
// bulk transfer, then sleeps for the gap to the next batch's timestamp
// before sending it.
func (e *Engine) runP2OMidi() {
	defer e.wg.Done()
	if !e.midi {
		return
	}

	var (
		pos       int
		eventRead bool
		event     [4]byte
		eventTime float64
		diff      float64
	)

	lastTime := e.io.Time()
	e.p2oMidiLock.Lock()
	e.p2oMidiReady = true
	e.p2oMidiLock.Unlock()

	for {
		for e.io.ReadSpace(RingP2OMidi) >= midiEventSize && pos < midiBufSize {
			if pos == 0 {
				for i := range e.midiOutBuf {
					e.midiOutBuf[i] = 0
				}
				diff = 0
			}

			if !eventRead {
				e.io.Read(RingP2OMidi, e.midiEventScratch[:], midiEventSize)
				event, eventTime = decodeMidiEvent(e.midiEventScratch[:])
				eventRead = true
			}

			if eventTime > lastTime {
				diff = eventTime - lastTime
				lastTime = eventTime
				break
			}

			copy(e.midiOutBuf[pos:pos+4], event[:])
			pos += 4
			eventRead = false
		}

		if pos > 0 {
			debugPrint(2, "p2o MIDI event time: %f; diff: %f", eventTime, diff)
			e.p2oMidiLock.Lock()
			e.p2oMidiReady = false
			e.p2oMidiLock.Unlock()

			if _, err := e.transport.WriteMidiOut(e.midiOutBuf); err != nil && e.GetStatus() > StatusStop {
				errorPrint("midi out transfer failed: %v", err)
			}
			// Our transport's Write blocks until the transfer is
			// accepted, so the completion callback's sole job —
			// raising p2o_midi_ready — happens immediately after.
			e.p2oMidiLock.Lock()
			e.p2oMidiReady = true
			e.p2oMidiLock.Unlock()

			pos = 0
		}

		if diff != 0 {
			time.Sleep(midiSleepDuration(diff))
		} else {
			time.Sleep(e.smallestSleepTime())
		}

		for {
			e.p2oMidiLock.Lock()
			ready := e.p2oMidiReady
			e.p2oMidiLock.Unlock()
			if ready {
				break
			}
			time.Sleep(e.smallestSleepTime())
		}

		if e.GetStatus() <= StatusStop {
			return
		}
	}
}
