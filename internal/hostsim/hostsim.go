package hostsim

import (
	"sync"
	"time"

	"github.com/dolcy/overwitch/internal/engine"
)

// Host bundles the four rings and a monotonic clock into the engine's
// IOBuffers contract.
type Host struct {
	P2OAudio *Ring
	O2PAudio *Ring
	P2OMidi  *Ring
	O2PMidi  *Ring

	mu    sync.Mutex
	start time.Time
}

// New allocates a Host with the given ring capacities (in bytes). Pass 0
// for p2oMidiCap/o2pMidiCap to disable MIDI (IOBuffers() then omits those
// rings, and engine.Activate treats MIDI as unsupported).
func New(p2oAudioCap, o2pAudioCap, p2oMidiCap, o2pMidiCap int) *Host {
	h := &Host{start: time.Now()}
	h.P2OAudio = NewRing(p2oAudioCap)
	h.O2PAudio = NewRing(o2pAudioCap)
	if p2oMidiCap > 0 {
		h.P2OMidi = NewRing(p2oMidiCap)
	}
	if o2pMidiCap > 0 {
		h.O2PMidi = NewRing(o2pMidiCap)
	}
	return h
}

// Time returns seconds elapsed since the Host was created, monotonic for
// the life of the process (time.Since uses the monotonic clock reading
// time.Now() captured).
func (h *Host) Time() float64 {
	return time.Since(h.start).Seconds()
}

func (h *Host) ring(r engine.Ring) *Ring {
	switch r {
	case engine.RingP2OAudio:
		return h.P2OAudio
	case engine.RingO2PAudio:
		return h.O2PAudio
	case engine.RingP2OMidi:
		return h.P2OMidi
	case engine.RingO2PMidi:
		return h.O2PMidi
	default:
		return nil
	}
}

// IOBuffers returns the engine.IOBuffers view over this host. If MIDI
// rings were not allocated, the MIDI-related fields (Time included) are
// left nil, which engine.Activate interprets as "MIDI disabled" per spec §6.
func (h *Host) IOBuffers() *engine.IOBuffers {
	var timeFn func() float64
	if h.P2OMidi != nil || h.O2PMidi != nil {
		timeFn = h.Time
	}
	return &engine.IOBuffers{
		ReadSpace: func(r engine.Ring) int {
			ring := h.ring(r)
			if ring == nil {
				return 0
			}
			return ring.ReadSpace()
		},
		WriteSpace: func(r engine.Ring) int {
			ring := h.ring(r)
			if ring == nil {
				return 0
			}
			return ring.WriteSpace()
		},
		Read: func(r engine.Ring, dst []byte, n int) int {
			ring := h.ring(r)
			if ring == nil {
				return 0
			}
			return ring.Read(dst, n)
		},
		Write: func(r engine.Ring, src []byte) int {
			ring := h.ring(r)
			if ring == nil {
				return 0
			}
			return ring.Write(src)
		},
		Time: timeFn,

		HasP2OAudio: h.P2OAudio != nil,
		HasO2PAudio: h.O2PAudio != nil,
		HasP2OMidi:  h.P2OMidi != nil,
		HasO2PMidi:  h.O2PMidi != nil,
	}
}
