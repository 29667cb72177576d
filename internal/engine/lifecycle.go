package engine

import (
	"fmt"
	"time"
)

// runAudioAndO2PMidi is the USB driver thread (spec §5, §9): it starts the
// three self-sustaining completion chains (audio-in, audio-out, o2p MIDI)
// once, then spends the rest of the engine's life driving the
// BOOT -> WAIT -> (host runs) -> STOP|BOOT status cycle, resetting the p2o
// bookkeeping on every re-arm (spec §4.6).
//
// Where the original pumps libusb_handle_events_completed to advance
// already-submitted transfer chains, each chain here is simply a goroutine
// that blocks on its own next Read/Write; this thread's only job is the
// status bookkeeping around them.
func (e *Engine) runAudioAndO2PMidi() {
	defer e.wg.Done()

	e.SetStatus(StatusBoot)

	children := 2
	if e.midi {
		children++
	}
	done := make(chan struct{}, children)
	go func() { e.runO2PAudio(); done <- struct{}{} }()
	go func() { e.runP2OAudio(); done <- struct{}{} }()
	if e.midi {
		go func() { e.runO2PMidi(); done <- struct{}{} }()
	}

	for {
		e.mu.Lock()
		e.p2oLatency = 0
		e.p2oMaxLatency = 0
		e.readingAtP2OEnd = false
		e.mu.Unlock()

		if e.dllEst != nil {
			e.dllEst.Init(sampleRate, e.framesPerTransfer, e.io.Time())
		}

		e.SetStatus(StatusWait)

		for e.GetStatus() >= StatusWait {
			time.Sleep(e.smallestSleepTime())
		}

		if e.GetStatus() <= StatusStop {
			break
		}

		// Host re-armed for a new run cycle (RUN/WAIT -> BOOT).
		e.SetStatus(StatusBoot)

		frameSize := e.channelsIn * obBytesPerSample
		readSpace := e.io.ReadSpace(RingP2OAudio)
		discard := BytesToFrameBytes(readSpace, frameSize)
		e.io.Read(RingP2OAudio, nil, discard)
		for i := range e.p2oTransferBuf {
			e.p2oTransferBuf[i] = 0
		}
	}

	// Status has dropped to STOP (or ERROR). Close the transport now,
	// before joining the children above, rather than leaving that to
	// Destroy after every goroutine has already returned: a child still
	// blocked inside a transport Read (loopbackTransport's channels, the
	// test fake) only unblocks once the transport is closed, so closing
	// here first is what lets this join complete instead of hanging
	// forever (spec §8 scenario S6). gousbTransport's own MIDI-in read
	// bounds itself with a context timeout for the same reason on real
	// hardware, so this mainly matters for transports with no such bound.
	if e.transport != nil {
		if err := e.transport.Close(); err != nil {
			e.mu.Lock()
			e.closeErr = fmt.Errorf("destroy: %w", err)
			e.mu.Unlock()
			errorPrint("transport close failed: %v", err)
		}
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
	}

	for i := 0; i < children; i++ {
		<-done
	}
}
