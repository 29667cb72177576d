package engine

// runO2PAudio drives the device->host audio path: block until an audio-in
// transfer completes, process it, loop. The blocking Read call itself
// enforces "exactly one transfer in flight" (spec §8 invariant 5) — the
// next Read (the next submission) only happens once this one's data has
// been consumed.
func (e *Engine) runO2PAudio() {
	for {
		if e.GetStatus() <= StatusStop {
			return
		}
		if _, err := e.transport.ReadAudioIn(e.usbDataIn); err != nil {
			if e.GetStatus() <= StatusStop {
				// Transport closed out from under us by a clean Stop
				// (lifecycle.go); not a fault.
				return
			}
			errorPrint("audio in transfer failed: %v", err)
			e.SetStatus(StatusError)
			return
		}
		e.processO2PAudio()
	}
}

// processO2PAudio implements spec §4.2.
func (e *Engine) processO2PAudio() {
	now := 0.0
	if e.io.Time != nil {
		now = e.io.Time()
	}

	e.mu.Lock()
	if e.dllEst != nil {
		e.dllEst.Inc(e.framesPerTransfer, now)
	}
	st := e.status.get()
	e.mu.Unlock()

	inBlockLen := blockLen(e.framesPerBlock, e.channelsOut)
	for i := 0; i < e.blocksPerTransfer; i++ {
		blk := newBlockView(e.usbDataIn[i*inBlockLen : (i+1)*inBlockLen])
		dst := e.o2pTransferBuf[i*e.framesPerBlock*e.channelsOut : (i+1)*e.framesPerBlock*e.channelsOut]
		decodeBlockInto(blk, e.framesPerBlock, e.channelsOut, dst)
	}

	if st < StatusRun {
		// Device still warming up; host isn't consuming yet.
		return
	}

	space := e.io.WriteSpace(RingO2PAudio)
	if space < e.o2pTransferSize {
		errorPrint("o2p audio ring overflow, dropping %d bytes", e.o2pTransferSize)
		return
	}

	floatsToBytes(e.o2pRawBuf, e.o2pTransferBuf)
	e.io.Write(RingO2PAudio, e.o2pRawBuf)
}
