package engine

// runP2OAudio drives the host->device audio path: prepare the outgoing
// buffer, encode it into USB blocks, then submit. The "prepare, encode,
// then submit" ordering is mandatory (spec §4.3): submitting before
// encoding races with the next callback on slower hosts.
func (e *Engine) runP2OAudio() {
	for {
		if e.GetStatus() <= StatusStop {
			return
		}
		e.prepareP2OBuffer()
		e.encodeP2OBlocks()
		if _, err := e.transport.WriteAudioOut(e.usbDataOut); err != nil {
			if e.GetStatus() <= StatusStop {
				// Transport closed out from under us by a clean Stop
				// (lifecycle.go); not a fault.
				return
			}
			errorPrint("audio out transfer failed: %v", err)
			e.SetStatus(StatusError)
			return
		}
	}
}

// prepareP2OBuffer fills p2oTransferBuf for the upcoming transfer,
// implementing the two-phase warm-up of spec §4.3.
func (e *Engine) prepareP2OBuffer() {
	frameSize := e.channelsIn * obBytesPerSample

	e.mu.Lock()
	enabled := e.p2oAudioEnabled
	readingAtEnd := e.readingAtP2OEnd
	e.mu.Unlock()

	readSpace := e.io.ReadSpace(RingP2OAudio)

	if !readingAtEnd {
		// Phase A: catch up. Begin reading at the ring's tail, not its
		// accumulated head, to minimize latency once steady state starts.
		if enabled && readSpace >= e.p2oTransferSize {
			debugPrint(2, "p2o: emptying buffer and running...")
			discard := BytesToFrameBytes(readSpace, frameSize)
			e.io.Read(RingP2OAudio, nil, discard)
			e.mu.Lock()
			e.readingAtP2OEnd = true
			e.mu.Unlock()
		}
		// Otherwise, p2oTransferBuf keeps whatever it held (silence,
		// from Init/rearm) and this cycle emits that.
		return
	}

	// Phase B: steady state.
	if !enabled {
		e.mu.Lock()
		e.readingAtP2OEnd = false
		e.mu.Unlock()
		debugPrint(2, "p2o: clearing buffer and stopping...")
		for i := range e.p2oTransferBuf {
			e.p2oTransferBuf[i] = 0
		}
		return
	}

	e.mu.Lock()
	e.p2oLatency = readSpace
	if e.p2oLatency > e.p2oMaxLatency {
		e.p2oMaxLatency = e.p2oLatency
	}
	e.mu.Unlock()

	if readSpace >= e.p2oTransferSize {
		e.io.Read(RingP2OAudio, e.p2oRawBuf, e.p2oTransferSize)
		bytesToFloats(e.p2oTransferBuf, e.p2oRawBuf)
		return
	}

	e.underflowResample(readSpace, frameSize)
}

// underflowResample handles the emergency fallback (spec §4.3 Phase B,
// underflow branch): read what's available, resample it up to exactly
// framesPerTransfer frames. This is a quality compromise acceptable only
// because it is rare and transient.
func (e *Engine) underflowResample(readSpace, frameSize int) {
	frames := readSpace / frameSize
	bytes := frames * frameSize

	debugPrint(2, "p2o: audio ring underflow (%d < %d), resampling...", readSpace, e.p2oTransferSize)

	if frames == 0 {
		// Nothing at all to resample from; leave the buffer as-is.
		return
	}

	raw := e.p2oRawBuf[:bytes]
	e.io.Read(RingP2OAudio, raw, bytes)
	scratch := e.srcScratch[:frames*e.channelsIn]
	bytesToFloats(scratch, raw)

	out, err := e.resamp.Convert(scratch, e.channelsIn, e.framesPerTransfer)
	if err != nil {
		errorPrint("p2o: error while resampling: %v", err)
		return
	}
	if len(out) != len(e.p2oTransferBuf) {
		errorPrint("p2o: unexpected frame count from resampler (got %d, expected %d)",
			len(out)/e.channelsIn, e.framesPerTransfer)
	}
	copy(e.p2oTransferBuf, out)
}

// encodeP2OBlocks writes p2oTransferBuf into usbDataOut's blocks,
// incrementing the running frame counter once per block.
func (e *Engine) encodeP2OBlocks() {
	outBlockLen := blockLen(e.framesPerBlock, e.channelsIn)
	for i := 0; i < e.blocksPerTransfer; i++ {
		blk := newBlockView(e.usbDataOut[i*outBlockLen : (i+1)*outBlockLen])
		e.frames += uint32(e.framesPerBlock)
		blk.setFrames(uint16(e.frames))

		src := e.p2oTransferBuf[i*e.framesPerBlock*e.channelsIn : (i+1)*e.framesPerBlock*e.channelsIn]
		encodeBlockFrom(blk, e.framesPerBlock, e.channelsIn, src)
	}
}
