// Package resampler wraps an asynchronous-rate sample-rate converter for
// use as the engine's emergency p2o underflow fallback (spec §4.3 Phase B).
//
// The original engine calls libsamplerate's src_simple with SRC_SINC_FASTEST
// as a one-shot "convert N input frames to M output frames at this ratio"
// operation, explicitly as a quality compromise acceptable only because it
// is rare and transient. github.com/zaf/resample is a real Go/cgo binding
// over libsamplerate; no repo in the retrieved example pack happens to need
// audio resampling, so this dependency is named directly rather than
// grounded on a pack file (see DESIGN.md).
package resampler

import (
	"bytes"
	"fmt"
	"math"

	"github.com/zaf/resample"
)

// baseRate is an arbitrary reference sample rate used only to express the
// input/output ratio the underlying converter is asked to hit; the engine
// always deals in frame counts, never absolute rates, for this path.
const baseRate = 48000

// Converter performs one-shot asynchronous-rate conversions.
type Converter struct{}

// New returns a Converter.
func New() *Converter {
	return &Converter{}
}

// Convert resamples inputFrames (interleaved float32, `channels` channels,
// len(inputFrames)/channels input frames) into exactly outFrames frames,
// in the role of `src_simple(&data, SRC_SINC_FASTEST, channels)` in
// engine.c; the converter here runs at resample.HighQ quality.
// It is an emergency fallback only — driving the library in one-shot
// "flush" mode rather than its intended streaming mode is an acceptable
// compromise because the caller only reaches this path rarely and
// transiently (p2o ring underflow).
func (c *Converter) Convert(inputFrames []float32, channels, outFrames int) ([]float32, error) {
	inFrameCount := len(inputFrames) / channels
	if inFrameCount == 0 || outFrames == 0 {
		return make([]float32, outFrames*channels), nil
	}

	inPCM := floatToPCM16(inputFrames)

	var out bytes.Buffer
	outRate := baseRate * float64(outFrames) / float64(inFrameCount)

	r, err := resample.New(&out, baseRate, outRate, channels, resample.I16, resample.HighQ)
	if err != nil {
		return nil, fmt.Errorf("resampler init: %w", err)
	}
	if _, err := r.Write(inPCM); err != nil {
		r.Close()
		return nil, fmt.Errorf("resampler write: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("resampler close: %w", err)
	}

	got := pcm16ToFloat(out.Bytes())
	return fitFrameCount(got, outFrames*channels), nil
}

func floatToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, f := range samples {
		v := int16(clamp(f) * math.MaxInt16)
		buf[i*2] = byte(v)
		buf[i*2+1] = byte(v >> 8)
	}
	return buf
}

func pcm16ToFloat(buf []byte) []float32 {
	n := len(buf) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
		out[i] = float32(v) / math.MaxInt16
	}
	return out
}

// fitFrameCount pads with silence or truncates so the caller always
// receives exactly the sample count it asked for, even if the converter's
// actual output length differs by a frame or two from the requested ratio
// (engine.c warns rather than fails in this case; see p2o.go).
func fitFrameCount(samples []float32, want int) []float32 {
	if len(samples) == want {
		return samples
	}
	out := make([]float32, want)
	copy(out, samples)
	return out
}

func clamp(f float32) float32 {
	if f > 1 {
		return 1
	}
	if f < -1 {
		return -1
	}
	return f
}
