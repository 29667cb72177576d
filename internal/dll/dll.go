// Package dll implements a classic two-coefficient delay-locked loop used
// to track a device's sample clock relative to a host clock from periodic
// (frame count, host time) samples.
//
// No example repo or ecosystem library in the retrieval pack implements a
// DLL clock estimator — it is inherently a handful of lines of control-loop
// arithmetic that audio engines (including the original C engine this
// module's interface is grounded on) always hand-roll. This package is
// therefore stdlib-only (math); see the module's DESIGN.md for the
// no-library justification this requires.
package dll

import "math"

// Estimator tracks a device's sample rate against a host clock. Init
// (re)seeds the model at the start of a run cycle; Inc folds in one
// transfer's worth of frames and the host time at which it completed.
type Estimator struct {
	sampleRate float64
	periods    float64 // smoothed frames-per-period estimate
	lastTime   float64
	b, c       float64 // loop filter coefficients
	ratio      float64 // current estimated device/host rate ratio
	seeded     bool
}

// New returns an unseeded Estimator. Its loop coefficients are set by Init,
// or by the first Inc when Init was never called.
func New() *Estimator {
	return &Estimator{}
}

// Init (re)seeds the loop: sampleRate is the device's nominal sample rate,
// framesPerTransfer is the expected frame count per completion, and now is
// the host time of the seed sample.
func (e *Estimator) Init(sampleRate float64, framesPerTransfer int, now float64) {
	e.sampleRate = sampleRate
	e.periods = float64(framesPerTransfer)
	e.lastTime = now
	e.ratio = 1.0

	// Bandwidth tuned so the loop settles over a few hundred periods;
	// bw is expressed in radians/period for a second-order loop filter.
	const bw = 0.05
	omega := 2 * math.Pi * bw
	e.b = omega * math.Sqrt2
	e.c = omega * omega
	e.seeded = true
}

// Inc folds in the completion of one transfer carrying `frames` samples,
// observed at host time `now`. It updates the smoothed period estimate and
// the device/host rate ratio used by downstream resamplers to stay
// phase-aligned.
func (e *Estimator) Inc(frames int, now float64) {
	if !e.seeded {
		e.Init(e.sampleRate, frames, now)
		return
	}
	dt := now - e.lastTime
	e.lastTime = now
	if dt <= 0 {
		return
	}

	expected := e.periods
	err := float64(frames) - expected

	e.periods += e.b*err + e.c*err
	if dt > 0 {
		observedRate := float64(frames) / dt
		if e.sampleRate > 0 {
			e.ratio = observedRate / e.sampleRate
		}
	}
}

// Ratio returns the current estimated device-clock/host-clock ratio. A
// resampler upstream of the engine uses this to keep itself phase-aligned
// with the device; the engine itself never reads it back.
func (e *Estimator) Ratio() float64 {
	return e.ratio
}
