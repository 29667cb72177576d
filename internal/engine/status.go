package engine

import "sync"

// Status is the engine's single lock-protected lifecycle variable. Values
// are totally ordered so callers can use >= and <= as predicates, exactly
// as the original C engine compares ow_engine_status_t.
type Status int

const (
	StatusError Status = iota
	StatusStop
	StatusReady
	StatusBoot
	StatusWait
	StatusRun
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusStop:
		return "stop"
	case StatusReady:
		return "ready"
	case StatusBoot:
		return "boot"
	case StatusWait:
		return "wait"
	case StatusRun:
		return "run"
	default:
		return "unknown"
	}
}

// statusBox holds the status behind the engine's short spinlock-equivalent
// critical section. A plain mutex stands in for the pthread spinlock in the
// original engine: the critical sections are one or two field accesses, so
// the choice of primitive does not change behavior, only its cost under
// contention (see spec's "Spinlocks for short critical sections" note).
type statusBox struct {
	mu sync.Mutex
	v  Status
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}

func (b *statusBox) set(s Status) {
	b.mu.Lock()
	b.v = s
	b.mu.Unlock()
}

// GetStatus returns the engine's current status.
func (e *Engine) GetStatus() Status {
	return e.status.get()
}

// SetStatus sets the engine's status.
func (e *Engine) SetStatus(s Status) {
	e.status.set(s)
}

// Stop requests the engine to stop. Both driver goroutines observe STOP on
// their next status check and return; runAudioAndO2PMidi closes the
// transport once it observes STOP, which releases any transfer still
// pending (lifecycle.go).
func (e *Engine) Stop() {
	e.SetStatus(StatusStop)
}

// IsP2OAudioEnable reports whether the host currently wants p2o audio.
func (e *Engine) IsP2OAudioEnable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p2oAudioEnabled
}

// SetP2OAudioEnable toggles p2o audio. Only logs a transition, matching the
// original's "if last != enabled" debug gate.
func (e *Engine) SetP2OAudioEnable(enabled bool) {
	e.mu.Lock()
	last := e.p2oAudioEnabled
	e.p2oAudioEnabled = enabled
	e.mu.Unlock()
	if last != enabled {
		debugPrint(1, "setting p2o audio to %v...", enabled)
	}
}
