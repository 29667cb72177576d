package engine

// ErrKind enumerates the fixed set of error codes the original engine
// returns from ow_engine_init/ow_engine_activate_with_dll. GetErrString
// returns the same fixed human strings engine.c's ob_err_strgs table does.
type ErrKind int

const (
	ErrOK ErrKind = iota
	ErrLibusbInitFailed
	ErrCantFindDev
	ErrCantSetUSBConfig
	ErrCantClaimIF
	ErrCantSetAltSetting
	ErrCantClearEP
	ErrCantPrepareTransfer
	ErrNoReadSpace
	ErrNoWriteSpace
	ErrNoRead
	ErrNoWrite
	ErrNoGetTime
	ErrNoP2OAudioBuf
	ErrNoO2PAudioBuf
	ErrNoP2OMidiBuf
	ErrNoO2PMidiBuf
	ErrGeneric
)

var errStrings = [...]string{
	ErrOK:                  "ok",
	ErrLibusbInitFailed:    "libusb init failed",
	ErrCantFindDev:         "can't find a matching device",
	ErrCantSetUSBConfig:    "can't set usb config",
	ErrCantClaimIF:         "can't claim usb interface",
	ErrCantSetAltSetting:   "can't set usb alt setting",
	ErrCantClearEP:         "can't clear endpoint",
	ErrCantPrepareTransfer: "can't prepare transfer",
	ErrNoReadSpace:         "'read_space' not set",
	ErrNoWriteSpace:        "'write_space' not set",
	ErrNoRead:              "'read' not set",
	ErrNoWrite:             "'write' not set",
	ErrNoGetTime:           "'get_time' not set",
	ErrNoP2OAudioBuf:       "'p2o_audio' buffer not set",
	ErrNoO2PAudioBuf:       "'o2p_audio' buffer not set",
	ErrNoP2OMidiBuf:        "'p2o_midi' buffer not set",
	ErrNoO2PMidiBuf:        "'o2p_midi' buffer not set",
	ErrGeneric:             "generic error",
}

// GetErrString returns the fixed human string for an error kind.
func GetErrString(kind ErrKind) string {
	if int(kind) < 0 || int(kind) >= len(errStrings) {
		return "unknown error"
	}
	return errStrings[kind]
}

// EngineError wraps an ErrKind as an idiomatic error, so callers can either
// treat it as a plain error or recover the original kind via errors.As.
type EngineError struct {
	Kind ErrKind
}

func (e *EngineError) Error() string {
	return GetErrString(e.Kind)
}

func newErr(kind ErrKind) error {
	return &EngineError{Kind: kind}
}
