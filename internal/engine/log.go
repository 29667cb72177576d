package engine

import "log"

// DebugLevel gates debugPrint calls, mirroring the original engine's
// compile-time OW_DEBUG_LEVEL checked by its debug_print(level, ...) macro.
// The CLI sets this from a flag; tests leave it at the default (silent).
var DebugLevel int

func debugPrint(level int, format string, args ...any) {
	if level > DebugLevel {
		return
	}
	log.Printf("[overwitch] "+format, args...)
}

func errorPrint(format string, args ...any) {
	log.Printf("[overwitch] ERROR: "+format, args...)
}
