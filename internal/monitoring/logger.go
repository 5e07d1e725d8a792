package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Framef logs a frame-indexed diagnostic line, appending "frame %d" to
// format so every per-frame log line carries it in the same place.
func Framef(frameIndex int, format string, v ...interface{}) {
	Logf(format+" frame %d", append(v, frameIndex)...)
}
