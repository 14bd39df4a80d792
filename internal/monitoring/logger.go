package monitoring

import "log"

// Logf emits one diagnostic line. It defaults to log.Printf; callers that
// want to redirect or silence output swap it via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the sink behind Logf. A nil f discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
