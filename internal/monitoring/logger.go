// Package monitoring is the observability collaborator of the pipeline:
// the diagnostic log hook, the non-fatal event reporter and the
// Prometheus metrics set.
package monitoring

import (
	"io"
	"log"
	"sync"
)

var logMu sync.RWMutex

// Logf is the package-level diagnostic logger used by LogReporter. It
// defaults to log.Printf and may be replaced with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	logMu.Lock()
	defer logMu.Unlock()
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetLogWriter points Logf at w with the standard "[scantrack]" prefix.
// A nil writer mutes the logger.
func SetLogWriter(w io.Writer) {
	if w == nil {
		SetLogger(nil)
		return
	}
	l := log.New(w, "[scantrack] ", log.LstdFlags|log.Lmicroseconds)
	SetLogger(l.Printf)
}

func logf(format string, v ...interface{}) {
	logMu.RLock()
	f := Logf
	logMu.RUnlock()
	f(format, v...)
}
