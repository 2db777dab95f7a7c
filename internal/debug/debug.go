// Package debug provides env-gated diagnostic logging to stderr.
//
// Output is off unless STRIDE_DEBUG is set or verbose mode is enabled via
// the --verbose flag. Quiet mode suppresses normal informational output.
package debug

import (
	"fmt"
	"os"
	"sync"
)

var (
	enabled     = os.Getenv("STRIDE_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex
)

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// Logf writes a debug line to stderr when debug output is active.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		logMutex.Lock()
		defer logMutex.Unlock()
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Warnf always writes a warning line to stderr, quiet mode included.
func Warnf(format string, args ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	fmt.Fprintf(os.Stderr, "Warning: "+format, args...)
}
