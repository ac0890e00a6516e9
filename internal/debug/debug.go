// Package debug provides the process-wide logging helpers.
//
// Debug output is gated on DRAFTD_DEBUG or the serve command's --verbose
// flag. Server-mode logs can additionally be mirrored to a rotated file via
// SetLogFile.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled     = os.Getenv("DRAFTD_DEBUG") != ""
	verboseMode = false

	mu      sync.Mutex
	logFile io.WriteCloser
)

// Enabled reports whether debug logging is active.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetLogFile mirrors Logf and Errorf output into path with rotation.
// maxSizeMB bounds a single file; maxBackups bounds retained rotations.
func SetLogFile(path string, maxSizeMB, maxBackups int) {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// CloseLogFile closes the rotated log file, if any.
func CloseLogFile() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Logf writes a debug line when debug logging is active.
func Logf(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	write("DEBUG", format, args...)
}

// Errorf writes an error line unconditionally.
func Errorf(format string, args ...interface{}) {
	write("ERROR", format, args...)
}

// Infof writes an informational line unconditionally.
func Infof(format string, args ...interface{}) {
	write("INFO", format, args...)
}

func write(level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	line := fmt.Sprintf("%s %s %s\n",
		time.Now().UTC().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
	fmt.Fprint(os.Stderr, line)
	if logFile != nil {
		fmt.Fprint(logFile, line)
	}
}
