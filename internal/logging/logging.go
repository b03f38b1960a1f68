// Package logging provides the daemon's plain, timestamped log output.
//
// This is deliberately a thin wrapper around the standard log
// package rather than a structured logging library: the daemon has a
// single consumer (an operator tailing stderr), so every component
// gets its own prefixed *log.Logger instead of repeating
// fmt.Fprintf(os.Stderr, ...) at each call site.
package logging

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// New returns a logger for the named component, writing to stderr
// with a timestamp and the component name as prefix.
func New(component string) *log.Logger {
	return log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
}

// Since renders t relative to now as human-readable text, e.g. "5
// seconds ago" or "3 minutes from now", for use in lag/backoff log lines.
func Since(t time.Time) string {
	return humanize.Time(t)
}

// Count renders n with a humanized suffix, e.g. "10 changes".
func Count(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}
