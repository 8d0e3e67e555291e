// Package kitelog provides the prefixed line logger used by every binary, plus a
// table of named durations for per-epoch timing.
package kitelog

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kiteco/skillview/kite-golib/envutil"
)

var (
	region  = envutil.GetenvDefault("REGION", "local")
	release = envutil.GetenvDefault("RELEASE", "dev")
	flags   = log.LstdFlags | log.Lshortfile | log.Lmicroseconds
)

// Interface is the subset of log.Logger used by library code.
type Interface interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// Logger writes prefixed lines and accumulates Durations.
type Logger struct {
	Default   *log.Logger
	Durations Durations
}

// NewForRun returns a stderr logger whose lines carry the region, release, run id and stage.
func NewForRun(runID, stage string) *Logger {
	return NewForRunTo(os.Stderr, runID, stage)
}

// NewForRunTo is NewForRun writing to w.
func NewForRunTo(w io.Writer, runID, stage string) *Logger {
	prefix := fmt.Sprintf("[region=%s release=%s run=%s stage=%s] ", region, release, runID, stage)
	return &Logger{Default: log.New(w, prefix, flags)}
}

// Printf implements Interface.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Default.Output(2, fmt.Sprintf(format, v...))
}

// Println implements Interface.
func (l *Logger) Println(v ...interface{}) {
	l.Default.Output(2, fmt.Sprintln(v...))
}
