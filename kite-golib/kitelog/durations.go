package kitelog

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

type timing struct {
	name  string
	total time.Duration
	count int
}

// Durations accumulates time per named phase in first-recorded order,
// e.g. load, forward+backward and optimizer within one epoch.
type Durations []timing

// Record adds d to the phase called name.
func (t *Durations) Record(name string, d time.Duration) {
	if i := t.index(name); i >= 0 {
		(*t)[i].total += d
		(*t)[i].count++
		return
	}
	*t = append(*t, timing{name: name, total: d, count: 1})
}

// Total is the time accumulated under name.
func (t Durations) Total(name string) time.Duration {
	if i := t.index(name); i >= 0 {
		return t[i].total
	}
	return 0
}

func (t Durations) index(name string) int {
	for i, e := range t {
		if e.name == name {
			return i
		}
	}
	return -1
}

// Flush logs one row per phase with its total and mean, then resets t.
func (t *Durations) Flush(l Interface) {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 4, 4, 2, ' ', 0)
	for _, e := range *t {
		fmt.Fprintf(tw, "  %s\t%s\tx%d\t%s/op\n", e.name, e.total, e.count, e.total/time.Duration(e.count))
	}
	tw.Flush()
	l.Println(sb.String())
	*t = nil
}

// WithDurations copies l with an empty Durations table.
func (l *Logger) WithDurations() *Logger {
	c := *l
	c.Durations = nil
	return &c
}
