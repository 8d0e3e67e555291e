package dataset

import (
	"strings"
	"sync"

	"github.com/kiteco/skillview/kite-golib/kitelog"
)

// Label is an ordinal proficiency class.
type Label int

// Proficiency classes in increasing order.
const (
	Novice Label = iota
	EarlyExpert
	IntermediateExpert
	LateExpert
)

// NumLabels is the number of proficiency classes.
const NumLabels = 4

var labelNames = [NumLabels]string{"Novice", "Early Expert", "Intermediate Expert", "Late Expert"}

func (l Label) String() string {
	if l < 0 || int(l) >= NumLabels {
		return "Unknown"
	}
	return labelNames[l]
}

// ParseLabel looks up a class name, ignoring case and surrounding space.
func ParseLabel(s string) (Label, bool) {
	s = strings.TrimSpace(s)
	for i, name := range labelNames {
		if strings.EqualFold(s, name) {
			return Label(i), true
		}
	}
	return Novice, false
}

// Labeler maps label strings to classes. Unknown strings become Novice; each
// occurrence is counted and each distinct string is logged once.
type Labeler struct {
	metrics *Metrics
	logger  kitelog.Interface

	mu     sync.Mutex
	warned map[string]bool
}

// NewLabeler returns a labeler reporting to metrics and logger.
func NewLabeler(metrics *Metrics, logger kitelog.Interface) *Labeler {
	return &Labeler{metrics: metrics, logger: logger, warned: make(map[string]bool)}
}

// Label maps s to a class.
func (l *Labeler) Label(s string) Label {
	label, ok := ParseLabel(s)
	if ok {
		l.metrics.Labels.HitAndAdd(label.String())
		return label
	}

	l.metrics.LabelsCoerced.Add(1)
	l.metrics.Labels.HitAndAdd(Novice.String())
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.warned[s] {
		l.warned[s] = true
		l.logger.Printf("unknown proficiency level %q, using %s", s, Novice)
	}
	return Novice
}
