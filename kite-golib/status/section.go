package status

import (
	"encoding/json"
	"sync"
)

// Section represents a grouping of Counters, Ratios and Breakdowns.
type Section struct {
	Name string

	Counters   map[string]*Counter
	Ratios     map[string]*Ratio
	Breakdowns map[string]*Breakdown

	m sync.Mutex
}

// NewSection builds a new Section with the provided name, or returns the existing one.
func NewSection(name string) *Section {
	s.m.Lock()
	defer s.m.Unlock()

	section, exists := s.Sections[name]
	if !exists {
		section = newEmptySection(name)
		s.Sections[name] = section
	}
	return section
}

func newEmptySection(name string) *Section {
	return &Section{
		Name:       name,
		Counters:   make(map[string]*Counter),
		Ratios:     make(map[string]*Ratio),
		Breakdowns: make(map[string]*Breakdown),
	}
}

// MarshalJSON is implemented to avoid concurrent map access. It holds the section lock,
// and avoids recursive calls into MarshalJSON.
func (s *Section) MarshalJSON() ([]byte, error) {
	s.m.Lock()
	defer s.m.Unlock()

	type tmp Section
	return json.Marshal((*tmp)(s))
}

// Counter returns the counter registered under name, creating it on first use.
func (s *Section) Counter(name string) *Counter {
	s.m.Lock()
	defer s.m.Unlock()
	c, ok := s.Counters[name]
	if !ok {
		c = &Counter{}
		s.Counters[name] = c
	}
	return c
}

// Ratio returns the ratio registered under name, creating it on first use.
func (s *Section) Ratio(name string) *Ratio {
	s.m.Lock()
	defer s.m.Unlock()
	r, ok := s.Ratios[name]
	if !ok {
		r = &Ratio{}
		s.Ratios[name] = r
	}
	return r
}

// Breakdown returns the breakdown registered under name, creating it on first use.
func (s *Section) Breakdown(name string) *Breakdown {
	s.m.Lock()
	defer s.m.Unlock()
	b, ok := s.Breakdowns[name]
	if !ok {
		b = &Breakdown{}
		s.Breakdowns[name] = b
	}
	return b
}
