package status

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	humanize "github.com/dustin/go-humanize"
)

var s = newEmptyStatus()

// Status is the root level object containing all sections.
type Status struct {
	m        sync.Mutex
	Sections map[string]*Section
}

func newEmptyStatus() *Status {
	return &Status{
		Sections: make(map[string]*Section),
	}
}

// MarshalJSON allows for go-routine safe access to Sections.
func (s *Status) MarshalJSON() ([]byte, error) {
	s.m.Lock()
	defer s.m.Unlock()

	// to avoid recursive call into MarshalJSON (and the subsequent deadlock),
	// create a temporary type to mask the MarshalJSON method
	type tmp Status
	return json.Marshal((*tmp)(s))
}

// Get returns the process-wide *Status object
func Get() *Status {
	return s
}

// WriteJSON writes a snapshot of the status to path, e.g. at the end of a training run.
func (s *Status) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Fprint writes a human readable summary of every counter and ratio to w.
func (s *Status) Fprint(w io.Writer) {
	s.m.Lock()
	names := make([]string, 0, len(s.Sections))
	for name := range s.Sections {
		names = append(names, name)
	}
	s.m.Unlock()
	sort.Strings(names)

	for _, name := range names {
		s.m.Lock()
		section := s.Sections[name]
		s.m.Unlock()
		section.fprint(w)
	}
}

func (s *Section) fprint(w io.Writer) {
	s.m.Lock()
	defer s.m.Unlock()

	fmt.Fprintf(w, "%s:\n", s.Name)
	for _, key := range sortedKeys(s.Counters) {
		fmt.Fprintf(w, "  %-40s %s\n", key, humanize.Comma(s.Counters[key].GetValue()))
	}
	for _, key := range sortedKeys(s.Ratios) {
		fmt.Fprintf(w, "  %-40s %.2f%%\n", key, s.Ratios[key].Value())
	}
	for _, key := range sortedKeys(s.Breakdowns) {
		values := s.Breakdowns[key].Value()
		fmt.Fprintf(w, "  %s\n", key)
		for _, cat := range sortedKeys(values) {
			fmt.Fprintf(w, "    %-38s %.2f%%\n", cat, values[cat])
		}
	}
}

func sortedKeys(m interface{}) []string {
	var keys []string
	switch m := m.(type) {
	case map[string]*Counter:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string]*Ratio:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string]*Breakdown:
		for k := range m {
			keys = append(keys, k)
		}
	case map[string]float64:
		for k := range m {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
