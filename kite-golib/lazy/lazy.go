package lazy

import (
	"sync"
)

// Loader runs a load function on first use and an unload function on Unload.
// A failed load is remembered so every caller sees the same error until Unload.
type Loader struct {
	load   func() error
	unload func()

	mu      sync.Mutex
	loaded  bool
	loadErr error
}

// NewLoader creates a Loader. unload may be nil.
func NewLoader(load func() error, unload func()) *Loader {
	return &Loader{load: load, unload: unload}
}

// Load runs the load function if it has not run since the last Unload.
func (l *Loader) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.loadErr = l.load()
		l.loaded = true
	}
	return l.loadErr
}

// Loaded reports whether the load function has run.
func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Unload releases the loaded data so the next Load runs again.
func (l *Loader) Unload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded && l.loadErr == nil && l.unload != nil {
		l.unload()
	}
	l.loaded, l.loadErr = false, nil
}
