// Package sink tracks which audio sinks are kept in sync.
package sink

import (
	"maps"
	"slices"
	"sync"

	"github.com/jmylchreest/volume-sync/internal/pulse"
)

// Registry is the set of sink indices that are present on the server and
// whose name is one of the tracked names. All methods are safe for
// concurrent use; the set itself is never handed out.
type Registry struct {
	mu      sync.Mutex
	tracked map[uint32]string // index -> name at time of report
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tracked: make(map[uint32]string),
	}
}

// Rebuild replaces the tracked set with the sinks whose name is in names.
func (r *Registry) Rebuild(all []pulse.Sink, names map[string]struct{}) {
	tracked := make(map[uint32]string, len(names))
	for _, s := range all {
		if _, ok := names[s.Name]; ok {
			tracked[s.Index] = s.Name
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = tracked
}

// NoteAppeared records the latest report for index: it is tracked if name
// is in names and untracked otherwise, even if it was tracked before under
// another name. Reports whether the index is tracked afterwards.
func (r *Registry) NoteAppeared(index uint32, name string, names map[string]struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := names[name]; !ok {
		delete(r.tracked, index)
		return false
	}
	r.tracked[index] = name
	return true
}

// Retain drops every tracked index whose recorded name is not in names.
// It narrows the set to a new configuration when the server cannot be
// asked for a full enumeration. Returns the number of dropped indices.
func (r *Registry) Retain(names map[string]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for index, name := range r.tracked {
		if _, ok := names[name]; !ok {
			delete(r.tracked, index)
			dropped++
		}
	}
	return dropped
}

// NoteRemoved stops tracking index. Reports whether it was tracked.
func (r *Registry) NoteRemoved(index uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tracked[index]; !ok {
		return false
	}
	delete(r.tracked, index)
	return true
}

// Contains reports whether index is tracked.
func (r *Registry) Contains(index uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tracked[index]
	return ok
}

// Snapshot returns a sorted copy of the tracked indices.
func (r *Registry) Snapshot() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.tracked))
}

// Names returns a copy of the tracked index to name mapping.
func (r *Registry) Names() map[uint32]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.tracked)
}

// Len returns the number of tracked sinks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}
