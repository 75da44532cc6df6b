// Package registry implements the process-wide mount registry: a
// mapping from device identifier to the commit engine mounted on it.
// The original design used a doubly-linked list walked under a single
// lock; this is a concurrent map instead, keyed by (major, minor) so
// lookups from unrelated devices never contend (spec §9 design notes).
package registry

import (
	"sync"

	"github.com/gladserv/shallfs/internal/commit"
)

// ID identifies a mounted device by its major/minor device numbers. For
// backing files that aren't real block devices (the common case under
// the memory or plain-file ioring backends), IDFromCounter synthesizes
// one from a process-local counter instead.
type ID struct {
	Major uint32
	Minor uint32
}

var nextSynthetic uint32

// IDFromCounter allocates a synthetic ID for a backing store that has no
// real device number (a plain file or an in-memory device). Synthetic
// IDs use Major 0, which unix.Mkdev never assigns to a real device.
func IDFromCounter() ID {
	nextSynthetic++
	return ID{Major: 0, Minor: nextSynthetic}
}

// Registry is a concurrent (major, minor) -> engine map. The zero value
// is ready to use; most callers use the package-level Default instead of
// constructing their own.
type Registry struct {
	mu sync.RWMutex
	m  map[ID]*commit.Engine
}

// Default is the process-wide registry used by Mount/Unmount.
var Default = &Registry{}

// Register adds id -> eng, failing if id is already mounted.
func (r *Registry) Register(id ID, eng *commit.Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[ID]*commit.Engine)
	}
	if _, exists := r.m[id]; exists {
		return ErrAlreadyMounted
	}
	r.m[id] = eng
	return nil
}

// Lookup returns the engine mounted on id, if any.
func (r *Registry) Lookup(id ID) (*commit.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.m[id]
	return eng, ok
}

// Unregister removes id from the registry. It is a no-op if id isn't
// present.
func (r *Registry) Unregister(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
}

// Len reports the number of currently-registered mounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
