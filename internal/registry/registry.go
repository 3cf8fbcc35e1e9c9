// Package registry assigns stable integer identities to external objects.
//
// The registry is an append-only sequence: an object's identity is its
// position, assigned the first time the object is observed, and it never
// changes for the lifetime of the process. Nothing is ever removed, so
// stale objects are retained (no GC of the external tree is attempted).
package registry

import (
	"fmt"
	"sync"

	"github.com/roach88/parallel/internal/host"
)

// CodeIdentityViolation is the error code carried by IdentityError.
const CodeIdentityViolation = "IDENTITY_VIOLATION"

// IdentityError reports a lookup of an index that was never assigned.
//
// It indicates a bug in identity bookkeeping, not a caller mistake, and is
// raised with panic: Resolve never returns it.
type IdentityError struct {
	Index int
	Len   int
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s: index %d was never assigned (registry holds %d objects)", CodeIdentityViolation, e.Index, e.Len)
}

// Registry maps external objects to stable indices.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	objects []host.Object
	index   map[host.Object]int // identity marker
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		index: make(map[host.Object]int),
	}
}

// Identify returns obj's index, appending obj on first observation.
// Idempotent: repeated calls with the same object return the same index.
func (r *Registry) Identify(obj host.Object) int {
	r.mu.RLock()
	idx, ok := r.index[obj]
	r.mu.RUnlock()
	if ok {
		return idx
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another goroutine may have won the race.
	if idx, ok := r.index[obj]; ok {
		return idx
	}
	idx = len(r.objects)
	r.objects = append(r.objects, obj)
	r.index[obj] = idx
	return idx
}

// Lookup returns obj's index without assigning one.
func (r *Registry) Lookup(obj host.Object) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.index[obj]
	return idx, ok
}

// Resolve returns the object at index.
//
// Panics with *IdentityError if index was never assigned.
func (r *Registry) Resolve(index int) host.Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.objects) {
		panic(&IdentityError{Index: index, Len: len(r.objects)})
	}
	return r.objects[index]
}

// Len returns the number of identified objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
