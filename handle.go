package marionette

import "fmt"

// HandleKind tags a Handle with the kind of engine resource it names.
type HandleKind uint8

const (
	KindNone         HandleKind = iota // zero value; never allocated
	KindFile                           // loaded content file
	KindArtboard                       // artboard instanced from a file
	KindStateMachine                   // state machine instanced from an artboard
	KindViewModel                      // view-model instance bound to data
	KindSurface                        // render surface owned by the backend
)

func (k HandleKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindArtboard:
		return "artboard"
	case KindStateMachine:
		return "state machine"
	case KindViewModel:
		return "view model"
	case KindSurface:
		return "surface"
	default:
		return "none"
	}
}

// Handle is an opaque, copyable token naming an engine-owned resource.
// Handles are unique and strictly increasing within a queue instance; a
// freed handle's ID is never reused, so stale handles are detected as
// ErrInvalidHandle rather than silently aliasing a newer resource.
//
// Callers own only the token. The mapping to the native object lives in
// the worker goroutine's registry and is never shared.
type Handle struct {
	Kind HandleKind
	ID   uint64
}

// IsZero reports whether h is the zero (never-allocated) handle.
func (h Handle) IsZero() bool { return h.Kind == KindNone && h.ID == 0 }

func (h Handle) String() string { return fmt.Sprintf("%s#%d", h.Kind, h.ID) }

// Typed handles for each resource kind. They convert freely to and from
// Handle; the distinct types keep call sites honest.
type (
	FileHandle         Handle
	ArtboardHandle     Handle
	StateMachineHandle Handle
	ViewModelHandle    Handle
	SurfaceHandle      Handle
)

// registryEntry pairs a native object with the kind it was allocated as.
type registryEntry struct {
	kind   HandleKind
	native any
}

// registry maps handle IDs to native objects. It is owned by the worker
// goroutine exclusively: allocation, resolution, and freeing all happen
// while executing commands, so no locking is needed.
type registry struct {
	next    uint64
	entries map[uint64]registryEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[uint64]registryEntry)}
}

// allocate stores native under a fresh, strictly increasing handle.
func (r *registry) allocate(kind HandleKind, native any) Handle {
	r.next++
	r.entries[r.next] = registryEntry{kind: kind, native: native}
	return Handle{Kind: kind, ID: r.next}
}

// resolve returns the native object for h, or ErrInvalidHandle if h was
// never allocated, was freed, or carries the wrong kind.
func (r *registry) resolve(h Handle) (any, error) {
	e, ok := r.entries[h.ID]
	if !ok {
		return nil, fmt.Errorf("resolve %v: %w", h, ErrInvalidHandle)
	}
	if e.kind != h.Kind {
		return nil, fmt.Errorf("resolve %v: registered as %s: %w", h, e.kind, ErrInvalidHandle)
	}
	return e.native, nil
}

// free removes h from the registry and returns its native object so the
// worker can release it. Freeing an unknown handle returns ErrInvalidHandle.
func (r *registry) free(h Handle) (any, error) {
	native, err := r.resolve(h)
	if err != nil {
		return nil, err
	}
	delete(r.entries, h.ID)
	return native, nil
}

// drain empties the registry, returning every remaining native object.
// Used during teardown to release leaked resources.
func (r *registry) drain() []any {
	natives := make([]any, 0, len(r.entries))
	for id, e := range r.entries {
		natives = append(natives, e.native)
		delete(r.entries, id)
	}
	return natives
}
