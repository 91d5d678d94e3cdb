package arena

import "github.com/joshuapare/arenakit/arena/dirty"

// Allocator hands out byte ranges. Engines consume one to acquire their arena
// and implement it themselves, so arenas nest.
type Allocator interface {
	// Allocate reserves elemSize*count bytes and returns a reference plus a
	// slice aliasing the reserved payload.
	Allocate(elemSize, count int) (Ref, []byte, error)

	// Deallocate returns a reference obtained from Allocate on the same
	// allocator.
	Deallocate(ref Ref) error
}

// Arena is the operation set shared by every engine.
type Arena interface {
	Allocator

	// SetFitMode changes the search policy for subsequent allocations.
	SetFitMode(mode FitMode) error
	FitMode() FitMode

	// BlocksInfo lists every block of the usable region in address order.
	BlocksInfo() []BlockInfo

	// Available returns the free-space counter stored in the arena header.
	Available() int

	// Capacity returns the size of the usable region.
	Capacity() int

	Kind() Kind

	// Tag returns the owner tag stamped into the arena header and into every
	// occupied block.
	Tag() uint64

	Stats() Stats

	// Bytes returns a copy of the arena image.
	Bytes() []byte

	// View calls fn with the live arena image while holding the engine lock.
	// fn must not retain or modify the slice.
	View(fn func(image []byte) error) error

	// Validate walks the encoded block structure and reports the first
	// inconsistency as ErrCorrupt.
	Validate() error

	// Rebind translates a reference minted by the engine this one was cloned
	// or restored from into a reference owned by this engine.
	Rebind(ref Ref) (Ref, error)

	// Release returns the arena to its upstream allocator. It is safe to call
	// more than once.
	Release() error
}

// DirtyTracker is told about every byte range an engine writes.
type DirtyTracker = dirty.DirtyTracker

// tagged is implemented by allocators that can report an owner tag.
type tagged interface {
	Tag() uint64
}

var (
	_ Arena     = (*BoundaryTags)(nil)
	_ Arena     = (*Buddy)(nil)
	_ Arena     = (*SortedList)(nil)
	_ Allocator = (*Heap)(nil)
)
