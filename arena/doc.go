// Package arena provides self-describing memory arenas with pluggable block
// management strategies.
//
// # Overview
//
// An arena is a single contiguous byte buffer acquired once from an upstream
// allocator (or the global heap) when the engine is constructed. All
// bookkeeping lives inside that buffer: a fixed 64-byte arena header followed
// by the usable region, where every block carries its own header. Links
// between blocks are byte offsets from the start of the buffer, so an arena
// image can be copied, moved, persisted and restored as a flat blob.
//
// # Engines
//
// Three engines implement the Arena interface:
//
//   - BoundaryTags: occupied blocks form a doubly-linked list in address order;
//     free space is the implicit gap between consecutive occupied blocks.
//   - Buddy: power-of-two blocks with binary splitting, XOR buddy lookup and
//     recursive coalescing. The usable region is exactly 2^order bytes.
//   - SortedList: an address-ordered singly-linked free list of variable-size
//     blocks, merged eagerly with physical neighbours on free.
//
// Each engine supports first-fit, best-fit and worst-fit search, selected at
// construction and changeable at runtime with SetFitMode.
//
// # Usage Example
//
//	sl, err := arena.NewSortedList(64*1024, &arena.Options{FitMode: arena.BestFit})
//	if err != nil {
//	    return err
//	}
//	defer sl.Release()
//
//	ref, payload, err := sl.Allocate(16, 10) // 10 elements of 16 bytes
//	if err != nil {
//	    return err
//	}
//	copy(payload, data)
//
//	err = sl.Deallocate(ref)
//
// # References
//
// Allocate returns a Ref and a slice aliasing the payload inside the arena.
// A Ref packs the owning engine's tag with the payload offset; Deallocate
// rejects references minted by another engine and references whose block
// header does not carry the engine's owner tag (double frees included).
//
// When an engine has to grow an allocation to avoid leaving an unusable
// fragment, the extra bytes are visible as cap(payload) > len(payload).
//
// # Upstream Allocators
//
// Every engine is itself an Allocator, so an arena can be carved out of
// another arena:
//
//	parent, _ := arena.NewBoundaryTags(1<<20, nil)
//	child, _ := arena.NewBuddy(16, &arena.Options{Upstream: parent})
//
// A nil Upstream means the process-wide Heap.
//
// # Thread Safety
//
// Allocate, Deallocate, SetFitMode and the introspection methods hold the
// engine's mutex for their whole body. Release, Clone and Move must not race
// with other calls on the same engine.
package arena
