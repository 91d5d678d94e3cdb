package arena

import (
	"fmt"
	"math"

	"github.com/joshuapare/arenakit/internal/format"
)

// SortedList keeps free blocks of any size on a singly-linked list in
// address order. Physically adjacent free blocks are merged on every
// deallocation, so two free blocks never touch.
type SortedList struct {
	core
}

// NewSortedList creates an engine managing size usable bytes.
func NewSortedList(size int, opts *Options) (*SortedList, error) {
	opts = opts.orDefault()
	a := &SortedList{}
	a.init(KindSortedList, opts)
	defer a.scope(SeverityTrace, "construct")()

	if !opts.FitMode.valid() {
		return nil, a.fail("construct", fmt.Errorf("%w: %d", ErrInvalidFitMode, uint8(opts.FitMode)))
	}
	if size < format.SLFreeHeaderSize || size > math.MaxInt32 {
		return nil, a.fail("construct", fmt.Errorf("%w: %d bytes (need %d..%d)",
			ErrInvalidSize, size, format.SLFreeHeaderSize, math.MaxInt32))
	}
	if err := a.acquire(usableStart + size); err != nil {
		return nil, a.fail("construct", err)
	}
	if err := a.writeHeader(format.MagicSortedList, opts.FitMode, 0, size, size, usableStart); err != nil {
		_ = a.Release()
		return nil, a.fail("construct", err)
	}
	a.setSize(usableStart, size)
	a.setNext(usableStart, format.NullOffset)
	return a, nil
}

// size is positive for free blocks and negative for occupied ones.
func (a *SortedList) size(b int) int     { return int(a.i32(b + format.SLSizeOffset)) }
func (a *SortedList) next(b int) int     { return int(a.u64(b + format.SLNextOffset)) }
func (a *SortedList) owner(b int) uint64 { return a.u64(b + format.SLOwnerOffset) }

func (a *SortedList) setSize(b, v int) { a.putI32(b+format.SLSizeOffset, int32(v)) }
func (a *SortedList) setNext(b, v int) { a.putU64(b+format.SLNextOffset, uint64(v)) }

// link points the list entry before a block (the arena head when left is
// null) at b.
func (a *SortedList) link(left, b int) {
	if left == format.NullOffset {
		a.setHead(b)
	} else {
		a.setNext(left, b)
	}
}

// Allocate takes a free block chosen by the current fit mode and splits off
// the remainder when it can hold a free header.
func (a *SortedList) Allocate(elemSize, count int) (Ref, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.scope(SeverityDebug, "allocate")()

	if a.mem == nil {
		return 0, nil, a.fail("allocate", ErrReleased)
	}
	n, err := payloadSize(elemSize, count)
	if err != nil {
		return 0, nil, a.fail("allocate", err)
	}
	requested := max(n+format.SLOccupHeaderSize, format.SLFreeHeaderSize)
	if requested > a.free() {
		return 0, nil, a.fail("allocate", fmt.Errorf("%w: %d bytes requested, %d available",
			ErrOutOfMemory, requested, a.free()))
	}

	var (
		found            bool
		chosen, chosenAt int
		chosenSize       int
		mode             = a.fit()
	)
	left := format.NullOffset
	for b := a.head(); b != format.NullOffset; left, b = b, a.next(b) {
		s := a.size(b)
		if s < requested {
			continue
		}
		better := !found
		switch {
		case found && mode == BestFit:
			better = s < chosenSize
		case found && mode == WorstFit:
			better = s > chosenSize
		}
		if better {
			found = true
			chosen, chosenAt, chosenSize = b, left, s
		}
		if mode == FirstFit {
			break
		}
	}
	if !found {
		return 0, nil, a.fail("allocate", fmt.Errorf("%w: no free block of %d bytes (%d available)",
			ErrOutOfMemory, requested, a.free()))
	}

	after := a.next(chosen)
	granted := requested
	if rem := chosenSize - requested; rem < format.SLFreeHeaderSize {
		granted = chosenSize
		if rem > 0 {
			a.logf(SeverityWarning, "allocate: %d bytes requested, granted %d to absorb a %d-byte remainder",
				requested, granted, rem)
		}
		a.link(chosenAt, after)
	} else {
		tail := chosen + requested
		a.setSize(tail, rem)
		a.setNext(tail, after)
		a.link(chosenAt, tail)
	}
	a.setSize(chosen, -granted)
	a.putU64(chosen+format.SLOwnerOffset, a.tag)
	a.setFree(a.free() - granted)
	a.touch()
	a.mark(chosen, granted)

	a.logAvailable("allocate")
	a.logBlocks(a.blocksLocked)

	payload := chosen + format.SLOccupHeaderSize
	return a.ref(payload), a.mem[payload : payload+n : chosen+granted], nil
}

// Deallocate returns the block behind ref to the free list, merging it with
// the free blocks physically before and after it.
func (a *SortedList) Deallocate(ref Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.scope(SeverityDebug, "deallocate")()

	if a.mem == nil {
		return a.fail("deallocate", ErrReleased)
	}
	b, err := a.locate(ref, format.SLOccupHeaderSize)
	if err != nil {
		return a.fail("deallocate", err)
	}
	s := a.size(b)
	if s >= 0 {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x is not occupied", ErrForeignBlock, b))
	}
	if owner := a.owner(b); owner != a.tag {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x owned by %d, allocator %d",
			ErrForeignBlock, b, owner, a.tag))
	}
	size := -s
	if size < format.SLOccupHeaderSize || b+size > a.end() {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x has size %d", ErrBadRef, b, size))
	}
	a.logDump(b, size)
	a.setFree(a.free() + size)

	left, right := format.NullOffset, a.head()
	for right != format.NullOffset && right < b {
		left, right = right, a.next(right)
	}

	a.setSize(b, size)
	a.setNext(b, right)
	if right != format.NullOffset && b+size == right {
		size += a.size(right)
		a.setSize(b, size)
		a.setNext(b, a.next(right))
	}
	if left != format.NullOffset && left+a.size(left) == b {
		a.setSize(left, a.size(left)+size)
		a.setNext(left, a.next(b))
	} else {
		a.link(left, b)
	}
	a.touch()

	a.logAvailable("deallocate")
	a.logBlocks(a.blocksLocked)
	return nil
}

// BlocksInfo walks the usable region block by block.
func (a *SortedList) BlocksInfo() []BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	return a.blocksLocked()
}

func (a *SortedList) blocksLocked() []BlockInfo {
	var out []BlockInfo
	for b := usableStart; b < a.end(); {
		s := a.size(b)
		size := abs(s)
		if size < format.SLFreeHeaderSize {
			break
		}
		out = append(out, BlockInfo{Occupied: s < 0, Size: size})
		b += size
	}
	return out
}

func (a *SortedList) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return Stats{Kind: a.kind, KindName: a.kind.Name()}
	}
	return a.statsLocked(a.blocksLocked())
}

// Validate checks block bounds, the free list order, that no two free
// blocks touch and the free counter.
func (a *SortedList) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return ErrReleased
	}
	return a.validateLocked(a.tag)
}

func (a *SortedList) validateLocked(owner uint64) error {
	h, err := a.checkHeader(format.MagicSortedList, owner)
	if err != nil {
		return err
	}
	if h.Order != 0 || h.Usable < format.SLFreeHeaderSize || h.Usable > math.MaxInt32 {
		return corruptf("sorted-list arena of %d usable bytes, order %d", h.Usable, h.Order)
	}

	freeBlocks := make(map[int]bool)
	freeBytes, prevFree := 0, false
	for b := usableStart; b < a.end(); {
		s := a.size(b)
		size := abs(s)
		if size < format.SLFreeHeaderSize || b+size > a.end() {
			return corruptf("block 0x%x has size %d", b, s)
		}
		if s < 0 {
			if a.owner(b) != owner {
				return corruptf("block 0x%x owner %d, want %d", b, a.owner(b), owner)
			}
			prevFree = false
		} else {
			if prevFree {
				return corruptf("free block 0x%x follows another free block", b)
			}
			freeBlocks[b] = true
			freeBytes += size
			prevFree = true
		}
		b += size
	}
	if freeBytes != a.free() {
		return corruptf("free counter %d, free blocks total %d", a.free(), freeBytes)
	}

	left, seen := format.NullOffset, 0
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		if !freeBlocks[b] {
			return corruptf("free list entry 0x%x is not a free block", b)
		}
		if b <= left {
			return corruptf("free list out of address order at 0x%x", b)
		}
		left = b
		seen++
	}
	if seen != len(freeBlocks) {
		return corruptf("free list holds %d of %d free blocks", seen, len(freeBlocks))
	}
	return nil
}

func (a *SortedList) retag() {
	for b := usableStart; b < a.end(); b += abs(a.size(b)) {
		if a.size(b) < 0 {
			a.putU64(b+format.SLOwnerOffset, a.tag)
		}
	}
}

func (a *SortedList) occupiedAt(hdr int) bool {
	for b := usableStart; b < a.end() && b <= hdr; b += abs(a.size(b)) {
		if b == hdr {
			return a.size(b) < 0 && a.owner(b) == a.tag
		}
	}
	return false
}

func (a *SortedList) Rebind(ref Ref) (Ref, error) {
	return a.rebind(ref, format.SLOccupHeaderSize, a.occupiedAt)
}

// Clone returns a deep copy under a new owner tag.
func (a *SortedList) Clone() (*SortedList, error) {
	dst := &SortedList{}
	if err := a.cloneInto(&dst.core); err != nil {
		return nil, err
	}
	dst.retag()
	return dst, nil
}

// Move transfers the arena to a new value; a is released afterwards.
func (a *SortedList) Move() (*SortedList, error) {
	dst := &SortedList{}
	if err := a.moveInto(&dst.core); err != nil {
		return nil, err
	}
	return dst, nil
}
