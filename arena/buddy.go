package arena

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/arenakit/internal/format"
)

const (
	// MinBuddyOrder is the smallest order whose block can hold a free header.
	MinBuddyOrder = 5

	// MaxBuddyOrder is the largest arena order a Ref can address.
	MaxBuddyOrder = 39
)

// Buddy manages a usable region of exactly 2^order bytes as power-of-two
// blocks. Free blocks sit on one address-ordered doubly-linked list; a
// block's buddy is found by flipping bit k of its offset from the start of
// the usable region.
type Buddy struct {
	core
}

// NewBuddy creates an engine whose usable region is 2^order bytes.
func NewBuddy(order int, opts *Options) (*Buddy, error) {
	opts = opts.orDefault()
	a := &Buddy{}
	a.init(KindBuddy, opts)
	defer a.scope(SeverityTrace, "construct")()

	if !opts.FitMode.valid() {
		return nil, a.fail("construct", fmt.Errorf("%w: %d", ErrInvalidFitMode, uint8(opts.FitMode)))
	}
	if order < MinBuddyOrder || order > MaxBuddyOrder {
		return nil, a.fail("construct", fmt.Errorf("%w: order %d (need %d..%d)",
			ErrInvalidSize, order, MinBuddyOrder, MaxBuddyOrder))
	}
	size := 1 << order
	if err := a.acquire(usableStart + size); err != nil {
		return nil, a.fail("construct", err)
	}
	if err := a.writeHeader(format.MagicBuddy, opts.FitMode, uint8(order), size, size, usableStart); err != nil {
		_ = a.Release()
		return nil, a.fail("construct", err)
	}
	a.putI8(usableStart+format.BuddyOrderOffset, int8(order))
	a.putU64(usableStart+format.BuddyPrevOffset, format.NullOffset)
	a.putU64(usableStart+format.BuddyNextOffset, format.NullOffset)
	return a, nil
}

// buddyOf returns the offset of the buddy of the order-k block at rel, both
// relative to the start of the usable region.
func buddyOf(rel, k int) int {
	return rel ^ (1 << k)
}

// orderFor returns the smallest k with 2^k >= n.
func orderFor(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func (a *Buddy) arenaOrder() int { return int(format.ReadU8(a.mem, format.ArenaOrderOffset)) }

func (a *Buddy) order(b int) int    { return int(a.i8(b + format.BuddyOrderOffset)) }
func (a *Buddy) prev(b int) int     { return int(a.u64(b + format.BuddyPrevOffset)) }
func (a *Buddy) next(b int) int     { return int(a.u64(b + format.BuddyNextOffset)) }
func (a *Buddy) owner(b int) uint64 { return a.u64(b + format.BuddyOwnerOffset) }

func (a *Buddy) setPrev(b, v int) { a.putU64(b+format.BuddyPrevOffset, uint64(v)) }
func (a *Buddy) setNext(b, v int) { a.putU64(b+format.BuddyNextOffset, uint64(v)) }

// Order returns the arena order; Capacity is 2^Order.
func (a *Buddy) Order() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return 0
	}
	return a.arenaOrder()
}

// unlink removes free block b from the free list.
func (a *Buddy) unlink(b int) {
	before, after := a.prev(b), a.next(b)
	if before == format.NullOffset {
		a.setHead(after)
	} else {
		a.setNext(before, after)
	}
	if after != format.NullOffset {
		a.setPrev(after, before)
	}
}

// insert links free block b into the free list at its address-ordered
// position.
func (a *Buddy) insert(b int) {
	before, after := format.NullOffset, a.head()
	for after != format.NullOffset && after < b {
		before, after = after, a.next(after)
	}
	a.setPrev(b, before)
	a.setNext(b, after)
	if before == format.NullOffset {
		a.setHead(b)
	} else {
		a.setNext(before, b)
	}
	if after != format.NullOffset {
		a.setPrev(after, b)
	}
}

// Allocate rounds elemSize*count plus the occupied header up to a power of
// two and splits a free block down to that size.
func (a *Buddy) Allocate(elemSize, count int) (Ref, []byte, error) {
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
	k := orderFor(max(n+format.BuddyOccupHeaderSize, format.BuddyFreeHeaderSize))
	if k > a.arenaOrder() || 1<<k > a.free() {
		return 0, nil, a.fail("allocate", fmt.Errorf("%w: order %d block needs %d bytes, %d available",
			ErrOutOfMemory, k, 1<<k, a.free()))
	}

	found, best := format.NullOffset, 0
	mode := a.fit()
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		o := a.order(b)
		if o < k {
			continue
		}
		if mode == FirstFit {
			found = b
			break
		}
		if found == format.NullOffset ||
			(mode == BestFit && o <= best) ||
			(mode == WorstFit && o >= best) {
			found, best = b, o
		}
	}
	if found == format.NullOffset {
		return 0, nil, a.fail("allocate", fmt.Errorf("%w: no free block of order %d", ErrOutOfMemory, k))
	}

	b := found
	for o := a.order(b); o > k; {
		o--
		half := b + 1<<o
		after := a.next(b)
		a.putI8(half+format.BuddyOrderOffset, int8(o))
		a.setPrev(half, b)
		a.setNext(half, after)
		if after != format.NullOffset {
			a.setPrev(after, half)
		}
		a.setNext(b, half)
		a.putI8(b+format.BuddyOrderOffset, int8(o))
	}
	a.unlink(b)
	a.putI8(b+format.BuddyOrderOffset, int8(-k))
	a.putU64(b+format.BuddyOwnerOffset, a.tag)
	a.setFree(a.free() - 1<<k)
	a.touch()
	a.mark(b, 1<<k)

	a.logAvailable("allocate")
	a.logBlocks(a.blocksLocked)

	payload := b + format.BuddyOccupHeaderSize
	return a.ref(payload), a.mem[payload : payload+n : b+1<<k], nil
}

// Deallocate frees the block behind ref and merges it with its buddy for as
// long as the buddy is free and of the same order.
func (a *Buddy) Deallocate(ref Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.scope(SeverityDebug, "deallocate")()

	if a.mem == nil {
		return a.fail("deallocate", ErrReleased)
	}
	b, err := a.locate(ref, format.BuddyOccupHeaderSize)
	if err != nil {
		return a.fail("deallocate", err)
	}
	o := a.order(b)
	if o >= 0 {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x is not occupied", ErrForeignBlock, b))
	}
	if owner := a.owner(b); owner != a.tag {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x owned by %d, allocator %d",
			ErrForeignBlock, b, owner, a.tag))
	}
	k, top := -o, a.arenaOrder()
	if k < MinBuddyOrder || k > top || (b-usableStart)&(1<<k-1) != 0 {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x has order %d", ErrBadRef, b, k))
	}
	a.logDump(b, 1<<k)
	a.setFree(a.free() + 1<<k)
	// The header may end up inside a merged block; it must not read as
	// occupied on a second free.
	a.putI8(b+format.BuddyOrderOffset, int8(k))

	for k < top {
		bud := usableStart + buddyOf(b-usableStart, k)
		if a.order(bud) != k {
			break
		}
		a.unlink(bud)
		b = min(b, bud)
		k++
	}
	a.putI8(b+format.BuddyOrderOffset, int8(k))
	a.insert(b)
	a.touch()

	a.logAvailable("deallocate")
	a.logBlocks(a.blocksLocked)
	return nil
}

// BlocksInfo walks the usable region block by block.
func (a *Buddy) BlocksInfo() []BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	return a.blocksLocked()
}

func (a *Buddy) blocksLocked() []BlockInfo {
	var out []BlockInfo
	for b := usableStart; b < a.end(); {
		o := a.order(b)
		size := 1 << abs(o)
		out = append(out, BlockInfo{Occupied: o < 0, Size: size})
		b += size
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (a *Buddy) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return Stats{Kind: a.kind, KindName: a.kind.Name()}
	}
	return a.statsLocked(a.blocksLocked())
}

// Validate checks block alignment, the free list and the free counter, and
// that no two free buddies were left unmerged.
func (a *Buddy) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return ErrReleased
	}
	return a.validateLocked(a.tag)
}

func (a *Buddy) validateLocked(owner uint64) error {
	h, err := a.checkHeader(format.MagicBuddy, owner)
	if err != nil {
		return err
	}
	top := int(h.Order)
	if top < MinBuddyOrder || top > MaxBuddyOrder || h.Usable != 1<<top {
		return corruptf("order %d for %d usable bytes", top, h.Usable)
	}

	freeBlocks := make(map[int]int)
	freeBytes := 0
	for b := usableStart; b < a.end(); {
		o := a.order(b)
		k := abs(o)
		if k < MinBuddyOrder || k > top {
			return corruptf("block 0x%x has order %d", b, o)
		}
		if (b-usableStart)&(1<<k-1) != 0 || b+1<<k > a.end() {
			return corruptf("block 0x%x of order %d is misaligned", b, k)
		}
		if o < 0 {
			if a.owner(b) != owner {
				return corruptf("block 0x%x owner %d, want %d", b, a.owner(b), owner)
			}
		} else {
			freeBlocks[b] = k
			freeBytes += 1 << k
			if k < top {
				bud := usableStart + buddyOf(b-usableStart, k)
				if bud > b && a.order(bud) == k {
					return corruptf("free buddies 0x%x and 0x%x of order %d not merged", b, bud, k)
				}
			}
		}
		b += 1 << k
	}
	if freeBytes != a.free() {
		return corruptf("free counter %d, free blocks total %d", a.free(), freeBytes)
	}

	left, seen := format.NullOffset, 0
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		if _, ok := freeBlocks[b]; !ok {
			return corruptf("free list entry 0x%x is not a free block", b)
		}
		if b <= left {
			return corruptf("free list out of address order at 0x%x", b)
		}
		if a.prev(b) != left {
			return corruptf("free block 0x%x prev 0x%x, want 0x%x", b, a.prev(b), left)
		}
		left = b
		seen++
	}
	if seen != len(freeBlocks) {
		return corruptf("free list holds %d of %d free blocks", seen, len(freeBlocks))
	}
	return nil
}

func (a *Buddy) retag() {
	for b := usableStart; b < a.end(); b += 1 << abs(a.order(b)) {
		if a.order(b) < 0 {
			a.putU64(b+format.BuddyOwnerOffset, a.tag)
		}
	}
}

func (a *Buddy) occupiedAt(hdr int) bool {
	for b := usableStart; b < a.end() && b <= hdr; b += 1 << abs(a.order(b)) {
		if b == hdr {
			return a.order(b) < 0 && a.owner(b) == a.tag
		}
	}
	return false
}

func (a *Buddy) Rebind(ref Ref) (Ref, error) {
	return a.rebind(ref, format.BuddyOccupHeaderSize, a.occupiedAt)
}

// Clone returns a deep copy under a new owner tag.
func (a *Buddy) Clone() (*Buddy, error) {
	dst := &Buddy{}
	if err := a.cloneInto(&dst.core); err != nil {
		return nil, err
	}
	dst.retag()
	return dst, nil
}

// Move transfers the arena to a new value; a is released afterwards.
func (a *Buddy) Move() (*Buddy, error) {
	dst := &Buddy{}
	if err := a.moveInto(&dst.core); err != nil {
		return nil, err
	}
	return dst, nil
}
