package arena

import (
	"fmt"

	"github.com/joshuapare/arenakit/internal/format"
)

// BoundaryTags keeps occupied blocks on a doubly-linked list in address
// order. Free space is never written down: it is the gap between the end of
// one occupied block and the start of the next.
type BoundaryTags struct {
	core
}

// NewBoundaryTags creates an engine managing size usable bytes.
func NewBoundaryTags(size int, opts *Options) (*BoundaryTags, error) {
	opts = opts.orDefault()
	a := &BoundaryTags{}
	a.init(KindBoundaryTags, opts)
	defer a.scope(SeverityTrace, "construct")()

	if !opts.FitMode.valid() {
		return nil, a.fail("construct", fmt.Errorf("%w: %d", ErrInvalidFitMode, uint8(opts.FitMode)))
	}
	if size < format.BTHeaderSize || size > MaxArenaSize-usableStart {
		return nil, a.fail("construct", fmt.Errorf("%w: %d bytes (need %d..%d)",
			ErrInvalidSize, size, format.BTHeaderSize, MaxArenaSize-usableStart))
	}
	if err := a.acquire(usableStart + size); err != nil {
		return nil, a.fail("construct", err)
	}
	if err := a.writeHeader(format.MagicBoundaryTags, opts.FitMode, 0, size, size, format.NullOffset); err != nil {
		_ = a.Release()
		return nil, a.fail("construct", err)
	}
	return a, nil
}

func (a *BoundaryTags) prev(b int) int     { return int(a.u64(b + format.BTPrevOffset)) }
func (a *BoundaryTags) next(b int) int     { return int(a.u64(b + format.BTNextOffset)) }
func (a *BoundaryTags) size(b int) int     { return int(a.u64(b + format.BTSizeOffset)) }
func (a *BoundaryTags) owner(b int) uint64 { return a.u64(b + format.BTOwnerOffset) }

// Allocate carves elemSize*count bytes plus a block header out of a gap
// chosen by the current fit mode.
func (a *BoundaryTags) Allocate(elemSize, count int) (Ref, []byte, error) {
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
	requested := n + format.BTHeaderSize

	var (
		found         bool
		start, gap    int
		before, after int
		mode          = a.fit()
		left, cur     = format.NullOffset, a.head()
	)
	for {
		gapStart := usableStart
		if left != format.NullOffset {
			gapStart = left + a.size(left)
		}
		gapEnd := a.end()
		if cur != format.NullOffset {
			gapEnd = cur
		}
		if size := gapEnd - gapStart; size >= requested {
			better := !found
			switch {
			case found && mode == BestFit:
				better = size < gap
			case found && mode == WorstFit:
				better = size > gap
			}
			if better {
				found = true
				start, gap, before, after = gapStart, size, left, cur
			}
			if mode == FirstFit {
				break
			}
		}
		if cur == format.NullOffset {
			break
		}
		left, cur = cur, a.next(cur)
	}
	if !found {
		return 0, nil, a.fail("allocate", fmt.Errorf("%w: no gap of %d bytes (%d available)",
			ErrOutOfMemory, requested, a.free()))
	}

	granted := requested
	if rem := gap - requested; rem > 0 && rem < format.BTHeaderSize {
		granted = gap
		a.logf(SeverityWarning, "allocate: %d bytes requested, granted %d to absorb a %d-byte remainder",
			requested, granted, rem)
	}

	a.putU64(start+format.BTPrevOffset, uint64(before))
	a.putU64(start+format.BTNextOffset, uint64(after))
	a.putU64(start+format.BTSizeOffset, uint64(granted))
	a.putU64(start+format.BTOwnerOffset, a.tag)
	if before == format.NullOffset {
		a.setHead(start)
	} else {
		a.putU64(before+format.BTNextOffset, uint64(start))
	}
	if after != format.NullOffset {
		a.putU64(after+format.BTPrevOffset, uint64(start))
	}
	a.setFree(a.free() - granted)
	a.touch()
	a.mark(start, granted)

	a.logAvailable("allocate")
	a.logBlocks(a.blocksLocked)

	payload := start + format.BTHeaderSize
	return a.ref(payload), a.mem[payload : payload+n : start+granted], nil
}

// Deallocate unlinks the block behind ref; the gap it leaves is free space.
func (a *BoundaryTags) Deallocate(ref Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.scope(SeverityDebug, "deallocate")()

	if a.mem == nil {
		return a.fail("deallocate", ErrReleased)
	}
	b, err := a.locate(ref, format.BTHeaderSize)
	if err != nil {
		return a.fail("deallocate", err)
	}
	if owner := a.owner(b); owner != a.tag {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x owned by %d, allocator %d",
			ErrForeignBlock, b, owner, a.tag))
	}
	size := a.size(b)
	if size < format.BTHeaderSize || b+size > a.end() {
		return a.fail("deallocate", fmt.Errorf("%w: block 0x%x has size %d", ErrBadRef, b, size))
	}
	a.logDump(b, size)

	before, after := a.prev(b), a.next(b)
	if before == format.NullOffset {
		a.setHead(after)
	} else {
		a.putU64(before+format.BTNextOffset, uint64(after))
	}
	if after != format.NullOffset {
		a.putU64(after+format.BTPrevOffset, uint64(before))
	}
	a.putU64(b+format.BTOwnerOffset, 0)
	a.setFree(a.free() + size)
	a.touch()

	a.logAvailable("deallocate")
	a.logBlocks(a.blocksLocked)
	return nil
}

// BlocksInfo reports occupied blocks and the gaps between them.
func (a *BoundaryTags) BlocksInfo() []BlockInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	return a.blocksLocked()
}

func (a *BoundaryTags) blocksLocked() []BlockInfo {
	var out []BlockInfo
	pos := usableStart
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		if b > pos {
			out = append(out, BlockInfo{Size: b - pos})
		}
		size := a.size(b)
		out = append(out, BlockInfo{Occupied: true, Size: size})
		pos = b + size
	}
	if pos < a.end() {
		out = append(out, BlockInfo{Size: a.end() - pos})
	}
	return out
}

func (a *BoundaryTags) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return Stats{Kind: a.kind, KindName: a.kind.Name()}
	}
	return a.statsLocked(a.blocksLocked())
}

// Validate checks list order and links, block bounds, ownership and the free
// counter.
func (a *BoundaryTags) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return ErrReleased
	}
	return a.validateLocked(a.tag)
}

func (a *BoundaryTags) validateLocked(owner uint64) error {
	h, err := a.checkHeader(format.MagicBoundaryTags, owner)
	if err != nil {
		return err
	}
	if h.Order != 0 {
		return corruptf("order %d on a boundary-tag arena", h.Order)
	}
	limit := a.usable()/format.BTHeaderSize + 1
	pos, left, gaps := usableStart, format.NullOffset, 0
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		if limit--; limit < 0 {
			return corruptf("occupied list does not terminate")
		}
		if b < pos || b+format.BTHeaderSize > a.end() {
			return corruptf("block 0x%x out of order or out of bounds", b)
		}
		if gap := b - pos; gap > 0 && gap < format.BTHeaderSize {
			return corruptf("%d-byte gap before block 0x%x", gap, b)
		}
		if a.prev(b) != left {
			return corruptf("block 0x%x prev 0x%x, want 0x%x", b, a.prev(b), left)
		}
		size := a.size(b)
		if size < format.BTHeaderSize || b+size > a.end() {
			return corruptf("block 0x%x size %d", b, size)
		}
		if a.owner(b) != owner {
			return corruptf("block 0x%x owner %d, want %d", b, a.owner(b), owner)
		}
		gaps += b - pos
		pos, left = b+size, b
	}
	gaps += a.end() - pos
	if gaps != a.free() {
		return corruptf("free counter %d, gaps total %d", a.free(), gaps)
	}
	return nil
}

func (a *BoundaryTags) retag() {
	for b := a.head(); b != format.NullOffset; b = a.next(b) {
		a.putU64(b+format.BTOwnerOffset, a.tag)
	}
}

func (a *BoundaryTags) occupiedAt(hdr int) bool {
	for b := a.head(); b != format.NullOffset && b <= hdr; b = a.next(b) {
		if b == hdr {
			return a.owner(b) == a.tag
		}
	}
	return false
}

func (a *BoundaryTags) Rebind(ref Ref) (Ref, error) {
	return a.rebind(ref, format.BTHeaderSize, a.occupiedAt)
}

// Clone returns a deep copy under a new owner tag. References into the
// source are translated with Rebind.
func (a *BoundaryTags) Clone() (*BoundaryTags, error) {
	dst := &BoundaryTags{}
	if err := a.cloneInto(&dst.core); err != nil {
		return nil, err
	}
	dst.retag()
	return dst, nil
}

// Move transfers the arena to a new value; a is released afterwards.
func (a *BoundaryTags) Move() (*BoundaryTags, error) {
	dst := &BoundaryTags{}
	if err := a.moveInto(&dst.core); err != nil {
		return nil, err
	}
	return dst, nil
}
