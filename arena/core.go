package arena

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/joshuapare/arenakit/internal/buf"
	"github.com/joshuapare/arenakit/internal/format"
)

const usableStart = format.ArenaHeaderSize

// core is the state shared by every engine: the arena buffer, the lock that
// guards it and the collaborators recorded in the arena header.
type core struct {
	mu       sync.Mutex
	kind     Kind
	mem      []byte
	tag      uint64
	upstream Allocator
	upRef    Ref
	logger   Logger
	dirty    DirtyTracker
}

func (c *core) init(kind Kind, opts *Options) {
	opts = opts.orDefault()
	c.kind = kind
	c.tag = nextTag()
	c.upstream = opts.Upstream
	if c.upstream == nil {
		c.upstream = GlobalHeap
	}
	c.logger = opts.Logger
	c.dirty = opts.Dirty
}

// acquire obtains a zeroed buffer of total bytes from the upstream allocator.
func (c *core) acquire(total int) error {
	if total > MaxArenaSize {
		return fmt.Errorf("%w: arena of %d bytes exceeds %d", ErrInvalidSize, total, MaxArenaSize)
	}
	ref, mem, err := c.upstream.Allocate(1, total)
	if err != nil {
		return fmt.Errorf("%w: upstream: %w", ErrOutOfMemory, err)
	}
	if len(mem) < total {
		_ = c.upstream.Deallocate(ref)
		return fmt.Errorf("%w: upstream returned %d of %d bytes", ErrOutOfMemory, len(mem), total)
	}
	c.upRef = ref
	c.mem = mem[:total:total]
	clear(c.mem)
	return nil
}

func (c *core) flags() uint8 {
	var f uint8
	if _, ok := c.upstream.(*Heap); ok {
		f |= format.FlagGlobalHeap
	}
	if c.logger != nil {
		f |= format.FlagLogger
	}
	return f
}

func (c *core) upstreamTag() uint64 {
	if t, ok := c.upstream.(tagged); ok {
		return t.Tag()
	}
	return 0
}

// writeHeader initializes the arena header of a freshly acquired buffer.
func (c *core) writeHeader(magic []byte, fit FitMode, order uint8, usable, free, head int) error {
	h := format.ArenaHeader{
		Version:  format.ArenaVersion,
		Fit:      uint8(fit),
		Order:    order,
		Flags:    c.flags(),
		Total:    uint64(len(c.mem)),
		Usable:   uint64(usable),
		Free:     uint64(free),
		Owner:    c.tag,
		Upstream: c.upstreamTag(),
		Head:     uint64(head),
	}
	copy(h.Magic[:], magic)
	if err := format.EncodeArenaHeader(c.mem, h); err != nil {
		return err
	}
	c.mark(0, format.ArenaHeaderSize)
	return nil
}

// mark records a written byte range with the dirty tracker. A new
// allocation marks its whole block, since the caller is about to fill it.
func (c *core) mark(off, n int) {
	if c.dirty != nil {
		c.dirty.Add(off, n)
	}
}

// Accessors. Every write goes through these so the dirty tracker sees it.

func (c *core) u64(off int) uint64 { return format.ReadU64(c.mem, off) }
func (c *core) i32(off int) int32  { return format.ReadI32(c.mem, off) }
func (c *core) i8(off int) int8    { return format.ReadI8(c.mem, off) }

func (c *core) putU64(off int, v uint64) {
	format.PutU64(c.mem, off, v)
	c.mark(off, 8)
}

func (c *core) putI32(off int, v int32) {
	format.PutI32(c.mem, off, v)
	c.mark(off, 4)
}

func (c *core) putI8(off int, v int8) {
	format.PutI8(c.mem, off, v)
	c.mark(off, 1)
}

func (c *core) end() int     { return len(c.mem) }
func (c *core) usable() int  { return int(c.u64(format.ArenaUsableOffset)) }
func (c *core) free() int    { return int(c.u64(format.ArenaFreeOffset)) }
func (c *core) head() int    { return int(c.u64(format.ArenaHeadOffset)) }
func (c *core) fit() FitMode { return FitMode(format.ReadU8(c.mem, format.ArenaFitOffset)) }
func (c *core) setFree(v int) {
	c.putU64(format.ArenaFreeOffset, uint64(v))
}

func (c *core) setHead(off int) {
	c.putU64(format.ArenaHeadOffset, uint64(off))
}

// touch bumps the mutation sequence number.
func (c *core) touch() {
	c.putU64(format.ArenaSeqOffset, c.u64(format.ArenaSeqOffset)+1)
}

// Logging.

func (c *core) enabled(sev Severity) bool { return logEnabled(c.logger, sev) }

func (c *core) logf(sev Severity, format string, args ...any) {
	if !c.enabled(sev) {
		return
	}
	c.logger.Log(sev, c.kind.String()+": "+fmt.Sprintf(format, args...))
}

// scope logs START on entry; the returned func logs END.
//
//	defer c.scope(SeverityDebug, "allocate")()
func (c *core) scope(sev Severity, op string) func() {
	c.logf(sev, "START: %s", op)
	return func() { c.logf(sev, "END: %s", op) }
}

// fail logs err at error level and returns it.
func (c *core) fail(op string, err error) error {
	c.logf(SeverityError, "%s: %v", op, err)
	return err
}

func (c *core) logAvailable(op string) {
	c.logf(SeverityInformation, "%s: %d bytes available", op, c.free())
}

func (c *core) logBlocks(blocks func() []BlockInfo) {
	if c.enabled(SeverityDebug) {
		c.logf(SeverityDebug, "blocks: %s", Visualize(blocks()))
	}
}

func (c *core) logDump(off, n int) {
	if !c.enabled(SeverityDebug) {
		return
	}
	if b, ok := buf.Slice(c.mem, off, n); ok {
		c.logf(SeverityDebug, "block at 0x%x:\n%s", off, hex.Dump(b))
	}
}

// Reference handling.

func (c *core) ref(payload int) Ref {
	return makeRef(tagBits(c.tag), payload)
}

// locate maps ref to the offset of its block header. It checks that ref was
// minted by this engine and points inside the usable region; the caller
// still has to check the block header itself.
func (c *core) locate(ref Ref, hdrSize int) (int, error) {
	if ref.owner() != tagBits(c.tag) {
		return 0, fmt.Errorf("%w: reference %v, allocator tag %d", ErrForeignBlock, ref, c.tag)
	}
	hdr := ref.Offset() - hdrSize
	if hdr < usableStart || ref.Offset() > c.end() {
		return 0, fmt.Errorf("%w: %w: offset 0x%x outside [0x%x, 0x%x)",
			ErrBadRef, ErrForeignBlock, ref.Offset(), usableStart+hdrSize, c.end())
	}
	return hdr, nil
}

// rebind re-mints ref for this engine when the block behind it is an
// occupied block this engine owns.
func (c *core) rebind(ref Ref, hdrSize int, owned func(hdr int) bool) (Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return 0, ErrReleased
	}
	hdr := ref.Offset() - hdrSize
	if hdr < usableStart || ref.Offset() > c.end() {
		return 0, fmt.Errorf("%w: offset 0x%x", ErrBadRef, ref.Offset())
	}
	if !owned(hdr) {
		return 0, fmt.Errorf("%w: no occupied block at 0x%x", ErrBadRef, hdr)
	}
	return c.ref(ref.Offset()), nil
}

// Shared Arena methods.

func (c *core) Kind() Kind { return c.kind }

func (c *core) Tag() uint64 { return c.tag }

func (c *core) FitMode() FitMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return FirstFit
	}
	return c.fit()
}

func (c *core) SetFitMode(mode FitMode) error {
	if !mode.valid() {
		return c.fail("set fit mode", fmt.Errorf("%w: %d", ErrInvalidFitMode, uint8(mode)))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return c.fail("set fit mode", ErrReleased)
	}
	format.PutU8(c.mem, format.ArenaFitOffset, uint8(mode))
	c.mark(format.ArenaFitOffset, 1)
	c.logf(SeverityInformation, "fit mode set to %v", mode)
	return nil
}

func (c *core) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return 0
	}
	return c.free()
}

func (c *core) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return 0
	}
	return c.usable()
}

func (c *core) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return nil
	}
	out := make([]byte, len(c.mem))
	copy(out, c.mem)
	return out
}

func (c *core) View(fn func(image []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return ErrReleased
	}
	return fn(c.mem)
}

func (c *core) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return nil
	}
	defer c.scope(SeverityTrace, "release")()
	err := c.upstream.Deallocate(c.upRef)
	c.mem = nil
	c.upRef = 0
	if err != nil {
		return c.fail("release", fmt.Errorf("arena: release: %w", err))
	}
	return nil
}

// Copy and move.

// cloneInto fills dst with a deep copy of c's arena under a fresh tag. The
// caller retags the occupied blocks.
func (c *core) cloneInto(dst *core) error {
	defer c.scope(SeverityTrace, "clone")()

	c.mu.Lock()
	if c.mem == nil {
		c.mu.Unlock()
		return c.fail("clone", ErrReleased)
	}
	total := int(c.u64(format.ArenaTotalOffset))
	c.mu.Unlock()

	dst.kind = c.kind
	dst.tag = nextTag()
	dst.upstream = c.upstream
	dst.logger = c.logger
	if err := dst.acquire(total); err != nil {
		return c.fail("clone", err)
	}

	c.mu.Lock()
	if c.mem == nil {
		c.mu.Unlock()
		_ = dst.upstream.Deallocate(dst.upRef)
		dst.mem = nil
		return c.fail("clone", ErrReleased)
	}
	copy(dst.mem, c.mem)
	c.mu.Unlock()

	dst.putU64(format.ArenaOwnerOffset, dst.tag)
	return nil
}

// moveInto hands c's buffer and collaborators to dst and leaves c released.
func (c *core) moveInto(dst *core) error {
	defer c.scope(SeverityTrace, "move")()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mem == nil {
		return c.fail("move", ErrReleased)
	}
	dst.kind = c.kind
	dst.tag = c.tag
	dst.upstream = c.upstream
	dst.upRef = c.upRef
	dst.logger = c.logger
	dst.dirty = c.dirty
	dst.mem = c.mem
	c.mem = nil
	c.upRef = 0
	return nil
}

// Validation helpers.

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
}

// checkHeader validates the arena header against the buffer and the expected
// variant. owner is the tag the header and occupied blocks must carry.
func (c *core) checkHeader(magic []byte, owner uint64) (format.ArenaHeader, error) {
	h, err := format.DecodeArenaHeader(c.mem)
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := format.ValidateArenaHeader(h, len(c.mem)); err != nil {
		return h, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !format.HasMagic(h.Magic[:], magic) {
		return h, corruptf("magic %q, want %q", h.Magic[:], magic)
	}
	if h.Owner != owner {
		return h, corruptf("header owner %d, want %d", h.Owner, owner)
	}
	if !FitMode(h.Fit).valid() {
		return h, corruptf("fit mode %d", h.Fit)
	}
	if h.Head != format.NullOffset && (h.Head < usableStart || h.Head >= h.Total) {
		return h, corruptf("list head 0x%x outside usable region", h.Head)
	}
	return h, nil
}
