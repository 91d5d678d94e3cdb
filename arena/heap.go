package arena

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	sigar "github.com/cloudfoundry/gosigar"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/joshuapare/arenakit/internal/buf"
)

// Heap is an Allocator backed by the Go runtime. Each allocation is a
// separate slice tracked in a concurrent map, so Deallocate can reject
// references it never handed out.
type Heap struct {
	live   *xsync.MapOf[Ref, []byte]
	ids    atomic.Uint64
	bytes  atomic.Int64
	limit  func() uint64
	logger Logger
}

// GlobalHeap is the upstream used by engines constructed without one.
var GlobalHeap = NewHeap(nil)

// heapTag is the owner part of every Heap reference. Arena headers record an
// upstream tag of 0 for the heap.
const heapTag = 0

// NewHeap returns a Heap. Requests larger than the machine's physical memory
// fail with ErrOutOfMemory; the memory size is read on the first Allocate.
func NewHeap(logger Logger) *Heap {
	return &Heap{
		live:   xsync.NewMapOf[Ref, []byte](),
		limit:  sync.OnceValue(func() uint64 { return memTotal() }),
		logger: logger,
	}
}

// memTotal reports the machine's physical memory in bytes.
var memTotal = physicalMemory

func physicalMemory() uint64 {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil || mem.Total == 0 {
		return MaxArenaSize
	}
	return mem.Total
}

// Allocate returns a zeroed slice of elemSize*count bytes.
func (h *Heap) Allocate(elemSize, count int) (Ref, []byte, error) {
	n, err := payloadSize(elemSize, count)
	if err != nil {
		h.log(SeverityError, "allocate: %v", err)
		return 0, nil, err
	}
	if limit := h.limit(); uint64(n) > limit {
		err := fmt.Errorf("%w: %d bytes exceeds physical memory %d", ErrOutOfMemory, n, limit)
		h.log(SeverityError, "allocate: %v", err)
		return 0, nil, err
	}
	id := h.ids.Add(1)
	ref := makeRef(heapTag, int(id))
	b := make([]byte, n)
	h.live.Store(ref, b)
	h.bytes.Add(int64(n))
	h.log(SeverityDebug, "allocate: %d bytes as %v", n, ref)
	return ref, b, nil
}

// Deallocate forgets an allocation. The slice must not be used afterwards.
func (h *Heap) Deallocate(ref Ref) error {
	b, ok := h.live.LoadAndDelete(ref)
	if !ok {
		err := fmt.Errorf("%w: heap reference %v", ErrForeignBlock, ref)
		h.log(SeverityError, "deallocate: %v", err)
		return err
	}
	h.bytes.Add(-int64(len(b)))
	if logEnabled(h.logger, SeverityDebug) {
		h.log(SeverityDebug, "deallocate: %v (%d bytes)\n%s", ref, len(b), hex.Dump(b))
	}
	return nil
}

// Tag is always 0 for the heap.
func (h *Heap) Tag() uint64 { return heapTag }

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int { return h.live.Size() }

// InUse returns the number of bytes held by outstanding allocations.
func (h *Heap) InUse() int64 { return h.bytes.Load() }

func (h *Heap) log(sev Severity, format string, args ...any) {
	if !logEnabled(h.logger, sev) {
		return
	}
	h.logger.Log(sev, "allocator_global_heap: "+fmt.Sprintf(format, args...))
}

// payloadSize returns elemSize*count, rejecting negative or overflowing
// requests.
func payloadSize(elemSize, count int) (int, error) {
	if elemSize < 0 || count < 0 {
		return 0, fmt.Errorf("%w: negative request %d x %d", ErrOutOfMemory, elemSize, count)
	}
	n, ok := buf.MulOverflowSafe(elemSize, count)
	if !ok || n > MaxArenaSize {
		return 0, fmt.Errorf("%w: request %d x %d overflows", ErrOutOfMemory, elemSize, count)
	}
	return n, nil
}
