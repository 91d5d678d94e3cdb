package arena

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Ref identifies an allocation. The high bits carry the owning engine's tag,
// the low bits the payload offset from the start of the engine's buffer.
type Ref uint64

const (
	refOffsetBits = 40
	refOffsetMask = (uint64(1) << refOffsetBits) - 1

	// MaxArenaSize is the largest arena image (header included) a Ref can
	// address.
	MaxArenaSize = 1 << refOffsetBits
)

func makeRef(tag uint64, off int) Ref {
	return Ref((tag << refOffsetBits) | (uint64(off) & refOffsetMask))
}

// Offset returns the payload offset from the start of the arena buffer.
func (r Ref) Offset() int {
	return int(uint64(r) & refOffsetMask)
}

func (r Ref) owner() uint64 {
	return uint64(r) >> refOffsetBits
}

func (r Ref) String() string {
	return fmt.Sprintf("%d@0x%x", r.owner(), r.Offset())
}

// tags identify engine instances; they are stored in the arena header and
// in every occupied block. Zero is never handed out.
var lastTag atomic.Uint64

func nextTag() uint64 {
	return lastTag.Add(1)
}

// tagBits returns the part of tag that fits in a Ref.
func tagBits(tag uint64) uint64 {
	return tag & ((uint64(1) << (64 - refOffsetBits)) - 1)
}

// Kind names an engine variant.
type Kind uint8

const (
	KindBoundaryTags Kind = iota + 1
	KindBuddy
	KindSortedList
)

// String returns the type name used as the prefix of every log message.
func (k Kind) String() string {
	switch k {
	case KindBoundaryTags:
		return "allocator_boundary_tags"
	case KindBuddy:
		return "allocator_buddies_system"
	case KindSortedList:
		return "allocator_sorted_list"
	}
	return fmt.Sprintf("allocator_kind(%d)", uint8(k))
}

// Name returns the short name accepted by ParseKind.
func (k Kind) Name() string {
	switch k {
	case KindBoundaryTags:
		return "boundarytags"
	case KindBuddy:
		return "buddy"
	case KindSortedList:
		return "sortedlist"
	}
	return ""
}

// ParseKind maps a short engine name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boundarytags", "boundary_tags", "boundary-tags", "btag":
		return KindBoundaryTags, nil
	case "buddy", "buddies", "buddies_system":
		return KindBuddy, nil
	case "sortedlist", "sorted_list", "sorted-list", "slist":
		return KindSortedList, nil
	}
	return 0, fmt.Errorf("arena: unknown allocator %q", s)
}

// FitMode selects which candidate block an allocation is carved from.
type FitMode uint8

const (
	// FirstFit takes the lowest-address candidate that is large enough.
	FirstFit FitMode = iota
	// BestFit takes the candidate leaving the smallest remainder.
	BestFit
	// WorstFit takes the candidate leaving the largest remainder.
	WorstFit
)

func (m FitMode) String() string {
	switch m {
	case FirstFit:
		return "first"
	case BestFit:
		return "best"
	case WorstFit:
		return "worst"
	}
	return fmt.Sprintf("fitmode(%d)", uint8(m))
}

func (m FitMode) valid() bool {
	return m <= WorstFit
}

// ParseFitMode maps "first", "best" or "worst" to a FitMode.
func ParseFitMode(s string) (FitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "first_fit", "firstfit":
		return FirstFit, nil
	case "best", "best_fit", "bestfit", "the_best_fit":
		return BestFit, nil
	case "worst", "worst_fit", "worstfit", "the_worst_fit":
		return WorstFit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFitMode, s)
}

// BlockInfo describes one block of the usable region. Size includes the
// block's header.
type BlockInfo struct {
	Occupied bool `json:"occupied"`
	Size     int  `json:"size"`
}

// Options configures an engine. A nil *Options means defaults: global heap,
// no logging, first-fit, no dirty tracking.
type Options struct {
	// Upstream supplies the arena buffer. nil means the global Heap.
	Upstream Allocator

	// Logger receives diagnostics. nil disables logging.
	Logger Logger

	// FitMode is the initial search policy.
	FitMode FitMode

	// Dirty, when set, is told about every byte range the engine writes.
	Dirty DirtyTracker
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return &Options{}
	}
	return o
}
