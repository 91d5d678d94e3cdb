package format

import (
	"bytes"
	"fmt"
)

// Arena header layout. Every arena image starts with this fixed-size record.
//
//	0x00  magic     [4]byte
//	0x04  version   u8
//	0x05  fit mode  u8
//	0x06  order     u8   (buddy only)
//	0x07  flags     u8
//	0x08  total     u64  (image size, header included)
//	0x10  usable    u64
//	0x18  free      u64
//	0x20  owner     u64
//	0x28  upstream  u64
//	0x30  head      u64
//	0x38  seq       u64
const (
	ArenaMagicOffset    = 0x00
	ArenaVersionOffset  = 0x04
	ArenaFitOffset      = 0x05
	ArenaOrderOffset    = 0x06
	ArenaFlagsOffset    = 0x07
	ArenaTotalOffset    = 0x08
	ArenaUsableOffset   = 0x10
	ArenaFreeOffset     = 0x18
	ArenaOwnerOffset    = 0x20
	ArenaUpstreamOffset = 0x28
	ArenaHeadOffset     = 0x30
	ArenaSeqOffset      = 0x38

	// ArenaHeaderSize is the size of the arena header; the usable region
	// starts right after it.
	ArenaHeaderSize = 0x40

	// ArenaVersion is the only layout version understood by this package.
	ArenaVersion = 1

	// NullOffset marks an absent link. Offset 0 is the arena header, so no
	// block can ever live there.
	NullOffset = 0
)

// Arena flags.
const (
	FlagGlobalHeap uint8 = 1 << 0
	FlagLogger     uint8 = 1 << 1
)

var (
	MagicBoundaryTags = []byte("ABTG")
	MagicBuddy        = []byte("ABDY")
	MagicSortedList   = []byte("ASLT")
)

// Boundary-tag occupied block header.
//
//	+0  prev   u64
//	+8  next   u64
//	+16 size   u64 (header included)
//	+24 owner  u64
const (
	BTPrevOffset  = 0
	BTNextOffset  = 8
	BTSizeOffset  = 16
	BTOwnerOffset = 24
	BTHeaderSize  = 32
)

// Buddy block headers. The first byte is the signed order; positive orders
// are free blocks, negative orders are occupied blocks.
//
//	free:     order i8 | prev u64 | next u64
//	occupied: order i8 | owner u64
const (
	BuddyOrderOffset     = 0
	BuddyPrevOffset      = 1
	BuddyNextOffset      = 9
	BuddyOwnerOffset     = 1
	BuddyFreeHeaderSize  = 17
	BuddyOccupHeaderSize = 9
)

// Sorted-list block headers. The first field is the signed block size
// (header included); positive sizes are free blocks, negative sizes are
// occupied blocks.
//
//	free:     size i32 | next u64
//	occupied: size i32 | owner u64
const (
	SLSizeOffset      = 0
	SLNextOffset      = 4
	SLOwnerOffset     = 4
	SLFreeHeaderSize  = 12
	SLOccupHeaderSize = 12
)

// ArenaHeader is the decoded form of the fixed arena header.
type ArenaHeader struct {
	Magic    [4]byte
	Version  uint8
	Fit      uint8
	Order    uint8
	Flags    uint8
	Total    uint64
	Usable   uint64
	Free     uint64
	Owner    uint64
	Upstream uint64
	Head     uint64
	Seq      uint64
}

// DecodeArenaHeader parses the arena header at the start of b.
func DecodeArenaHeader(b []byte) (ArenaHeader, error) {
	var h ArenaHeader
	if len(b) < ArenaHeaderSize {
		return h, fmt.Errorf("%w: arena header needs %d bytes, have %d", ErrTruncated, ArenaHeaderSize, len(b))
	}
	copy(h.Magic[:], b[ArenaMagicOffset:ArenaMagicOffset+4])
	h.Version = ReadU8(b, ArenaVersionOffset)
	h.Fit = ReadU8(b, ArenaFitOffset)
	h.Order = ReadU8(b, ArenaOrderOffset)
	h.Flags = ReadU8(b, ArenaFlagsOffset)
	h.Total = ReadU64(b, ArenaTotalOffset)
	h.Usable = ReadU64(b, ArenaUsableOffset)
	h.Free = ReadU64(b, ArenaFreeOffset)
	h.Owner = ReadU64(b, ArenaOwnerOffset)
	h.Upstream = ReadU64(b, ArenaUpstreamOffset)
	h.Head = ReadU64(b, ArenaHeadOffset)
	h.Seq = ReadU64(b, ArenaSeqOffset)
	return h, nil
}

// EncodeArenaHeader writes h at the start of b.
func EncodeArenaHeader(b []byte, h ArenaHeader) error {
	if len(b) < ArenaHeaderSize {
		return fmt.Errorf("%w: arena header needs %d bytes, have %d", ErrTruncated, ArenaHeaderSize, len(b))
	}
	copy(b[ArenaMagicOffset:ArenaMagicOffset+4], h.Magic[:])
	PutU8(b, ArenaVersionOffset, h.Version)
	PutU8(b, ArenaFitOffset, h.Fit)
	PutU8(b, ArenaOrderOffset, h.Order)
	PutU8(b, ArenaFlagsOffset, h.Flags)
	PutU64(b, ArenaTotalOffset, h.Total)
	PutU64(b, ArenaUsableOffset, h.Usable)
	PutU64(b, ArenaFreeOffset, h.Free)
	PutU64(b, ArenaOwnerOffset, h.Owner)
	PutU64(b, ArenaUpstreamOffset, h.Upstream)
	PutU64(b, ArenaHeadOffset, h.Head)
	PutU64(b, ArenaSeqOffset, h.Seq)
	return nil
}

// HasMagic reports whether the image starts with magic.
func HasMagic(b []byte, magic []byte) bool {
	return len(b) >= len(magic) && bytes.Equal(b[:len(magic)], magic)
}

// ValidateArenaHeader checks the structural fields of a decoded header
// against the image it was read from.
func ValidateArenaHeader(h ArenaHeader, imageLen int) error {
	magic := h.Magic[:]
	if !bytes.Equal(magic, MagicBoundaryTags) &&
		!bytes.Equal(magic, MagicBuddy) &&
		!bytes.Equal(magic, MagicSortedList) {
		return fmt.Errorf("%w: unknown arena magic %q", ErrSignatureMismatch, magic)
	}
	if h.Version != ArenaVersion {
		return fmt.Errorf("%w: arena layout version %d", ErrUnsupported, h.Version)
	}
	if h.Total != uint64(imageLen) {
		return fmt.Errorf("%w: header total %d, image %d bytes", ErrTruncated, h.Total, imageLen)
	}
	if h.Total != h.Usable+ArenaHeaderSize {
		return fmt.Errorf("%w: total %d != usable %d + header", ErrTruncated, h.Total, h.Usable)
	}
	if h.Free > h.Usable {
		return fmt.Errorf("%w: free %d exceeds usable %d", ErrTruncated, h.Free, h.Usable)
	}
	return nil
}
