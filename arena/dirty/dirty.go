package dirty

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
)

// DefaultPageSize is the flush granularity used by NewTracker.
const DefaultPageSize = 4096

// SyncMode selects what a flush does after the pages are written.
type SyncMode int

const (
	// SyncData calls fdatasync (fsync on macOS) after the header page.
	SyncData SyncMode = iota

	// SyncNone only writes. Use it when several flushes share one sync.
	SyncNone

	// SyncFull is SyncData with F_FULLFSYNC on macOS.
	SyncFull
)

func (m SyncMode) String() string {
	switch m {
	case SyncData:
		return "data"
	case SyncNone:
		return "none"
	case SyncFull:
		return "full"
	}
	return fmt.Sprintf("syncmode(%d)", int(m))
}

// Span is a byte range of an arena image.
type Span struct {
	Off int64
	Len int64
}

// End returns the offset one past the span.
func (s Span) End() int64 { return s.Off + s.Len }

// Tracker records the spans an engine writes and flushes the pages that
// cover them.
//
// Not safe for concurrent use; see the package documentation.
type Tracker struct {
	spans    []Span
	pageSize int64
}

// NewTracker returns a tracker with DefaultPageSize pages.
func NewTracker() *Tracker {
	return NewTrackerPageSize(DefaultPageSize)
}

// NewTrackerPageSize returns a tracker flushing pageSize-byte pages.
// Non-positive sizes mean DefaultPageSize.
func NewTrackerPageSize(pageSize int) *Tracker {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Tracker{
		spans:    make([]Span, 0, 64),
		pageSize: int64(pageSize),
	}
}

// Add records a write of length bytes at off.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.spans = append(t.spans, Span{Off: int64(off), Len: int64(length)})
}

// Len returns the number of recorded writes.
func (t *Tracker) Len() int { return len(t.spans) }

// Reset forgets every recorded write.
func (t *Tracker) Reset() { t.spans = t.spans[:0] }

// Raw returns a copy of the recorded writes in the order they were made.
func (t *Tracker) Raw() []Span { return slices.Clone(t.spans) }

// Pages returns the sorted, merged page spans a flush would write.
func (t *Tracker) Pages() []Span {
	if len(t.spans) == 0 {
		return nil
	}
	pages := make([]Span, len(t.spans))
	for i, s := range t.spans {
		lo := s.Off / t.pageSize * t.pageSize
		hi := (s.End() + t.pageSize - 1) / t.pageSize * t.pageSize
		pages[i] = Span{Off: lo, Len: hi - lo}
	}
	slices.SortFunc(pages, func(a, b Span) int { return cmp.Compare(a.Off, b.Off) })

	merged := pages[:1]
	for _, p := range pages[1:] {
		last := &merged[len(merged)-1]
		if p.Off <= last.End() {
			last.Len = max(last.End(), p.End()) - last.Off
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// Pending returns the number of bytes of image a flush would write.
func (t *Tracker) Pending(image []byte) int64 {
	var n int64
	for _, p := range t.Pages() {
		n += max(0, min(p.End(), int64(len(image)))-p.Off)
	}
	return n
}

// Flush writes the dirty pages of image to f, the header page last, and
// syncs according to mode. The recorded writes are cleared once the header
// page is out.
func (t *Tracker) Flush(ctx context.Context, f File, image []byte, mode SyncMode) error {
	if err := t.WriteBlocks(ctx, f, image); err != nil {
		return err
	}
	return t.WriteHeader(ctx, f, image, mode)
}

// WriteBlocks writes every dirty page except the one holding the arena
// header. The context is checked between pages; on error the recorded
// writes are kept so a retry covers them again.
func (t *Tracker) WriteBlocks(ctx context.Context, w io.WriterAt, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(image) == 0 {
		return nil
	}
	for _, p := range t.Pages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo, hi := max(p.Off, t.pageSize), min(p.End(), int64(len(image)))
		if lo >= hi {
			continue
		}
		if _, err := w.WriteAt(image[lo:hi], lo); err != nil {
			return fmt.Errorf("dirty: write [%d, %d): %w", lo, hi, err)
		}
	}
	return nil
}

// WriteHeader writes the header page, clears the recorded writes and syncs
// f unless mode is SyncNone.
func (t *Tracker) WriteHeader(ctx context.Context, f File, image []byte, mode SyncMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(image) == 0 {
		return nil
	}
	n := min(t.pageSize, int64(len(image)))
	if _, err := f.WriteAt(image[:n], 0); err != nil {
		return fmt.Errorf("dirty: write header page: %w", err)
	}
	t.Reset()

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == SyncNone {
		return nil
	}
	return syncFile(f.Fd(), mode == SyncFull)
}
