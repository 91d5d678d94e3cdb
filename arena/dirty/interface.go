package dirty

import (
	"context"
	"io"
)

// DirtyTracker receives the byte spans an engine writes. Engines only
// report writes; they never flush.
type DirtyTracker interface {
	// Add records a write of length bytes at image offset off.
	Add(off, length int)
}

// Flusher is a DirtyTracker that can also write the recorded pages out.
type Flusher interface {
	DirtyTracker
	WriteBlocks(ctx context.Context, w io.WriterAt, image []byte) error
	WriteHeader(ctx context.Context, f File, image []byte, mode SyncMode) error
}

// File is the part of *os.File a flush needs.
type File interface {
	io.WriterAt
	Fd() uintptr
}

var _ Flusher = (*Tracker)(nil)
