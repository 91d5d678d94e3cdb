// Package dirty tracks which byte ranges of an arena image have been written
// and flushes them to a backing file.
//
// # Overview
//
// Engines report every header and block write through the DirtyTracker
// interface. At flush time the tracker page-aligns the recorded ranges,
// coalesces them, writes them to the file with WriteAt and syncs the file
// descriptor (fdatasync on Linux, F_FULLFSYNC or fsync on macOS,
// FlushFileBuffers on Windows).
//
// # Usage
//
//	tracker := dirty.NewTracker()
//	sl, _ := arena.NewSortedList(1<<20, &arena.Options{Dirty: tracker})
//	// ... allocations mark ranges dirty ...
//	err := sl.View(func(image []byte) error {
//	    return tracker.Flush(ctx, f, image, dirty.SyncData)
//	})
//
// # Ordering
//
// Flush writes data pages first and the first page (which holds the arena
// header) last, then syncs. A crash between the two leaves an old header in
// front of new blocks; the arena header is what a restore validates first.
//
// # Thread Safety
//
// A Tracker is not thread-safe. Engines call Add under their own lock, and
// Flush must run under the same lock (arena.View does that).
package dirty
