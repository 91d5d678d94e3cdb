// Package persist keeps arena images on disk.
//
// A Store mirrors one engine into a file: the engine reports its writes to
// the store's dirty tracker and Sync copies only the touched pages. Save and
// Load handle whole images; Export and Import frame an image, optionally
// brotli-compressed, for transport.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/arena/dirty"
)

// ErrDetached indicates a Sync on a store with no engine attached.
var ErrDetached = errors.New("persist: no arena attached")

// Store mirrors an engine's arena image into a file.
//
// Sync runs under the engine lock (through Arena.View), so it may be called
// concurrently with allocations.
type Store struct {
	path    string
	f       *os.File
	tracker *dirty.Tracker
	mode    dirty.SyncMode
	arena   arena.Arena
}

// Create creates (or truncates) the file at path. Pass Tracker() as
// Options.Dirty when constructing the engine, then Attach it.
func Create(path string, mode dirty.SyncMode) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("persist: create %s: %w", path, err)
	}
	return &Store{
		path:    path,
		f:       f,
		tracker: dirty.NewTracker(),
		mode:    mode,
	}, nil
}

// Open restores the engine stored at path and attaches it. opts.Dirty is
// replaced with the store's tracker.
func Open(path string, mode dirty.SyncMode, opts *arena.Options) (*Store, arena.Arena, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("persist: read %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	s := &Store{path: path, f: f, tracker: dirty.NewTracker(), mode: mode}

	var o arena.Options
	if opts != nil {
		o = *opts
	}
	o.Dirty = s.tracker
	a, err := arena.Restore(image, &o)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("persist: restore %s: %w", path, err)
	}
	if err := s.Attach(a); err != nil {
		_ = a.Release()
		f.Close()
		return nil, nil, err
	}
	return s, a, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Tracker returns the dirty tracker the attached engine must report to.
func (s *Store) Tracker() *dirty.Tracker { return s.tracker }

// Attach writes a's full image to the file and makes a the synced engine.
func (s *Store) Attach(a arena.Arena) error {
	err := a.View(func(image []byte) error {
		if err := s.f.Truncate(int64(len(image))); err != nil {
			return err
		}
		if _, err := s.f.WriteAt(image, 0); err != nil {
			return err
		}
		s.tracker.Reset()
		return s.f.Sync()
	})
	if err != nil {
		return fmt.Errorf("persist: attach %s: %w", s.path, err)
	}
	s.arena = a
	return nil
}

// Sync writes the pages dirtied since the last sync.
func (s *Store) Sync(ctx context.Context) error {
	if s.arena == nil {
		return ErrDetached
	}
	err := s.arena.View(func(image []byte) error {
		return s.tracker.Flush(ctx, s.f, image, s.mode)
	})
	if err != nil {
		return fmt.Errorf("persist: sync %s: %w", s.path, err)
	}
	return nil
}

// Pending returns the number of bytes the next Sync would write.
func (s *Store) Pending() (int64, error) {
	if s.arena == nil {
		return 0, ErrDetached
	}
	var n int64
	err := s.arena.View(func(image []byte) error {
		n = s.tracker.Pending(image)
		return nil
	})
	return n, err
}

// Close syncs the attached engine, if any, and closes the file. The engine
// itself is not released.
func (s *Store) Close() error {
	var err error
	if s.arena != nil {
		err = s.Sync(context.Background())
		if errors.Is(err, arena.ErrReleased) {
			err = nil
		}
	}
	if cerr := s.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("persist: close %s: %w", s.path, cerr)
	}
	s.arena = nil
	return err
}

// Touch marks n payload bytes at ref dirty, for writes made to an
// allocation after the sync that followed its Allocate.
func (s *Store) Touch(ref arena.Ref, n int) error {
	if s.arena == nil {
		return ErrDetached
	}
	return s.arena.View(func(image []byte) error {
		off := ref.Offset()
		if off < 0 || n < 0 || off+n > len(image) {
			return fmt.Errorf("%w: touch %d bytes at 0x%x", arena.ErrBadRef, n, off)
		}
		s.tracker.Add(off, n)
		return nil
	})
}
