package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/internal/format"
)

// Save writes a's image to path atomically (temp file, sync, rename).
func Save(path string, a arena.Arena) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	err = a.View(func(image []byte) error {
		_, werr := tmp.Write(image)
		return werr
	})
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("persist: save %s: %w", path, err)
	}
	return nil
}

// Load restores the engine saved at path.
func Load(path string, opts *arena.Options) (arena.Arena, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", path, err)
	}
	defer r.Close()

	image := make([]byte, r.Len())
	if _, err := r.ReadAt(image, 0); err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", path, err)
	}
	a, err := arena.Restore(image, opts)
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", path, err)
	}
	return a, nil
}

// Header is the decoded arena header of a saved image.
type Header struct {
	Kind     arena.Kind    `json:"-"`
	KindName string        `json:"kind"`
	FitMode  arena.FitMode `json:"-"`
	Fit      string        `json:"fit_mode"`
	Order    int           `json:"order,omitempty"`
	Total    int           `json:"total"`
	Usable   int           `json:"usable"`
	Free     int           `json:"free"`
	Owner    uint64        `json:"owner"`
	Upstream uint64        `json:"upstream"`
	Seq      uint64        `json:"seq"`
	FileSize int           `json:"file_size"`
}

// Inspect decodes the arena header of the image at path without reading the
// rest of the file. It does not validate the blocks; use Load for that.
func Inspect(path string) (Header, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("persist: inspect %s: %w", path, err)
	}
	defer r.Close()

	raw := make([]byte, min(r.Len(), format.ArenaHeaderSize))
	if _, err := r.ReadAt(raw, 0); err != nil {
		return Header{}, fmt.Errorf("persist: inspect %s: %w", path, err)
	}
	h, err := format.DecodeArenaHeader(raw)
	if err != nil {
		return Header{}, fmt.Errorf("persist: inspect %s: %w: %w", path, arena.ErrCorrupt, err)
	}
	if err := format.ValidateArenaHeader(h, r.Len()); err != nil {
		return Header{}, fmt.Errorf("persist: inspect %s: %w: %w", path, arena.ErrCorrupt, err)
	}

	out := Header{
		FitMode:  arena.FitMode(h.Fit),
		Fit:      arena.FitMode(h.Fit).String(),
		Order:    int(h.Order),
		Total:    int(h.Total),
		Usable:   int(h.Usable),
		Free:     int(h.Free),
		Owner:    h.Owner,
		Upstream: h.Upstream,
		Seq:      h.Seq,
		FileSize: r.Len(),
	}
	switch {
	case format.HasMagic(h.Magic[:], format.MagicBoundaryTags):
		out.Kind = arena.KindBoundaryTags
	case format.HasMagic(h.Magic[:], format.MagicBuddy):
		out.Kind = arena.KindBuddy
	case format.HasMagic(h.Magic[:], format.MagicSortedList):
		out.Kind = arena.KindSortedList
	}
	out.KindName = out.Kind.Name()
	return out, nil
}
