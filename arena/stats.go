package arena

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"

	"github.com/joshuapare/arenakit/internal/format"
)

// Stats summarizes the state of an arena.
type Stats struct {
	Kind      Kind    `json:"-"`
	KindName  string  `json:"kind"`
	FitMode   string  `json:"fit_mode"`
	Tag       uint64  `json:"tag"`
	Total     int     `json:"total"`
	Capacity  int     `json:"capacity"`
	Available int     `json:"available"`
	Used      int     `json:"used"`
	Blocks    int     `json:"blocks"`
	Occupied  int     `json:"occupied"`
	Free      int     `json:"free"`
	Largest   int     `json:"largest_free"`
	Frag      float64 `json:"fragmentation"`
	Seq       uint64  `json:"seq"`
}

// statsLocked builds Stats from the header and a block map. c.mu must be held.
func (c *core) statsLocked(blocks []BlockInfo) Stats {
	s := Stats{
		Kind:      c.kind,
		KindName:  c.kind.Name(),
		FitMode:   c.fit().String(),
		Tag:       c.tag,
		Total:     len(c.mem),
		Capacity:  c.usable(),
		Available: c.free(),
		Blocks:    len(blocks),
		Seq:       c.u64(format.ArenaSeqOffset),
	}
	s.Used = s.Capacity - s.Available
	totalFree := 0
	for _, b := range blocks {
		if b.Occupied {
			s.Occupied++
			continue
		}
		s.Free++
		totalFree += b.Size
		s.Largest = max(s.Largest, b.Size)
	}
	if totalFree > 0 {
		s.Frag = 1 - float64(s.Largest)/float64(totalFree)
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%s (%s fit): %s used, %s available of %s; %d blocks (%d occupied, %d free), largest free %s, fragmentation %.1f%%",
		s.Kind, s.FitMode,
		humanize.IBytes(uint64(s.Used)),
		humanize.IBytes(uint64(s.Available)),
		humanize.IBytes(uint64(s.Capacity)),
		s.Blocks, s.Occupied, s.Free,
		humanize.IBytes(uint64(s.Largest)),
		s.Frag*100)
}
