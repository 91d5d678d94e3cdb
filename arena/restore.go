package arena

import (
	"fmt"

	"github.com/joshuapare/arenakit/internal/format"
)

// Restore rebuilds an engine from an arena image produced by Bytes, a
// persisted store or an export. The variant is taken from the image magic.
// The image is copied into a buffer from opts.Upstream, validated against the
// image's own owner tag and then retagged for the new engine. The fit mode
// recorded in the image is kept; opts.FitMode is ignored.
func Restore(image []byte, opts *Options) (Arena, error) {
	opts = opts.orDefault()
	if len(image) < format.ArenaHeaderSize {
		return nil, corruptf("image of %d bytes has no arena header", len(image))
	}
	switch {
	case format.HasMagic(image, format.MagicBoundaryTags):
		a := &BoundaryTags{}
		a.init(KindBoundaryTags, opts)
		if err := a.restore(image, a.validateLocked, a.retag); err != nil {
			return nil, err
		}
		return a, nil
	case format.HasMagic(image, format.MagicBuddy):
		a := &Buddy{}
		a.init(KindBuddy, opts)
		if err := a.restore(image, a.validateLocked, a.retag); err != nil {
			return nil, err
		}
		return a, nil
	case format.HasMagic(image, format.MagicSortedList):
		a := &SortedList{}
		a.init(KindSortedList, opts)
		if err := a.restore(image, a.validateLocked, a.retag); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: %w: magic %q", ErrCorrupt, format.ErrSignatureMismatch, image[:4])
}

func (c *core) restore(image []byte, validate func(owner uint64) error, retag func()) error {
	defer c.scope(SeverityTrace, "restore")()

	h, err := format.DecodeArenaHeader(image)
	if err != nil {
		return c.fail("restore", fmt.Errorf("%w: %w", ErrCorrupt, err))
	}
	if err := c.acquire(len(image)); err != nil {
		return c.fail("restore", err)
	}
	copy(c.mem, image)
	if err := validate(h.Owner); err != nil {
		_ = c.Release()
		return c.fail("restore", err)
	}

	c.putU64(format.ArenaOwnerOffset, c.tag)
	c.putU64(format.ArenaUpstreamOffset, c.upstreamTag())
	format.PutU8(c.mem, format.ArenaFlagsOffset, c.flags())
	c.mark(format.ArenaFlagsOffset, 1)
	retag()
	c.logAvailable("restore")
	return nil
}
