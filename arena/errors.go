package arena

import "errors"

var (
	// ErrOutOfMemory indicates that no block large enough was found, or that
	// the upstream allocator could not supply the arena.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrInvalidSize indicates an arena size the engine cannot manage.
	ErrInvalidSize = errors.New("arena: invalid arena size")

	// ErrForeignBlock indicates a deallocation of a block this engine does not own.
	ErrForeignBlock = errors.New("arena: block not owned by this allocator")

	// ErrBadRef indicates a reference outside the engine's usable region.
	ErrBadRef = errors.New("arena: bad block reference")

	// ErrReleased indicates an operation on a released or moved-from engine.
	ErrReleased = errors.New("arena: allocator released")

	// ErrCorrupt indicates an arena image that fails structural validation.
	ErrCorrupt = errors.New("arena: corrupt arena image")

	// ErrInvalidFitMode indicates an unknown fit mode.
	ErrInvalidFitMode = errors.New("arena: invalid fit mode")
)
