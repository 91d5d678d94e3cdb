package format

import "errors"

var (
	// ErrSignatureMismatch indicates a header carried an unknown magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrUnsupported indicates an image written by an unknown layout version.
	ErrUnsupported = errors.New("format: unsupported feature")
)
