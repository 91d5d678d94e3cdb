package persist

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/internal/format"
)

// Export frame:
//
//	0x00  magic    "AKEX"
//	0x04  version  u8
//	0x05  flags    u8   (bit0 = brotli)
//	0x06  level    u8   (brotli quality, informational)
//	0x07  reserved u8
//	0x08  length   u64  (raw image size)
//	0x10  crc32    u32  (IEEE, raw image)
//	0x14  payload
const (
	frameMagicOffset   = 0x00
	frameVersionOffset = 0x04
	frameFlagsOffset   = 0x05
	frameLevelOffset   = 0x06
	frameLengthOffset  = 0x08
	frameCRCOffset     = 0x10
	frameHeaderSize    = 0x14

	frameVersion = 1

	flagBrotli uint8 = 1 << 0
)

var frameMagic = []byte("AKEX")

var (
	// ErrFrame indicates an export stream with a bad frame header.
	ErrFrame = errors.New("persist: invalid export frame")

	// ErrChecksum indicates an export payload whose checksum does not match.
	ErrChecksum = errors.New("persist: export checksum mismatch")
)

// ExportOptions controls Export. The zero value writes an uncompressed frame.
type ExportOptions struct {
	// Compress enables brotli compression of the image.
	Compress bool

	// Quality is the brotli quality, 0 (fastest) to 11 (smallest).
	// Zero with Compress set means brotli.DefaultCompression.
	Quality int
}

// Export writes a framed copy of a's image to w and returns the number of
// payload bytes written.
func Export(w io.Writer, a arena.Arena, opts ExportOptions) (int64, error) {
	image := a.Bytes()
	if image == nil {
		return 0, fmt.Errorf("persist: export: %w", arena.ErrReleased)
	}

	hdr := make([]byte, frameHeaderSize)
	copy(hdr[frameMagicOffset:], frameMagic)
	format.PutU8(hdr, frameVersionOffset, frameVersion)
	format.PutU64(hdr, frameLengthOffset, uint64(len(image)))
	format.PutU32(hdr, frameCRCOffset, crc32.ChecksumIEEE(image))

	payload := image
	if opts.Compress {
		quality := opts.Quality
		if quality <= 0 {
			quality = brotli.DefaultCompression
		}
		quality = min(quality, brotli.BestCompression)
		format.PutU8(hdr, frameFlagsOffset, flagBrotli)
		format.PutU8(hdr, frameLevelOffset, uint8(quality))

		var buf bytes.Buffer
		bw := brotli.NewWriterLevel(&buf, quality)
		if _, err := bw.Write(image); err != nil {
			return 0, fmt.Errorf("persist: export: compress: %w", err)
		}
		if err := bw.Close(); err != nil {
			return 0, fmt.Errorf("persist: export: compress: %w", err)
		}
		payload = buf.Bytes()
	}

	if _, err := w.Write(hdr); err != nil {
		return 0, fmt.Errorf("persist: export: %w", err)
	}
	n, err := w.Write(payload)
	if err != nil {
		return int64(n), fmt.Errorf("persist: export: %w", err)
	}
	return int64(n), nil
}

// Import reads a frame written by Export and restores the engine it holds.
func Import(r io.Reader, opts *arena.Options) (arena.Arena, error) {
	hdr := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFrame, err)
	}
	if !format.HasMagic(hdr, frameMagic) {
		return nil, fmt.Errorf("%w: magic %q", ErrFrame, hdr[:4])
	}
	if v := format.ReadU8(hdr, frameVersionOffset); v != frameVersion {
		return nil, fmt.Errorf("%w: version %d", ErrFrame, v)
	}
	length := format.ReadU64(hdr, frameLengthOffset)
	if length < format.ArenaHeaderSize || length > arena.MaxArenaSize {
		return nil, fmt.Errorf("%w: image length %d", ErrFrame, length)
	}

	src := r
	if format.ReadU8(hdr, frameFlagsOffset)&flagBrotli != 0 {
		src = brotli.NewReader(r)
	}
	// length is untrusted; the buffer only grows as payload bytes arrive.
	image, err := io.ReadAll(io.LimitReader(src, int64(length)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrFrame, err)
	}
	if uint64(len(image)) != length {
		return nil, fmt.Errorf("%w: payload is %d bytes, frame says %d", ErrFrame, len(image), length)
	}
	if got, want := crc32.ChecksumIEEE(image), format.ReadU32(hdr, frameCRCOffset); got != want {
		return nil, fmt.Errorf("%w: crc32 %08x, frame says %08x", ErrChecksum, got, want)
	}
	return arena.Restore(image, opts)
}
