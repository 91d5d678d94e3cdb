package format

import "encoding/binary"

// Binary encoding utilities for little-endian integers.
//
// Every field of an arena image (arena header, block headers, list links)
// is stored little-endian and packed, so an image written on one host can be
// restored on another.

// PutU8 writes a single byte at the specified offset.
func PutU8(b []byte, off int, v uint8) {
	b[off] = v
}

// PutI8 writes a signed byte at the specified offset.
func PutI8(b []byte, off int, v int8) {
	b[off] = uint8(v)
}

// PutU32 writes a uint32 value to the buffer at the specified offset in little-endian format.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutI32 writes an int32 value to the buffer at the specified offset in little-endian format.
func PutI32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU8 reads a single byte at the specified offset.
func ReadU8(b []byte, off int) uint8 {
	return b[off]
}

// ReadI8 reads a signed byte at the specified offset.
func ReadI8(b []byte, off int) int8 {
	return int8(b[off])
}

// ReadU32 reads a uint32 value from the buffer at the specified offset in little-endian format.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadI32 reads an int32 value from the buffer at the specified offset in little-endian format.
func ReadI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

