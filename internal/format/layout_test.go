package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaHeader_RoundTrip(t *testing.T) {
	b := make([]byte, ArenaHeaderSize+128)
	h := ArenaHeader{
		Version:  ArenaVersion,
		Fit:      2,
		Order:    7,
		Flags:    FlagGlobalHeap | FlagLogger,
		Total:    ArenaHeaderSize + 128,
		Usable:   128,
		Free:     96,
		Owner:    42,
		Upstream: 7,
		Head:     ArenaHeaderSize,
		Seq:      3,
	}
	copy(h.Magic[:], MagicBuddy)

	require.NoError(t, EncodeArenaHeader(b, h))
	got, err := DecodeArenaHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, HasMagic(b, MagicBuddy))
	assert.False(t, HasMagic(b, MagicSortedList))
	require.NoError(t, ValidateArenaHeader(got, len(b)))
}

func TestArenaHeader_FieldOffsets(t *testing.T) {
	b := make([]byte, ArenaHeaderSize)
	h := ArenaHeader{Total: 0x1122334455667788, Head: 0x40}
	require.NoError(t, EncodeArenaHeader(b, h))

	// little-endian, packed
	assert.Equal(t, byte(0x88), b[ArenaTotalOffset])
	assert.Equal(t, byte(0x11), b[ArenaTotalOffset+7])
	assert.Equal(t, uint64(0x40), ReadU64(b, ArenaHeadOffset))
}

func TestArenaHeader_Truncated(t *testing.T) {
	_, err := DecodeArenaHeader(make([]byte, ArenaHeaderSize-1))
	require.ErrorIs(t, err, ErrTruncated)
	require.ErrorIs(t, EncodeArenaHeader(make([]byte, 8), ArenaHeader{}), ErrTruncated)
}

func TestValidateArenaHeader_Rejects(t *testing.T) {
	good := ArenaHeader{Version: ArenaVersion, Total: ArenaHeaderSize + 64, Usable: 64, Free: 64}
	copy(good.Magic[:], MagicSortedList)
	require.NoError(t, ValidateArenaHeader(good, ArenaHeaderSize+64))

	bad := good
	copy(bad.Magic[:], "XXXX")
	require.ErrorIs(t, ValidateArenaHeader(bad, ArenaHeaderSize+64), ErrSignatureMismatch)

	bad = good
	bad.Version = 9
	require.ErrorIs(t, ValidateArenaHeader(bad, ArenaHeaderSize+64), ErrUnsupported)

	require.ErrorIs(t, ValidateArenaHeader(good, ArenaHeaderSize+65), ErrTruncated)

	bad = good
	bad.Free = 65
	require.ErrorIs(t, ValidateArenaHeader(bad, ArenaHeaderSize+64), ErrTruncated)
}

func TestSignedFields(t *testing.T) {
	b := make([]byte, 16)
	PutI8(b, 0, -9)
	PutI32(b, 4, -1234)
	assert.Equal(t, int8(-9), ReadI8(b, 0))
	assert.Equal(t, uint8(0xF7), ReadU8(b, 0))
	assert.Equal(t, int32(-1234), ReadI32(b, 4))
	assert.Equal(t, uint32(0xFFFFFB2E), ReadU32(b, 4))
}
