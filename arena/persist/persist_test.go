package persist

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/arena/dirty"
	"github.com/joshuapare/arenakit/internal/format"
)

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func TestStore_SyncAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sl.arena")

	st, err := Create(path, dirty.SyncData)
	require.NoError(t, err)

	sl, err := arena.NewSortedList(16*1024, &arena.Options{Dirty: st.Tracker()})
	require.NoError(t, err)
	defer sl.Release()
	require.NoError(t, st.Attach(sl))

	r1, p1, err := sl.Allocate(1, 100)
	require.NoError(t, err)
	fill(p1, 0x11)
	_, p2, err := sl.Allocate(8, 1000)
	require.NoError(t, err)
	fill(p2, 0x22)
	pending, err := st.Pending()
	require.NoError(t, err)
	// the free remainder header at 0x1ffc spills into page 2; pages 3 and 4 stay clean
	assert.Equal(t, int64(3*dirty.DefaultPageSize), pending)
	require.NoError(t, st.Sync(context.Background()))
	require.Equal(t, 0, st.Tracker().Len())
	pending, err = st.Pending()
	require.NoError(t, err)
	assert.Zero(t, pending)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sl.Bytes(), onDisk)

	require.NoError(t, sl.Deallocate(r1))
	require.NoError(t, st.Close())

	st2, restored, err := Open(path, dirty.SyncData, nil)
	require.NoError(t, err)
	defer st2.Close()
	defer restored.Release()

	assert.Equal(t, sl.BlocksInfo(), restored.BlocksInfo())
	assert.Equal(t, sl.Available(), restored.Available())
	require.NoError(t, restored.Validate())

	// the restored engine keeps reporting to the store
	_, _, err = restored.Allocate(1, 64)
	require.NoError(t, err)
	require.NoError(t, st2.Sync(context.Background()))
	onDisk, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, restored.Bytes(), onDisk)
}

func TestStore_SyncDetached(t *testing.T) {
	st, err := Create(filepath.Join(t.TempDir(), "x"), dirty.SyncNone)
	require.NoError(t, err)
	defer st.Close()
	require.ErrorIs(t, st.Sync(context.Background()), ErrDetached)
	_, err = st.Pending()
	require.ErrorIs(t, err, ErrDetached)
}

func TestStore_CloseAfterRelease(t *testing.T) {
	st, err := Create(filepath.Join(t.TempDir(), "x"), dirty.SyncData)
	require.NoError(t, err)
	bt, err := arena.NewBoundaryTags(256, &arena.Options{Dirty: st.Tracker()})
	require.NoError(t, err)
	require.NoError(t, st.Attach(bt))
	require.NoError(t, bt.Release())
	require.NoError(t, st.Close())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buddy.arena")

	b, err := arena.NewBuddy(12, &arena.Options{FitMode: arena.BestFit})
	require.NoError(t, err)
	defer b.Release()

	ref, payload, err := b.Allocate(1, 300)
	require.NoError(t, err)
	copy(payload, "hello")
	_, _, err = b.Allocate(1, 40)
	require.NoError(t, err)

	require.NoError(t, Save(path, b))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	defer loaded.Release()

	assert.Equal(t, arena.KindBuddy, loaded.Kind())
	assert.Equal(t, arena.BestFit, loaded.FitMode())
	assert.Equal(t, b.BlocksInfo(), loaded.BlocksInfo())

	moved, err := loaded.Rebind(ref)
	require.NoError(t, err)
	assert.Equal(t, ref.Offset(), moved.Offset())
	require.ErrorIs(t, loaded.Deallocate(ref), arena.ErrForeignBlock)
	require.NoError(t, loaded.Deallocate(moved))
	require.NoError(t, loaded.Validate())
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sl.arena")

	sl, err := arena.NewSortedList(2048, &arena.Options{FitMode: arena.WorstFit})
	require.NoError(t, err)
	defer sl.Release()
	_, _, err = sl.Allocate(1, 100)
	require.NoError(t, err)
	require.NoError(t, Save(path, sl))

	h, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, arena.KindSortedList, h.Kind)
	assert.Equal(t, "sortedlist", h.KindName)
	assert.Equal(t, arena.WorstFit, h.FitMode)
	assert.Equal(t, 2048, h.Usable)
	assert.Equal(t, 2048-112, h.Free)
	assert.Equal(t, sl.Tag(), h.Owner)
	assert.Equal(t, uint64(1), h.Seq)
	assert.Equal(t, len(sl.Bytes()), h.FileSize)

	// A truncated file no longer matches the header.
	image, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, image[:len(image)-8], 0o644))
	_, err = Inspect(path)
	require.ErrorIs(t, err, arena.ErrCorrupt)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
}

func TestExportImport(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts ExportOptions
	}{
		{"raw", ExportOptions{}},
		{"brotli", ExportOptions{Compress: true}},
		{"brotli-fast", ExportOptions{Compress: true, Quality: 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bt, err := arena.NewBoundaryTags(64*1024, nil)
			require.NoError(t, err)
			defer bt.Release()
			for i := 0; i < 10; i++ {
				_, p, err := bt.Allocate(16, i+1)
				require.NoError(t, err)
				fill(p, byte(i))
			}

			var buf bytes.Buffer
			n, err := Export(&buf, bt, tc.opts)
			require.NoError(t, err)
			if tc.opts.Compress {
				assert.Less(t, n, int64(bt.Capacity()), "mostly-zero image compresses")
			} else {
				assert.Equal(t, int64(len(bt.Bytes())), n)
			}

			got, err := Import(&buf, nil)
			require.NoError(t, err)
			defer got.Release()
			assert.Equal(t, bt.BlocksInfo(), got.BlocksInfo())
			require.NoError(t, got.Validate())
		})
	}
}

func TestImport_Rejects(t *testing.T) {
	sl, err := arena.NewSortedList(1024, nil)
	require.NoError(t, err)
	defer sl.Release()

	var buf bytes.Buffer
	_, err = Export(&buf, sl, ExportOptions{})
	require.NoError(t, err)
	frame := buf.Bytes()

	bad := append([]byte(nil), frame...)
	bad[frameHeaderSize+100] ^= 0xFF
	_, err = Import(bytes.NewReader(bad), nil)
	require.ErrorIs(t, err, ErrChecksum)

	bad = append([]byte(nil), frame...)
	copy(bad, "NOPE")
	_, err = Import(bytes.NewReader(bad), nil)
	require.ErrorIs(t, err, ErrFrame)

	_, err = Import(bytes.NewReader(frame[:frameHeaderSize+10]), nil)
	require.ErrorIs(t, err, ErrFrame)

	// a bare header claiming a 1 TiB image fails without allocating it
	huge := append([]byte(nil), frame[:frameHeaderSize]...)
	format.PutU64(huge, frameLengthOffset, arena.MaxArenaSize)
	_, err = Import(bytes.NewReader(huge), nil)
	require.ErrorIs(t, err, ErrFrame)

	long := append(append([]byte(nil), frame...), 0)
	_, err = Import(bytes.NewReader(long), nil)
	require.ErrorIs(t, err, ErrFrame)
}

func TestExport_Released(t *testing.T) {
	sl, err := arena.NewSortedList(1024, nil)
	require.NoError(t, err)
	require.NoError(t, sl.Release())
	_, err = Export(&bytes.Buffer{}, sl, ExportOptions{})
	require.ErrorIs(t, err, arena.ErrReleased)
}
