package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/arenakit/arena"
)

func TestSlog_ForwardsEngineMessages(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	sl, err := arena.NewSortedList(256, &arena.Options{Logger: Slog{Logger: l}})
	require.NoError(t, err)
	defer sl.Release()

	_, _, err = sl.Allocate(1, 10)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="START: construct" severity=trace engine=allocator_sorted_list`)
	assert.Contains(t, out, `msg="START: allocate" severity=debug engine=allocator_sorted_list`)
	assert.Contains(t, out, "bytes available")
	assert.NotContains(t, out, "msg=allocator_sorted_list")
	assert.Contains(t, out, "| occup 22 | avail 234 | ")
}

func TestSlog_Enabled(t *testing.T) {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := Slog{Logger: l}
	assert.False(t, s.Enabled(arena.SeverityDebug))
	assert.False(t, s.Enabled(arena.SeverityInformation))
	assert.True(t, s.Enabled(arena.SeverityWarning))
	assert.True(t, s.Enabled(arena.SeverityError))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, Level(arena.SeverityTrace))
	assert.Equal(t, slog.LevelDebug, Level(arena.SeverityDebug))
	assert.Equal(t, slog.LevelInfo, Level(arena.SeverityInformation))
	assert.Equal(t, slog.LevelWarn, Level(arena.SeverityWarning))
	assert.Equal(t, slog.LevelError, Level(arena.SeverityError))
}

func TestSlog_KeepsUnprefixedMessages(t *testing.T) {
	var buf bytes.Buffer
	s := Slog{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	s.Log(arena.SeverityWarning, "upstream: gone")
	assert.Contains(t, buf.String(), `msg="upstream: gone" severity=warning`)
	assert.NotContains(t, buf.String(), "engine=")
}

func TestInit_WritesDatedFile(t *testing.T) {
	old := L
	defer func() { L = old }()

	dir := t.TempDir()
	require.NoError(t, Init(Options{Enabled: true, Name: "arenactl", LogDir: dir, Level: LevelTrace}))
	t.Cleanup(func() { _ = Init(Options{}) })

	Slog{}.Log(arena.SeverityTrace, "allocator_buddies_system: END: release")

	data, err := os.ReadFile(logFile(dir, "arenactl", time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"TRACE"`)
	assert.Contains(t, string(data), `"msg":"END: release"`)
	assert.Contains(t, string(data), `"engine":"allocator_buddies_system"`)
}

func TestInit_Disabled(t *testing.T) {
	old := L
	defer func() { L = old }()

	require.NoError(t, Init(Options{}))
	assert.False(t, Slog{}.Enabled(arena.SeverityError))
}

func TestInit_ClosesPreviousFile(t *testing.T) {
	old := L
	defer func() { L = old }()

	dir := t.TempDir()
	require.NoError(t, Init(Options{Enabled: true, LogDir: dir}))
	first := current
	require.NotNil(t, first)

	require.NoError(t, Init(Options{Enabled: true, Name: "other", LogDir: dir}))
	_, err := first.Write([]byte("x"))
	require.ErrorIs(t, err, os.ErrClosed)
	second := current

	require.NoError(t, Init(Options{}))
	assert.Nil(t, current)
	_, err = second.Write([]byte("x"))
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestInit_DefaultLevelIsInfo(t *testing.T) {
	old := L
	defer func() { L = old }()
	t.Cleanup(func() { _ = Init(Options{}) })

	require.NoError(t, Init(Options{Enabled: true, LogDir: t.TempDir()}))
	assert.False(t, Slog{}.Enabled(arena.SeverityDebug))
	assert.True(t, Slog{}.Enabled(arena.SeverityInformation))
}

func TestRemoveExpired(t *testing.T) {
	dir := t.TempDir()
	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	stale := "arenakit-2024-01-01.log"
	fresh := "arenakit-2024-02-20.log"
	otherTool := "arenactl-2024-01-01.log"
	undated := "arenakit-latest.log"
	for _, n := range []string{stale, fresh, otherTool, undated} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}

	removeExpired(dir, "arenakit", cutoff)

	assert.NoFileExists(t, filepath.Join(dir, stale))
	assert.FileExists(t, filepath.Join(dir, fresh))
	assert.FileExists(t, filepath.Join(dir, otherTool))
	assert.FileExists(t, filepath.Join(dir, undated))
}

func TestGolog_Gated(t *testing.T) {
	g := Golog{}
	assert.False(t, g.Enabled(arena.SeverityError))

	EnableGolog(true)
	defer EnableGolog(false)
	assert.True(t, g.Enabled(arena.SeverityDebug))

	bt, err := arena.NewBoundaryTags(128, &arena.Options{Logger: g})
	require.NoError(t, err)
	defer bt.Release()
	_, _, err = bt.Allocate(1, 8)
	require.NoError(t, err)
}
