package arena

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// engineCase builds one engine variant with roughly size usable bytes.
type engineCase struct {
	name string
	kind Kind
	make func(t testing.TB, size int, opts *Options) Arena
}

var engineCases = []engineCase{
	{"boundary_tags", KindBoundaryTags, func(t testing.TB, size int, opts *Options) Arena {
		a, err := NewBoundaryTags(size, opts)
		require.NoError(t, err)
		return a
	}},
	{"buddy", KindBuddy, func(t testing.TB, size int, opts *Options) Arena {
		a, err := NewBuddy(orderFor(size), opts)
		require.NoError(t, err)
		return a
	}},
	{"sorted_list", KindSortedList, func(t testing.TB, size int, opts *Options) Arena {
		a, err := NewSortedList(size, opts)
		require.NoError(t, err)
		return a
	}},
}

var fitModes = []FitMode{FirstFit, BestFit, WorstFit}

// newEngine builds an engine and releases it when the test ends.
func newEngine(t testing.TB, c engineCase, size int, opts *Options) Arena {
	t.Helper()
	a := c.make(t, size, opts)
	t.Cleanup(func() { _ = a.Release() })
	return a
}

// assertInvariants checks the encoded structure and that the block map
// covers the usable region with the header's free counter.
func assertInvariants(t testing.TB, a Arena) {
	t.Helper()
	require.NoError(t, a.Validate())
	total, free := sumBlocks(a.BlocksInfo())
	require.Equal(t, a.Capacity(), total, "blocks must cover the usable region")
	require.Equal(t, a.Available(), free, "free counter must match free blocks")
}

// assertPristine checks the state right after construction: one free block.
func assertPristine(t testing.TB, a Arena) {
	t.Helper()
	require.Equal(t, a.Capacity(), a.Available())
	require.Equal(t, []BlockInfo{{Occupied: false, Size: a.Capacity()}}, a.BlocksInfo())
	assertInvariants(t, a)
}

type logEntry struct {
	sev Severity
	msg string
}

// recordingLogger captures engine diagnostics.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
	min     Severity
}

func (l *recordingLogger) Log(sev Severity, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{sev, msg})
}

func (l *recordingLogger) Enabled(sev Severity) bool { return sev >= l.min }

func (l *recordingLogger) has(sev Severity, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.sev == sev && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func (l *recordingLogger) count(sev Severity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.sev == sev {
			n++
		}
	}
	return n
}

func (l *recordingLogger) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
