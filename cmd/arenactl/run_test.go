package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshuapare/arenakit/arena"
)

func TestParseScript(t *testing.T) {
	ops, err := parseScript(strings.NewReader(`
# set up
alloc a 100
alloc b 4KiB 2   # two pages
fit best
free a
show
stats
validate
`))
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}
	want := []scriptOp{
		{line: 3, kind: opAlloc, name: "a", elemSize: 100, count: 1},
		{line: 4, kind: opAlloc, name: "b", elemSize: 4096, count: 2},
		{line: 5, kind: opFit, fit: arena.BestFit},
		{line: 6, kind: opFree, name: "a"},
		{line: 7, kind: opShow},
		{line: 8, kind: opStats},
		{line: 9, kind: opValidate},
	}
	if len(ops) != len(want) {
		t.Fatalf("got %d ops, want %d", len(ops), len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: got %+v, want %+v", i, ops[i], want[i])
		}
	}
}

func TestParseScript_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown command", "grow a 10", "line 1: unknown command"},
		{"alloc arity", "alloc a", "usage: alloc"},
		{"bad size", "alloc a lots", "bad size"},
		{"bad count", "alloc a 10 -1", "bad count"},
		{"free arity", "free", "usage: free"},
		{"bad fit", "\n\nfit next", "line 3: arena: invalid fit mode"},
		{"show args", "show all", "show takes no arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScript(strings.NewReader(tt.script))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got error %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestScriptRunner_SortedListScenario(t *testing.T) {
	f := engineFlags{allocator: "sortedlist", capacity: 1000, order: 20, fit: "first"}
	a, err := f.build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Release()

	ops, err := parseScript(strings.NewReader("alloc a 100\nalloc b 200\nalloc c 100\nfree b\nalloc d 150\nshow\n"))
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}
	r := newScriptRunner(a)
	if err := r.run(ops, true, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	last := r.steps[len(r.steps)-1]
	if want := "| occup 112 | occup 162 | avail 50 | occup 112 | avail 564 | "; last.Detail != want {
		t.Errorf("block map %q, want %q", last.Detail, want)
	}
	if last.Available != 614 {
		t.Errorf("available %d, want 614", last.Available)
	}
	if len(r.refs) != 3 {
		t.Errorf("%d live allocations, want 3", len(r.refs))
	}
}

func TestScriptRunner_Failures(t *testing.T) {
	f := engineFlags{allocator: "buddy", order: 10, fit: "first"}
	a, err := f.build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Release()

	ops, err := parseScript(strings.NewReader("alloc a 300\nalloc a 10\nfree zz\nalloc big 2000\nalloc b 300\n"))
	if err != nil {
		t.Fatalf("parseScript: %v", err)
	}

	r := newScriptRunner(a)
	if err := r.run(ops, false, nil); err != nil {
		t.Fatalf("non-strict run returned %v", err)
	}
	for i, want := range []string{"", "already allocated", "not allocated", "out of memory", ""} {
		got := r.steps[i].Error
		if (want == "") != (got == "") || !strings.Contains(got, want) {
			t.Errorf("step %d: error %q, want %q", i, got, want)
		}
	}
	if a.Available() != 0 {
		t.Errorf("available %d, want 0", a.Available())
	}

	strict := newScriptRunner(a)
	if err := strict.run(ops[3:4], true, nil); err == nil {
		t.Error("strict run should stop at the failing step")
	}
}

func TestRunCommand_JSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true
	runEngine = engineFlags{allocator: "boundarytags", capacity: 1000, order: 20, fit: "best"}
	path := writeScript(t, "alloc a 100\nalloc b 200\nfree a\n")

	out, err := captureOutput(t, func() error { return runRun([]string{path}) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res runResult
	assertJSON(t, out, &res)

	if res.Engine != "boundarytags" {
		t.Errorf("engine %q", res.Engine)
	}
	if len(res.Steps) != 3 {
		t.Fatalf("%d steps, want 3", len(res.Steps))
	}
	want := []arena.BlockInfo{{Size: 132}, {Occupied: true, Size: 232}, {Size: 636}}
	if len(res.Blocks) != len(want) {
		t.Fatalf("blocks %+v, want %+v", res.Blocks, want)
	}
	for i := range want {
		if res.Blocks[i] != want[i] {
			t.Errorf("block %d: %+v, want %+v", i, res.Blocks[i], want[i])
		}
	}
	if _, ok := res.Live["b"]; !ok || len(res.Live) != 1 {
		t.Errorf("live %v, want only b", res.Live)
	}
	if res.Stats.FitMode != "best" {
		t.Errorf("fit mode %q", res.Stats.FitMode)
	}
}

func TestRunCommand_SaveThenInfo(t *testing.T) {
	for _, tc := range []struct {
		name     string
		save     bool
		compress bool
		format   string
	}{
		{"image", true, false, "image"},
		{"export", false, false, "export"},
		{"brotli export", false, true, "export"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resetFlags(t)
			quiet = true
			runEngine = engineFlags{allocator: "buddy", capacity: 0, order: 12, fit: "worst"}
			out := filepath.Join(t.TempDir(), "out")
			if tc.save {
				runSave = out
			} else {
				runExport = out
				runCompress = tc.compress
			}
			script := writeScript(t, "alloc a 100\nalloc b 1000\n")
			if _, err := captureOutput(t, func() error { return runRun([]string{script}) }); err != nil {
				t.Fatalf("run: %v", err)
			}

			quiet = false
			jsonOut = true
			infoBlocks = true
			got, err := captureOutput(t, func() error { return runInfo([]string{out}) })
			if err != nil {
				t.Fatalf("info: %v", err)
			}
			var res infoResult
			assertJSON(t, got, &res)
			if !res.Valid || res.Format != tc.format {
				t.Errorf("valid=%v format=%q, want valid %q", res.Valid, res.Format, tc.format)
			}
			if res.Stats.KindName != "buddy" || res.Stats.FitMode != "worst" {
				t.Errorf("stats %+v", res.Stats)
			}
			if res.Stats.Capacity != 4096 || res.Stats.Available != 4096-128-1024 {
				t.Errorf("capacity %d available %d", res.Stats.Capacity, res.Stats.Available)
			}
			if tc.save && (res.Header == nil || res.Header.Order != 12) {
				t.Errorf("header %+v", res.Header)
			}
			if len(res.Blocks) == 0 {
				t.Error("no blocks reported")
			}
		})
	}
}

func TestInfoCommand_RejectsGarbage(t *testing.T) {
	resetFlags(t)
	quiet = true
	path := writeScript(t, "this is not an arena image")
	if _, err := captureOutput(t, func() error { return runInfo([]string{path}) }); err == nil {
		t.Error("info should fail on a text file")
	}
}
