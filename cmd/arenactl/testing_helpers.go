package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// writeScript writes a script to a temp file and returns its path
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	return string(<-done), fnErr
}

// assertJSON checks that output is valid JSON and decodes it into v
func assertJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
}

// resetFlags restores the global flags after a test changes them
func resetFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		jsonOut, quiet, verbose  bool
		run                      engineFlags
		steps, strict, compress  bool
		save, export             string
		stress                   engineFlags
		goroutines, ops, maxSize int
		infoBlocks               bool
	}{
		jsonOut, quiet, verbose,
		runEngine,
		runSteps, runStrict, runCompress,
		runSave, runExport,
		stressEngine,
		stressGoroutines, stressOps, stressMaxSize,
		infoBlocks,
	}
	t.Cleanup(func() {
		jsonOut, quiet, verbose = saved.jsonOut, saved.quiet, saved.verbose
		runEngine = saved.run
		runSteps, runStrict, runCompress = saved.steps, saved.strict, saved.compress
		runSave, runExport = saved.save, saved.export
		stressEngine = saved.stress
		stressGoroutines, stressOps, stressMaxSize = saved.goroutines, saved.ops, saved.maxSize
		infoBlocks = saved.infoBlocks
	})
}
