package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/joshuapare/arenakit/arena"
)

// Allocation scripts hold one command per line; '#' starts a comment.
//
//	alloc NAME SIZE [COUNT]   allocate COUNT elements of SIZE bytes (SIZE may be "4KiB")
//	free NAME                 deallocate a named allocation
//	fit first|best|worst      switch the fit mode
//	show                      print the block map
//	stats                     print engine statistics
//	validate                  check the arena structure
type opKind int

const (
	opAlloc opKind = iota
	opFree
	opFit
	opShow
	opStats
	opValidate
)

func (k opKind) String() string {
	return [...]string{"alloc", "free", "fit", "show", "stats", "validate"}[k]
}

type scriptOp struct {
	line     int
	kind     opKind
	name     string
	elemSize int
	count    int
	fit      arena.FitMode
}

func parseScript(r io.Reader) ([]scriptOp, error) {
	var ops []scriptOp
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text, _, _ := strings.Cut(sc.Text(), "#")
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		op.line = line
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

func parseOp(fields []string) (scriptOp, error) {
	args := fields[1:]
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "alloc":
		if len(args) < 2 || len(args) > 3 {
			return scriptOp{}, fmt.Errorf("usage: alloc NAME SIZE [COUNT]")
		}
		size, err := humanize.ParseBytes(args[1])
		if err != nil {
			return scriptOp{}, fmt.Errorf("alloc %s: bad size %q: %w", args[0], args[1], err)
		}
		count := 1
		if len(args) == 3 {
			if count, err = strconv.Atoi(args[2]); err != nil || count < 0 {
				return scriptOp{}, fmt.Errorf("alloc %s: bad count %q", args[0], args[2])
			}
		}
		return scriptOp{kind: opAlloc, name: args[0], elemSize: int(size), count: count}, nil
	case "free":
		if len(args) != 1 {
			return scriptOp{}, fmt.Errorf("usage: free NAME")
		}
		return scriptOp{kind: opFree, name: args[0]}, nil
	case "fit":
		if len(args) != 1 {
			return scriptOp{}, fmt.Errorf("usage: fit first|best|worst")
		}
		fit, err := arena.ParseFitMode(args[0])
		if err != nil {
			return scriptOp{}, err
		}
		return scriptOp{kind: opFit, fit: fit}, nil
	case "show", "stats", "validate":
		if len(args) != 0 {
			return scriptOp{}, fmt.Errorf("%s takes no arguments", cmd)
		}
		return scriptOp{kind: map[string]opKind{"show": opShow, "stats": opStats, "validate": opValidate}[cmd]}, nil
	default:
		return scriptOp{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

// stepResult records the outcome of one script command.
type stepResult struct {
	Line      int    `json:"line"`
	Op        string `json:"op"`
	Name      string `json:"name,omitempty"`
	Ref       string `json:"ref,omitempty"`
	Len       int    `json:"len,omitempty"`
	Cap       int    `json:"cap,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	Available int    `json:"available"`
}

// scriptRunner executes ops against one engine and keeps the named
// allocations between steps.
type scriptRunner struct {
	a     arena.Arena
	refs  map[string]arena.Ref
	steps []stepResult
}

func newScriptRunner(a arena.Arena) *scriptRunner {
	return &scriptRunner{a: a, refs: make(map[string]arena.Ref)}
}

// run executes ops in order. With strict set it stops at the first failing
// step and returns its error.
func (r *scriptRunner) run(ops []scriptOp, strict bool, each func(stepResult)) error {
	for _, op := range ops {
		res, err := r.step(op)
		if err != nil {
			res.Error = err.Error()
		}
		res.Available = r.a.Available()
		r.steps = append(r.steps, res)
		if each != nil {
			each(res)
		}
		if err != nil && strict {
			return fmt.Errorf("line %d: %s: %w", op.line, op.kind, err)
		}
	}
	return nil
}

func (r *scriptRunner) step(op scriptOp) (stepResult, error) {
	res := stepResult{Line: op.line, Op: op.kind.String(), Name: op.name}
	switch op.kind {
	case opAlloc:
		if _, ok := r.refs[op.name]; ok {
			return res, fmt.Errorf("%s is already allocated", op.name)
		}
		ref, payload, err := r.a.Allocate(op.elemSize, op.count)
		if err != nil {
			return res, err
		}
		r.refs[op.name] = ref
		res.Ref, res.Len, res.Cap = ref.String(), len(payload), cap(payload)
	case opFree:
		ref, ok := r.refs[op.name]
		if !ok {
			return res, fmt.Errorf("%s is not allocated", op.name)
		}
		if err := r.a.Deallocate(ref); err != nil {
			return res, err
		}
		delete(r.refs, op.name)
		res.Ref = ref.String()
	case opFit:
		if err := r.a.SetFitMode(op.fit); err != nil {
			return res, err
		}
		res.Detail = op.fit.String()
	case opShow:
		res.Detail = arena.Visualize(r.a.BlocksInfo())
	case opStats:
		res.Detail = r.a.Stats().String()
	case opValidate:
		if err := r.a.Validate(); err != nil {
			return res, err
		}
		res.Detail = "ok"
	}
	return res, nil
}

func (s stepResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%4d  %-8s", s.Line, s.Op)
	if s.Name != "" {
		fmt.Fprintf(&sb, " %s", s.Name)
	}
	if s.Ref != "" {
		fmt.Fprintf(&sb, " -> %s", s.Ref)
	}
	if s.Cap > s.Len {
		fmt.Fprintf(&sb, " (%d bytes, granted %d)", s.Len, s.Cap)
	} else if s.Op == opAlloc.String() && s.Error == "" {
		fmt.Fprintf(&sb, " (%d bytes)", s.Len)
	}
	if s.Detail != "" {
		fmt.Fprintf(&sb, " %s", s.Detail)
	}
	if s.Error != "" {
		fmt.Fprintf(&sb, " FAILED: %s", s.Error)
	}
	return sb.String()
}
