package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
)

var (
	stressEngine     engineFlags
	stressGoroutines int
	stressOps        int
	stressMaxSize    int
	stressMaxLive    int
	stressSeed       uint64
)

func init() {
	cmd := newStressCmd()
	stressEngine.register(cmd)
	cmd.Flags().IntVarP(&stressGoroutines, "goroutines", "g", 8, "Concurrent workers")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 10000, "Operations per worker")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 512, "Largest allocation in bytes")
	cmd.Flags().IntVar(&stressMaxLive, "max-live", 32, "Live allocations per worker")
	cmd.Flags().Uint64Var(&stressSeed, "seed", 1, "Random seed")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer an engine with concurrent allocations",
		Long: `The stress command runs several workers that allocate and free random
sizes on one shared engine. Every payload is filled with a per-block byte and
checked before it is freed, so overlapping blocks are reported. The arena is
validated at the end.

Example:
  arenactl stress
  arenactl stress --allocator buddy --order 16 -g 16 -n 50000
  arenactl stress --allocator boundarytags --fit worst --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

type stressResult struct {
	Engine      string        `json:"engine"`
	Goroutines  int           `json:"goroutines"`
	Allocs      int64         `json:"allocs"`
	Frees       int64         `json:"frees"`
	OutOfMemory int64         `json:"out_of_memory"`
	Clobbered   int64         `json:"clobbered"`
	Duration    time.Duration `json:"duration_ns"`
	Stats       arena.Stats   `json:"stats"`
	Valid       bool          `json:"valid"`
	Error       string        `json:"error,omitempty"`
}

type stressBlock struct {
	ref     arena.Ref
	payload []byte
	fill    byte
}

// stress runs the workers against a and returns the counters. It does not
// release a.
func stress(a arena.Arena, goroutines, ops, maxSize, maxLive int, seed uint64) (stressResult, error) {
	var (
		allocs, frees, oom, clobbered atomic.Int64
		errMu                         sync.Mutex
		firstErr                      error
		wg                            sync.WaitGroup
	)
	fail := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	release := func(b stressBlock) {
		for _, v := range b.payload {
			if v != b.fill {
				clobbered.Add(1)
				break
			}
		}
		if err := a.Deallocate(b.ref); err != nil {
			fail(fmt.Errorf("deallocate %v: %w", b.ref, err))
			return
		}
		frees.Add(1)
	}

	start := time.Now()
	for g := range goroutines {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(seed, uint64(g)))
			live := make([]stressBlock, 0, maxLive)
			for i := range ops {
				if len(live) == maxLive || (len(live) > 0 && rng.IntN(2) == 0) {
					j := rng.IntN(len(live))
					release(live[j])
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
					continue
				}
				ref, payload, err := a.Allocate(1, 1+rng.IntN(maxSize))
				if errors.Is(err, arena.ErrOutOfMemory) {
					oom.Add(1)
					continue
				}
				if err != nil {
					fail(fmt.Errorf("allocate: %w", err))
					return
				}
				allocs.Add(1)
				b := stressBlock{ref, payload, byte(g*31 + i)}
				for k := range b.payload {
					b.payload[k] = b.fill
				}
				live = append(live, b)
			}
			for _, b := range live {
				release(b)
			}
		})
	}
	wg.Wait()

	res := stressResult{
		Engine:      a.Kind().Name(),
		Goroutines:  goroutines,
		Allocs:      allocs.Load(),
		Frees:       frees.Load(),
		OutOfMemory: oom.Load(),
		Clobbered:   clobbered.Load(),
		Duration:    time.Since(start),
		Stats:       a.Stats(),
	}
	err := firstErr
	if err == nil {
		err = a.Validate()
	}
	if err == nil && res.Clobbered > 0 {
		err = fmt.Errorf("%d payloads were overwritten by other blocks", res.Clobbered)
	}
	if err == nil && res.Stats.Available != res.Stats.Capacity {
		err = fmt.Errorf("%d bytes still in use after all blocks were freed", res.Stats.Used)
	}
	res.Valid = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	return res, err
}

func runStress() error {
	if stressGoroutines < 1 || stressOps < 0 || stressMaxSize < 1 || stressMaxLive < 1 {
		return fmt.Errorf("goroutines, max-size and max-live must be positive")
	}
	a, err := stressEngine.build(&arena.Options{Logger: engineLogger()})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer a.Release()

	printVerbose("Engine: %s\n", a.Stats())
	res, err := stress(a, stressGoroutines, stressOps, stressMaxSize, stressMaxLive, stressSeed)

	if jsonOut {
		if perr := printJSON(res); perr != nil {
			return perr
		}
		return err
	}

	total := res.Allocs + res.Frees
	printInfo("Engine:        %s (%s fit)\n", res.Engine, res.Stats.FitMode)
	printInfo("Capacity:      %s\n", humanize.IBytes(uint64(res.Stats.Capacity)))
	printInfo("Workers:       %d\n", res.Goroutines)
	printInfo("Allocations:   %s\n", humanize.Comma(res.Allocs))
	printInfo("Frees:         %s\n", humanize.Comma(res.Frees))
	printInfo("Out of memory: %s\n", humanize.Comma(res.OutOfMemory))
	printInfo("Duration:      %s", res.Duration.Round(time.Microsecond))
	if secs := res.Duration.Seconds(); secs > 0 {
		printInfo(" (%s ops/s)", humanize.Comma(int64(float64(total)/secs)))
	}
	printInfo("\n")
	if err != nil {
		return fmt.Errorf("stress failed: %w", err)
	}
	printInfo("Result:        ok\n")
	return nil
}
