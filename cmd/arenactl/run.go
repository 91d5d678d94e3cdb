package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/arena/persist"
)

var (
	runEngine   engineFlags
	runSteps    bool
	runStrict   bool
	runSave     string
	runExport   string
	runCompress bool
	runQuality  int
)

func init() {
	cmd := newRunCmd()
	runEngine.register(cmd)
	cmd.Flags().BoolVar(&runSteps, "steps", false, "Print the block map after every step")
	cmd.Flags().BoolVar(&runStrict, "strict", false, "Stop at the first failing step")
	cmd.Flags().StringVar(&runSave, "save", "", "Save the final arena image to this file")
	cmd.Flags().StringVar(&runExport, "export", "", "Export the final arena image as a framed file")
	cmd.Flags().BoolVar(&runCompress, "compress", false, "Compress the export with brotli")
	cmd.Flags().IntVar(&runQuality, "quality", 0, "Brotli quality for --compress (0-11)")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run an allocation script against an engine",
		Long: `The run command executes an allocation script line by line and prints
the outcome of every step followed by the final block map.

Script commands:
  alloc NAME SIZE [COUNT]   allocate COUNT elements of SIZE bytes
  free NAME                 deallocate a named allocation
  fit first|best|worst      switch the fit mode
  show                      print the block map
  stats                     print engine statistics
  validate                  check the arena structure

Use "-" to read the script from stdin.

Example:
  arenactl run script.txt
  arenactl run script.txt --allocator buddy --order 10 --steps
  arenactl run script.txt --allocator boundarytags --fit best --save out.arena`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args)
		},
	}
	return cmd
}

type runResult struct {
	Engine string            `json:"engine"`
	Steps  []stepResult      `json:"steps"`
	Blocks []arena.BlockInfo `json:"blocks"`
	Stats  arena.Stats       `json:"stats"`
	Live   map[string]string `json:"live"`
	Files  map[string]string `json:"files,omitempty"`
}

func runRun(args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		in = f
	}
	ops, err := parseScript(in)
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	a, err := runEngine.build(&arena.Options{Logger: engineLogger()})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer a.Release()

	printVerbose("Engine: %s\n", a.Stats())

	r := newScriptRunner(a)
	var each func(stepResult)
	if !jsonOut {
		each = func(s stepResult) {
			printInfo("%s\n", s)
			if runSteps {
				printInfo("      %s\n", arena.Visualize(a.BlocksInfo()))
			}
		}
	}
	if err := r.run(ops, runStrict, each); err != nil {
		return err
	}

	files := map[string]string{}
	if runSave != "" {
		if err := persist.Save(runSave, a); err != nil {
			return err
		}
		files["image"] = runSave
	}
	if runExport != "" {
		if err := exportTo(runExport, a); err != nil {
			return err
		}
		files["export"] = runExport
	}

	if jsonOut {
		live := make(map[string]string, len(r.refs))
		for name, ref := range r.refs {
			live[name] = ref.String()
		}
		return printJSON(runResult{
			Engine: a.Kind().Name(),
			Steps:  r.steps,
			Blocks: a.BlocksInfo(),
			Stats:  a.Stats(),
			Live:   live,
			Files:  files,
		})
	}

	printInfo("\n%s\n", arena.Visualize(a.BlocksInfo()))
	printInfo("%s\n", a.Stats())
	for kind, path := range files {
		printInfo("Wrote %s to %s\n", kind, path)
	}
	return nil
}

func exportTo(path string, a arena.Arena) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export: %w", err)
	}
	_, err = persist.Export(f, a, persist.ExportOptions{Compress: runCompress, Quality: runQuality})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	return nil
}
