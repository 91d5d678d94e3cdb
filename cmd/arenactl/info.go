package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
	"github.com/joshuapare/arenakit/arena/persist"
)

var infoBlocks bool

func init() {
	cmd := newInfoCmd()
	cmd.Flags().BoolVar(&infoBlocks, "blocks", false, "Print every block")
	rootCmd.AddCommand(cmd)
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show information about a saved arena",
		Long: `The info command loads an arena image written by "run --save" or an
export written by "run --export", validates it and prints its header,
statistics and, with --blocks, its block map.

Example:
  arenactl info out.arena
  arenactl info out.akex --blocks
  arenactl info out.arena --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

type infoResult struct {
	File   string            `json:"file"`
	Format string            `json:"format"`
	Header *persist.Header   `json:"header,omitempty"`
	Stats  arena.Stats       `json:"stats"`
	Blocks []arena.BlockInfo `json:"blocks,omitempty"`
	Valid  bool              `json:"valid"`
	Error  string            `json:"error,omitempty"`
}

// isExport reports whether path starts with the export frame magic.
func isExport(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false, nil
	}
	return bytes.Equal(magic, []byte("AKEX")), nil
}

func loadAny(path string, opts *arena.Options) (arena.Arena, *persist.Header, string, error) {
	export, err := isExport(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	if export {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to open file: %w", err)
		}
		defer f.Close()
		a, err := persist.Import(f, opts)
		return a, nil, "export", err
	}
	h, err := persist.Inspect(path)
	if err != nil {
		return nil, nil, "image", err
	}
	a, err := persist.Load(path, opts)
	return a, &h, "image", err
}

func runInfo(args []string) error {
	path := args[0]
	printVerbose("Loading: %s\n", path)

	a, h, kind, err := loadAny(path, &arena.Options{Logger: engineLogger()})
	res := infoResult{File: path, Format: kind, Header: h, Valid: err == nil}
	if err != nil {
		res.Error = err.Error()
		if jsonOut {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err
	}
	defer a.Release()

	res.Stats = a.Stats()
	if infoBlocks {
		res.Blocks = a.BlocksInfo()
	}
	if jsonOut {
		return printJSON(res)
	}

	printInfo("File:        %s (%s)\n", path, kind)
	if h != nil {
		printInfo("Engine:      %s\n", h.KindName)
		printInfo("Fit mode:    %s\n", h.Fit)
		if h.Kind == arena.KindBuddy {
			printInfo("Order:       %d\n", h.Order)
		}
		printInfo("Image size:  %s\n", humanize.IBytes(uint64(h.Total)))
		printInfo("Saved owner: %d\n", h.Owner)
		printInfo("Mutations:   %s\n", humanize.Comma(int64(h.Seq)))
	}
	printInfo("Stats:       %s\n", res.Stats)
	printInfo("Valid:       yes\n")
	if infoBlocks {
		printInfo("\n%s\n", arena.Visualize(res.Blocks))
	}
	return nil
}
