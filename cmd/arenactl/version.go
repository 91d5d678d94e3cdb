package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := versionInfo{
			Version: version,
			Commit:  commit,
			Built:   date,
			Go:      runtime.Version(),
			Engines: []string{arena.KindBoundaryTags.Name(), arena.KindBuddy.Name(), arena.KindSortedList.Name()},
		}
		if jsonOut {
			return printJSON(info)
		}
		fmt.Printf("arenactl %s (%s)\n", info.Version, info.Go)
		fmt.Printf("  commit:  %s\n", info.Commit)
		fmt.Printf("  built:   %s\n", info.Built)
		fmt.Printf("  engines: %v\n", info.Engines)
		return nil
	},
}

type versionInfo struct {
	Version string   `json:"version"`
	Commit  string   `json:"commit"`
	Built   string   `json:"built"`
	Go      string   `json:"go"`
	Engines []string `json:"engines"`
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
