package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/arenakit/arena"
)

// engineFlags selects and sizes the engine a command runs against.
type engineFlags struct {
	allocator string
	capacity  int64
	order     int64
	fit       string
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.allocator, "allocator", "a", "sortedlist",
		"Engine (boundarytags, buddy, sortedlist)")
	cmd.Flags().Int64VarP(&f.capacity, "capacity", "c", 1024*1024,
		"Usable bytes for boundarytags and sortedlist")
	cmd.Flags().Int64Var(&f.order, "order", 20, "Buddy arena order (usable bytes = 2^order)")
	cmd.Flags().StringVarP(&f.fit, "fit", "f", "first", "Fit mode (first, best, worst)")
}

// build constructs the engine through the settings layer.
func (f *engineFlags) build(opts *arena.Options) (arena.Arena, error) {
	setts := arena.Defaultsettings()
	setts["allocator"] = f.allocator
	setts["capacity"] = f.capacity
	setts["order"] = f.order
	setts["fitmode"] = f.fit
	return arena.NewFromSettings(setts, opts)
}
