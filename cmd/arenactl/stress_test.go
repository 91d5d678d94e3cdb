package main

import (
	"testing"
)

func TestStress(t *testing.T) {
	engines := []engineFlags{
		{allocator: "boundarytags", capacity: 64 * 1024, fit: "first"},
		{allocator: "buddy", order: 16, fit: "best"},
		{allocator: "sortedlist", capacity: 64 * 1024, fit: "worst"},
	}
	for _, f := range engines {
		t.Run(f.allocator, func(t *testing.T) {
			a, err := f.build(nil)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			defer a.Release()

			res, err := stress(a, 4, 2000, 256, 16, 7)
			if err != nil {
				t.Fatalf("stress: %v", err)
			}
			if !res.Valid || res.Clobbered != 0 {
				t.Errorf("result %+v", res)
			}
			if res.Allocs == 0 || res.Allocs != res.Frees {
				t.Errorf("allocs %d frees %d", res.Allocs, res.Frees)
			}
			if res.Stats.Available != res.Stats.Capacity {
				t.Errorf("available %d of %d", res.Stats.Available, res.Stats.Capacity)
			}
		})
	}
}

func TestStress_OutOfMemoryIsCounted(t *testing.T) {
	f := engineFlags{allocator: "sortedlist", capacity: 256, fit: "first"}
	a, err := f.build(nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Release()

	res, err := stress(a, 2, 500, 200, 4, 3)
	if err != nil {
		t.Fatalf("stress: %v", err)
	}
	if res.OutOfMemory == 0 {
		t.Error("a 256-byte arena should run out of memory")
	}
}
