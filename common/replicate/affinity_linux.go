//go:build linux

package replicate

import "golang.org/x/sys/unix"

// pinToCores restricts the calling OS thread to the given CPU core indices.
// The caller must have locked the goroutine to its thread first.
func pinToCores(cores []int) error {
	if len(cores) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	for _, core := range cores {
		set.Set(core)
	}

	return unix.SchedSetaffinity(0, &set)
}
