// Package corepin pins the calling goroutine's OS thread to a specific
// CPU core, the prerequisite for the worker engine's per-core state
// partitioning (spec §4.5/§5: "pinned worker threads").
//
// Grounded on other_examples' go-ublk queue runner, which pins its I/O
// loop the same way for an analogous reason (the kernel ublk driver
// requires one fixed thread per queue): runtime.LockOSThread() followed
// by unix.SchedSetaffinity with a single-CPU CPUSet.
package corepin

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its current OS thread and sets that
// thread's CPU affinity to exactly coreID. It must be called from the
// goroutine that is to run pinned -- typically the first statement in a
// worker's entry point -- and should be paired with a deferred Unpin.
func Pin(coreID int) error {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(coreID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("corepin: set affinity to core %d: %w", coreID, err)
	}
	return nil
}

// Unpin releases the OS thread lock taken by a matching Pin call.
func Unpin() {
	runtime.UnlockOSThread()
}
