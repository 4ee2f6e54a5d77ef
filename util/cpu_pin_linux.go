//go:build linux

package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinTo restricts the calling OS thread to cpus. Callers pin goroutines that
// hold runtime.LockOSThread.
func PinTo(cpus ...int) error {
	if len(cpus) == 0 {
		return fmt.Errorf("no CPUs to pin to")
	}

	set := &unix.CPUSet{}
	for _, cpu := range cpus {
		set.Set(cpu)
	}

	err := unix.SchedSetaffinity(0, set)
	if err != nil {
		return err
	}

	verify := &unix.CPUSet{}
	err = unix.SchedGetaffinity(0, verify)
	if err != nil {
		return err
	}

	if verify.Count() != len(cpus) {
		return fmt.Errorf("could not pin to CPUs %v", cpus)
	}
	for _, cpu := range cpus {
		if !verify.IsSet(cpu) {
			return fmt.Errorf("could not pin to CPUs %v", cpus)
		}
	}

	return nil
}
