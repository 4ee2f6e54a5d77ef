//go:build !linux

package util

import (
	"fmt"
	"runtime"
)

func PinTo(cpus ...int) error {
	return fmt.Errorf("pinning to CPUs %v is not supported on %s", cpus, runtime.GOOS)
}
