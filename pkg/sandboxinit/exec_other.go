//go:build !linux

package sandboxinit

import (
	"fmt"
	"runtime"
)

// Exec is only available on Linux.
func Exec(Limits, []string) error {
	return fmt.Errorf("sandbox-init is not supported on %s", runtime.GOOS)
}
