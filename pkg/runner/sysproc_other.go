//go:build !linux

package runner

import (
	"errors"
	"os/exec"
)

func checkIsolation(iso Isolation) error {
	if iso.Enabled() {
		return errors.New("process isolation options require linux")
	}
	return nil
}

func (p *Process) prepare(cmd *exec.Cmd, _ string) (func(), error) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
	return func() {}, nil
}
