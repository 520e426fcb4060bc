//go:build linux

package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var namespaceFlags = map[string]uintptr{
	"user":  unix.CLONE_NEWUSER,
	"mount": unix.CLONE_NEWNS,
	"net":   unix.CLONE_NEWNET,
	"uts":   unix.CLONE_NEWUTS,
	"ipc":   unix.CLONE_NEWIPC,
	"pid":   unix.CLONE_NEWPID,
}

func checkIsolation(iso Isolation) error {
	for _, ns := range iso.Namespaces {
		if _, ok := namespaceFlags[ns]; !ok {
			return fmt.Errorf("unknown namespace %q", ns)
		}
	}
	if iso.Cgroup != nil && iso.Cgroup.Parent == "" {
		return errors.New("cgroup parent directory is required")
	}
	return nil
}

// prepare puts the child into its own process group that dies with the
// service, applies credential and namespace options, and attaches the
// optional cgroup. The returned func releases per-step resources.
func (p *Process) prepare(cmd *exec.Cmd, name string) (func(), error) {
	iso := p.cfg.Isolation
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	for _, ns := range iso.Namespaces {
		attr.Cloneflags |= namespaceFlags[ns]
	}
	if attr.Cloneflags&unix.CLONE_NEWUSER != 0 {
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
		attr.GidMappingsEnableSetgroups = false
	} else if iso.Credential != nil {
		attr.Credential = &syscall.Credential{
			Uid:         iso.Credential.UID,
			Gid:         iso.Credential.GID,
			NoSetGroups: true,
		}
	}

	cmd.SysProcAttr = attr
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}

	if iso.Cgroup == nil {
		return func() {}, nil
	}
	cg, err := newCgroup(*iso.Cgroup, name)
	if err != nil {
		return nil, err
	}
	attr.UseCgroupFD = true
	attr.CgroupFD = cg.fd
	return func() {
		if err := cg.destroy(); err != nil {
			slog.Warn("cgroup cleanup failed", "cgroup", cg.dir, "error", err.Error())
		}
	}, nil
}

// killGroup SIGKILLs the whole process group so grandchildren spawned by
// the interpreter do not outlive the deadline.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
