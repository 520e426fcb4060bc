//go:build linux

package sandboxinit

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/sys/unix"
)

// Exec applies l to the current process and replaces it with argv. It only
// returns on failure.
func Exec(l Limits, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command given")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", argv[0], err)
	}

	// no_new_privs and the filter attach to the calling thread; keep
	// exec on the same one.
	runtime.LockOSThread()

	if err := applyRlimits(l); err != nil {
		return err
	}
	if l.Seccomp {
		if err := loadFilter(); err != nil {
			return err
		}
	} else if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no_new_privs: %w", err)
	}

	return unix.Exec(path, argv, os.Environ())
}

func applyRlimits(l Limits) error {
	limits := []struct {
		name     string
		resource int
		value    uint64
	}{
		{"RLIMIT_AS", unix.RLIMIT_AS, l.AddressSpace},
		{"RLIMIT_CPU", unix.RLIMIT_CPU, l.CPUSeconds},
		{"RLIMIT_FSIZE", unix.RLIMIT_FSIZE, l.FileSize},
		{"RLIMIT_NOFILE", unix.RLIMIT_NOFILE, l.OpenFiles},
		{"RLIMIT_NPROC", unix.RLIMIT_NPROC, l.Processes},
	}
	for _, lim := range limits {
		if lim.value == 0 {
			continue
		}
		if err := unix.Setrlimit(lim.resource, &unix.Rlimit{Cur: lim.value, Max: lim.value}); err != nil {
			return fmt.Errorf("set %s: %w", lim.name, err)
		}
	}
	return nil
}

// Policy returns the seccomp policy installed by Exec.
func Policy() seccomp.Policy {
	return seccomp.Policy{
		DefaultAction: seccomp.ActionAllow,
		Syscalls: []seccomp.SyscallGroup{
			{Action: seccomp.ActionErrno, Names: DeniedSyscalls},
		},
	}
}

func loadFilter() error {
	if !seccomp.Supported() {
		return errors.New("seccomp is not supported by this kernel")
	}
	filter := seccomp.Filter{
		NoNewPrivs: true,
		Flag:       seccomp.FilterFlagTSync,
		Policy:     Policy(),
	}
	if err := seccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
