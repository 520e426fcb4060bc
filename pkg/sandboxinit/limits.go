// Package sandboxinit is the last hop before user code runs. The process
// backend can start every step through `codexec sandbox-init -- argv...`,
// which tightens resource limits, installs a seccomp filter and then
// replaces itself with the interpreter.
package sandboxinit

import (
	"strconv"

	"github.com/spf13/pflag"
)

// Limits are applied to the launcher before it execs the step. A zero
// value leaves the corresponding limit untouched.
type Limits struct {
	// AddressSpace caps virtual memory in bytes. Node reserves large
	// virtual ranges at startup, so keep this off for JavaScript unless a
	// cgroup memory limit is unavailable.
	AddressSpace uint64
	CPUSeconds   uint64
	FileSize     uint64
	OpenFiles    uint64

	// Processes is RLIMIT_NPROC, which Linux counts per user.
	Processes uint64

	Seccomp bool
}

// DefaultLimits returns the limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		CPUSeconds: 15,
		FileSize:   16 << 20,
		OpenFiles:  256,
		Seccomp:    true,
	}
}

const (
	flagAddressSpace = "rlimit-as"
	flagCPU          = "rlimit-cpu"
	flagFileSize     = "rlimit-fsize"
	flagOpenFiles    = "rlimit-nofile"
	flagProcesses    = "rlimit-nproc"
	flagSeccomp      = "seccomp"
)

// AddFlags registers the limit flags on fs, defaulting to the values in l.
func (l *Limits) AddFlags(fs *pflag.FlagSet) {
	fs.Uint64Var(&l.AddressSpace, flagAddressSpace, l.AddressSpace, "address space limit in bytes (0 = unlimited)")
	fs.Uint64Var(&l.CPUSeconds, flagCPU, l.CPUSeconds, "CPU time limit in seconds (0 = unlimited)")
	fs.Uint64Var(&l.FileSize, flagFileSize, l.FileSize, "maximum size of a written file in bytes (0 = unlimited)")
	fs.Uint64Var(&l.OpenFiles, flagOpenFiles, l.OpenFiles, "maximum number of open files (0 = unlimited)")
	fs.Uint64Var(&l.Processes, flagProcesses, l.Processes, "maximum number of processes for the user (0 = unlimited)")
	fs.BoolVar(&l.Seccomp, flagSeccomp, l.Seccomp, "install the seccomp syscall filter")
}

// Args renders l as command line flags understood by AddFlags. Every flag
// is written out so the launcher does not depend on its own defaults.
func (l Limits) Args() []string {
	u := func(name string, v uint64) string {
		return "--" + name + "=" + strconv.FormatUint(v, 10)
	}
	return []string{
		u(flagAddressSpace, l.AddressSpace),
		u(flagCPU, l.CPUSeconds),
		u(flagFileSize, l.FileSize),
		u(flagOpenFiles, l.OpenFiles),
		u(flagProcesses, l.Processes),
		"--" + flagSeccomp + "=" + strconv.FormatBool(l.Seccomp),
	}
}

// DeniedSyscalls are refused with EPERM once the filter is installed.
// Everything else stays allowed: interpreters use too wide a surface for
// an allowlist to be maintainable across versions.
var DeniedSyscalls = []string{
	// network
	"socket", "connect", "bind", "listen", "accept", "accept4",
	// tracing other processes
	"ptrace", "process_vm_readv", "process_vm_writev",
	// filesystem and namespace manipulation
	"mount", "umount2", "pivot_root", "chroot", "unshare", "setns",
	// host
	"reboot", "kexec_load", "init_module", "finit_module", "delete_module",
}
