package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/harness"
	"github.com/rhuss/codexec/pkg/observability"
)

// ProcessConfig configures the local process backend.
type ProcessConfig struct {
	// TempDir is the parent directory of workspaces. Empty uses the
	// system temporary directory.
	TempDir string

	// Path is the PATH given to child processes and used to resolve
	// interpreters. Empty inherits the service's PATH.
	Path string

	MaxOutputBytes int

	// KillGrace bounds how long the runner waits for output pipes to
	// close after the process group was killed.
	KillGrace time.Duration

	// Launcher, when set, is prepended to every step followed by "--".
	// It is used to run steps through "codexec sandbox-init".
	Launcher []string

	Isolation Isolation
}

// Isolation holds the optional OS-level restrictions of the process
// backend. All of them require Linux.
type Isolation struct {
	// Credential runs children as this uid/gid. Ignored when a user
	// namespace is requested; the child is then root inside a namespace
	// mapped to the service's own uid.
	Credential *Credential

	// Namespaces lists namespaces to unshare: user, mount, net, uts, ipc, pid.
	Namespaces []string

	// Cgroup places every step into a fresh cgroup v2 child with limits.
	Cgroup *CgroupLimits
}

// Enabled reports whether any isolation option is set.
func (i Isolation) Enabled() bool {
	return i.Credential != nil || len(i.Namespaces) > 0 || i.Cgroup != nil
}

// Credential is a numeric user and group.
type Credential struct {
	UID uint32
	GID uint32
}

// CgroupLimits configures per-step cgroup v2 limits. Parent must be a
// delegated cgroup directory with the memory, pids and cpu controllers
// enabled in cgroup.subtree_control.
type CgroupLimits struct {
	Parent    string
	MemoryMax int64
	PidsMax   int64

	// CPUMax is written verbatim to cpu.max, e.g. "50000 100000".
	CPUMax string
}

// Process runs programs as local child processes, one workspace per run.
type Process struct {
	cfg ProcessConfig
}

var _ Runner = (*Process)(nil)

// NewProcess creates a process runner.
func NewProcess(cfg ProcessConfig) (*Process, error) {
	if err := checkIsolation(cfg.Isolation); err != nil {
		return nil, err
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return &Process{cfg: cfg}, nil
}

// Run implements Runner.
func (p *Process) Run(ctx context.Context, prog *harness.Program) (*Outcome, error) {
	dir, err := os.MkdirTemp(p.cfg.TempDir, prog.WorkspacePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	log := slog.With("workspace", filepath.Base(dir), "language", prog.Language)
	defer p.cleanup(dir, log)

	if err := WriteWorkspace(dir, prog.Files); err != nil {
		return nil, err
	}
	if cred := p.cfg.Isolation.Credential; cred != nil && !slices.Contains(p.cfg.Isolation.Namespaces, "user") {
		if err := chownTree(dir, int(cred.UID), int(cred.GID)); err != nil {
			return nil, fmt.Errorf("hand workspace to sandbox user: %w", err)
		}
	}
	log.Debug("runner state", "state", StateCreated)

	out, err := sequence(ctx, prog, func(ctx context.Context, step harness.Step) (stepResult, error) {
		return p.runStep(ctx, dir, step, log)
	})
	if out != nil {
		log.Debug("runner state", "state", out.State, "step", out.Step, "exit_code", out.ExitCode)
	}
	return out, err
}

func (p *Process) runStep(ctx context.Context, dir string, step harness.Step, log *slog.Logger) (stepResult, error) {
	if len(step.Argv) == 0 {
		return stepResult{}, errors.New("empty command")
	}

	bin, err := p.lookPath(step.Argv[0])
	if err != nil {
		return stepResult{spawnErr: err}, nil
	}
	argv := append([]string{bin}, step.Argv[1:]...)
	if len(p.cfg.Launcher) > 0 {
		argv = append(append(slices.Clone(p.cfg.Launcher), "--"), argv...)
	}

	debug.Log("runner", "starting step", "step", step.Name, "argv", argv, "dir", dir, "timeout", step.Timeout)

	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if step.Timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	stdout := newCappedBuffer(p.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(p.cfg.MaxOutputBytes)

	cmd := exec.CommandContext(stepCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = p.env(dir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = p.cfg.KillGrace

	release, err := p.prepare(cmd, filepath.Base(dir)+"-"+step.Name)
	if err != nil {
		return stepResult{}, err
	}
	defer release()

	var killed atomic.Bool
	kill := cmd.Cancel
	cmd.Cancel = func() error {
		killed.Store(true)
		return kill()
	}

	log.Debug("runner state", "state", StateSpawning, "step", step.Name, "argv", strings.Join(step.Argv, " "))
	if err := cmd.Start(); err != nil {
		return stepResult{spawnErr: err}, nil
	}
	log.Debug("runner state", "state", StateRunning, "step", step.Name, "pid", cmd.Process.Pid)

	waitErr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return stepResult{}, err
	}
	if killedByDeadline(killed.Load(), cmd.ProcessState) {
		// Partial output of a killed process is discarded.
		return stepResult{timedOut: true}, nil
	}

	if stdout.Truncated() || stderr.Truncated() {
		log.Debug("output truncated", "step", step.Name, "limit", p.cfg.MaxOutputBytes)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) &&
		!errors.Is(waitErr, context.DeadlineExceeded) {
		return stepResult{}, fmt.Errorf("wait: %w", waitErr)
	}
	return stepResult{
		exitCode: cmd.ProcessState.ExitCode(),
		stdout:   stdout.String(),
		stderr:   stderr.String(),
	}, nil
}

// killedByDeadline reports whether a step ended because the runner killed
// it at its deadline. A step that exited on its own while the deadline
// fired was not killed by the signal and keeps its exit status.
func killedByDeadline(killed bool, ps *os.ProcessState) bool {
	// ExitCode is -1 for a process terminated by a signal.
	return killed && ps != nil && ps.ExitCode() == -1
}

// lookPath resolves name against the configured PATH so a missing
// interpreter is reported as a spawn failure before anything starts.
func (p *Process) lookPath(name string) (string, error) {
	if p.cfg.Path == "" || strings.ContainsRune(name, filepath.Separator) {
		return exec.LookPath(name)
	}
	for _, dir := range filepath.SplitList(p.cfg.Path) {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func (p *Process) env(dir string) []string {
	path := p.cfg.Path
	if path == "" {
		path = os.Getenv("PATH")
	}
	return []string{
		"PATH=" + path,
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
}

func (p *Process) cleanup(dir string, log *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		observability.WorkspaceCleanupFailuresTotal.Inc()
		log.Warn("workspace cleanup failed", "error", err.Error())
		return
	}
	log.Debug("runner state", "state", StateCleaned)
}

// WriteWorkspace writes program files into dir. Names are reduced to
// their base name so a file can never escape the workspace.
func WriteWorkspace(dir string, files []harness.File) error {
	for _, f := range files {
		name := filepath.Base(f.Name)
		if name == "." || name == string(filepath.Separator) {
			return fmt.Errorf("invalid file name %q", f.Name)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func chownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}
