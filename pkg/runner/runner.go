// Package runner executes harness programs in an isolated, time-bounded
// environment and reports a uniform Outcome regardless of the backend.
package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/harness"
)

// Runner executes a program. A non-nil error means the backend itself
// failed (workspace, daemon, network); problems caused by the submitted
// code are reported through the Outcome.
type Runner interface {
	Run(ctx context.Context, prog *harness.Program) (*Outcome, error)
}

// State is the lifecycle state of one execution.
type State int

const (
	StateCreated State = iota
	StateSpawning
	StateRunning
	StateCompleted
	StateTimedOut
	StateSpawnFailed
	StateCleaned
)

var stateNames = [...]string{
	StateCreated:     "created",
	StateSpawning:    "spawning",
	StateRunning:     "running",
	StateCompleted:   "completed",
	StateTimedOut:    "timed_out",
	StateSpawnFailed: "spawn_failed",
	StateCleaned:     "cleaned",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText encodes the state by name so outcomes travel between the
// server and the sandbox agent readably.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown runner state %q", text)
}

// Outcome is the terminal result of running a program. State is the
// terminal state reached before cleanup (Completed, TimedOut or
// SpawnFailed).
type Outcome struct {
	State    State         `json:"state"`
	Step     string        `json:"step,omitempty"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Kind     api.ErrorKind `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Success reports whether the final step ran and exited with status 0.
func (o *Outcome) Success() bool {
	return o.State == StateCompleted && o.ExitCode == 0 && o.Kind == ""
}

// ErrorText is the error surfaced to the caller: the synthetic message
// when there is one, otherwise the trimmed stderr.
func (o *Outcome) ErrorText() string {
	if o.Message != "" {
		return o.Message
	}
	return strings.TrimSpace(o.Stderr)
}

// stepResult is what a backend reports for a single process invocation.
type stepResult struct {
	exitCode int
	stdout   string
	stderr   string
	timedOut bool

	// spawnErr is set when the process could not be launched.
	spawnErr error
}

// stepFunc runs one step inside an already prepared workspace.
type stepFunc func(ctx context.Context, step harness.Step) (stepResult, error)

// sequence runs the program's steps in order. A failing compile step
// short-circuits the run step.
func sequence(ctx context.Context, prog *harness.Program, run stepFunc) (*Outcome, error) {
	if len(prog.Steps) == 0 {
		return nil, fmt.Errorf("program for %s has no steps", prog.Language)
	}

	for _, step := range prog.Steps {
		res, err := run(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("%s step: %w", step.Name, err)
		}

		switch {
		case res.spawnErr != nil:
			return &Outcome{
				State:    StateSpawnFailed,
				Step:     step.Name,
				ExitCode: -1,
				Kind:     api.ErrorKindSpawnFailed,
				Message:  fmt.Sprintf("Failed to execute %s: %v", prog.DisplayName, res.spawnErr),
			}, nil

		case res.timedOut:
			msg := fmt.Sprintf("Execution timed out after %s seconds", seconds(step.Timeout))
			if step.Name == harness.StepCompile {
				msg = fmt.Sprintf("%s compilation timed out after %s seconds", prog.DisplayName, seconds(step.Timeout))
			}
			return &Outcome{
				State:    StateTimedOut,
				Step:     step.Name,
				ExitCode: -1,
				Kind:     api.ErrorKindTimeout,
				Message:  msg,
			}, nil

		case step.Name == harness.StepCompile:
			if res.exitCode == 0 {
				continue
			}
			diag := strings.TrimSpace(res.stderr)
			if diag == "" {
				diag = strings.TrimSpace(res.stdout)
			}
			return &Outcome{
				State:    StateCompleted,
				Step:     step.Name,
				ExitCode: res.exitCode,
				Stdout:   strings.TrimSpace(res.stdout),
				Stderr:   strings.TrimSpace(res.stderr),
				Kind:     api.ErrorKindCompileError,
				Message:  fmt.Sprintf("%s compilation error: %s", prog.DisplayName, diag),
			}, nil

		default:
			out := &Outcome{
				State:    StateCompleted,
				Step:     step.Name,
				ExitCode: res.exitCode,
				Stdout:   strings.TrimSpace(res.stdout),
				Stderr:   strings.TrimSpace(res.stderr),
			}
			if res.exitCode != 0 {
				out.Kind = api.ErrorKindRuntimeError
			}
			return out, nil
		}
	}

	return nil, fmt.Errorf("program for %s has no %s step", prog.Language, harness.StepRun)
}

// seconds formats a timeout the way error messages present it: whole
// seconds without a fraction when possible.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
