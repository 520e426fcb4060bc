package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"
	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/harness"
)

// ErrUnsupportedLanguage is returned by the in-process runner for
// languages other than JavaScript and TypeScript.
var ErrUnsupportedLanguage = errors.New("language not supported in-process")

// InProcessConfig configures the embedded ECMAScript runner.
type InProcessConfig struct {
	MaxOutputBytes int

	// Timeout applies to steps that carry no timeout of their own.
	Timeout time.Duration
}

// InProcess runs JavaScript and TypeScript programs inside an embedded
// interpreter. TypeScript is transpiled with esbuild instead of tsc. The
// interpreter has no filesystem, process or network bindings; require
// resolves only "fs", whose readFileSync serves the program's own files
// from memory. Results are less trustworthy than those of the process
// backends: there is no OS isolation, only a wall-clock interrupt.
type InProcess struct {
	cfg InProcessConfig
}

var _ Runner = (*InProcess)(nil)

// NewInProcess creates an in-process runner.
func NewInProcess(cfg InProcessConfig) *InProcess {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &InProcess{cfg: cfg}
}

// Supports reports whether lang can run in-process.
func (p *InProcess) Supports(lang api.Language) bool {
	return lang == api.LanguageJavaScript || lang == api.LanguageTypeScript
}

// Run implements Runner.
func (p *InProcess) Run(ctx context.Context, prog *harness.Program) (*Outcome, error) {
	if !p.Supports(prog.Language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, prog.Language)
	}
	d, err := harness.Lookup(prog.Language)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(prog.Files))
	for _, f := range prog.Files {
		files[f.Name] = f.Content
	}
	log := slog.With("runner", "inprocess", "language", prog.Language)

	out, err := sequence(ctx, prog, func(ctx context.Context, step harness.Step) (stepResult, error) {
		switch step.Name {
		case harness.StepCompile:
			return transpile(files, d.SourceFile, d.RunFile()), nil
		default:
			return p.runScript(ctx, files, d.RunFile(), step, log)
		}
	})
	if out != nil {
		log.Debug("runner state", "state", out.State, "step", out.Step, "exit_code", out.ExitCode)
	}
	return out, err
}

// transpile strips TypeScript types from src and stores the result as dst.
func transpile(files map[string]string, src, dst string) stepResult {
	res := esbuild.Transform(files[src], esbuild.TransformOptions{
		Loader:     esbuild.LoaderTS,
		Target:     esbuild.ES2017,
		Sourcefile: src,
	})
	if len(res.Errors) > 0 {
		var diag strings.Builder
		for _, m := range res.Errors {
			if m.Location != nil {
				fmt.Fprintf(&diag, "%s(%d,%d): error: %s\n", m.Location.File, m.Location.Line, m.Location.Column+1, m.Text)
			} else {
				fmt.Fprintf(&diag, "error: %s\n", m.Text)
			}
		}
		return stepResult{exitCode: 1, stderr: diag.String()}
	}
	files[dst] = string(res.Code)
	return stepResult{}
}

func (p *InProcess) runScript(ctx context.Context, files map[string]string, name string, step harness.Step, log *slog.Logger) (stepResult, error) {
	src, ok := files[name]
	if !ok {
		return stepResult{spawnErr: fmt.Errorf("%s not found", name)}, nil
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}

	stdout := newCappedBuffer(p.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(p.cfg.MaxOutputBytes)

	vm := goja.New()
	if err := bindGlobals(vm, files, stdout, stderr); err != nil {
		return stepResult{}, fmt.Errorf("bind globals: %w", err)
	}

	errTimeout := errors.New("timeout")
	timer := time.AfterFunc(timeout, func() { vm.Interrupt(errTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	log.Debug("runner state", "state", StateRunning, "step", step.Name)
	_, runErr := vm.RunScript(name, src)

	if err := ctx.Err(); err != nil {
		return stepResult{}, err
	}

	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) {
		if interrupted.Value() == errTimeout {
			return stepResult{timedOut: true}, nil
		}
		return stepResult{}, fmt.Errorf("interrupted: %v", interrupted.Value())
	}

	res := stepResult{stdout: stdout.String()}
	if runErr != nil {
		var exc *goja.Exception
		if errors.As(runErr, &exc) {
			fmt.Fprintln(stderr, exc.String())
		} else {
			fmt.Fprintln(stderr, runErr.Error())
		}
		res.exitCode = 1
	}
	res.stderr = stderr.String()
	return res, nil
}

// bindGlobals installs console and a require limited to an in-memory fs.
func bindGlobals(vm *goja.Runtime, files map[string]string, stdout, stderr *cappedBuffer) error {
	printer := func(w *cappedBuffer) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			fmt.Fprintln(w, strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	for name, w := range map[string]*cappedBuffer{"log": stdout, "info": stdout, "error": stderr, "warn": stderr} {
		if err := console.Set(name, printer(w)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	fs := vm.NewObject()
	err := fs.Set("readFileSync", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		content, ok := files[name]
		if !ok {
			panic(vm.NewGoError(fmt.Errorf("ENOENT: no such file or directory, open '%s'", name)))
		}
		return vm.ToValue(content)
	})
	if err != nil {
		return err
	}
	return vm.Set("require", func(call goja.FunctionCall) goja.Value {
		if mod := call.Argument(0).String(); mod != "fs" {
			panic(vm.NewGoError(fmt.Errorf("Cannot find module '%s'", mod)))
		}
		return fs
	})
}
