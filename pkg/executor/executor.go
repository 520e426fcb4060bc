// Package executor runs the submission pipeline: structural validation,
// the denylist, test case normalization, harness compilation, the runner
// backend and result parsing. It owns the execution clock and records
// metrics and the audit trail.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/harness"
	"github.com/rhuss/codexec/pkg/observability"
	"github.com/rhuss/codexec/pkg/result"
	"github.com/rhuss/codexec/pkg/runner"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/transport"
	"github.com/rhuss/codexec/pkg/validator"
)

// Config holds the executor's collaborators besides the runner. Nil
// fields fall back to the built-in defaults.
type Config struct {
	Limits    api.ValidationConfig
	Validator *validator.Validator
	Compiler  *harness.Compiler

	// Store receives an audit record per execution. Nil disables the
	// audit trail.
	Store storage.ExecutionStore
}

// Executor implements transport.Executor.
type Executor struct {
	runner    runner.Runner
	validator *validator.Validator
	compiler  *harness.Compiler
	store     storage.ExecutionStore
	limits    api.ValidationConfig
	now       func() time.Time
}

var _ transport.Executor = (*Executor)(nil)

// New creates an Executor. The runner must not be nil.
func New(r runner.Runner, cfg Config) (*Executor, error) {
	if r == nil {
		return nil, errors.New("executor: runner must not be nil")
	}
	e := &Executor{
		runner:    r,
		validator: cfg.Validator,
		compiler:  cfg.Compiler,
		store:     cfg.Store,
		limits:    cfg.Limits,
		now:       time.Now,
	}
	if e.validator == nil {
		v, err := validator.New(nil)
		if err != nil {
			return nil, err
		}
		e.validator = v
	}
	if e.compiler == nil {
		e.compiler = harness.NewCompiler(nil)
	}
	return e, nil
}

// Compiler returns the harness compiler used for submissions.
func (e *Executor) Compiler() *harness.Compiler {
	return e.compiler
}

// Languages describes the configured runner steps of every supported
// language.
func (e *Executor) Languages() []transport.LanguageInfo {
	out := make([]transport.LanguageInfo, 0, len(api.Languages))
	for _, lang := range api.Languages {
		prog, err := e.compiler.Compile(harness.Request{Language: lang})
		if err != nil {
			slog.Warn("language not available", "language", lang, "error", err)
			continue
		}
		info := transport.LanguageInfo{
			Language:    lang,
			DisplayName: prog.DisplayName,
			SourceFile:  prog.Files[0].Name,
		}
		for _, st := range prog.Steps {
			info.Steps = append(info.Steps, transport.StepInfo{
				Name:           st.Name,
				Command:        st.Argv,
				TimeoutSeconds: st.Timeout.Seconds(),
			})
		}
		out = append(out, info)
	}
	return out
}

// Execute implements transport.Executor.
func (e *Executor) Execute(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
	start := e.now()

	if apiErr := api.ValidateSubmission(sub, e.limits); apiErr != nil {
		observability.ValidationRejectionsTotal.WithLabelValues(apiErr.Code).Inc()
		return nil, apiErr
	}
	if apiErr, reason := e.validator.Validate(sub.Code, sub.Language); apiErr != nil {
		observability.ValidationRejectionsTotal.WithLabelValues(reason).Inc()
		slog.Info("submission rejected by denylist", "language", sub.Language, "rule", reason)
		return nil, apiErr
	}

	cases, err := harness.NormalizeCases(sub.TestFormat, sub.TestCases)
	if err != nil {
		var lerr *harness.LiteralError
		if errors.As(err, &lerr) {
			observability.ValidationRejectionsTotal.WithLabelValues(api.CodeInvalidLiteral).Inc()
			return nil, api.NewInvalidRequestError(lerr.Param(), lerr.Err.Error()).WithCode(api.CodeInvalidLiteral)
		}
		return nil, internalError("normalize test cases", err)
	}

	id := api.NewExecutionID()
	log := slog.With("execution_id", id, "language", sub.Language)
	log.Debug("execute", "test_cases", len(cases), "code", preview(sub.Code, 120))

	req := harness.Request{
		Language: sub.Language,
		Code:     sub.Code,
		Cases:    cases,
		Shape:    sub.ParamShape,
	}
	prog, err := e.compiler.Compile(req)
	if err != nil {
		return nil, internalError("compile harness", err)
	}
	debug.Log("harness", "program compiled", "execution_id", id, "files", len(prog.Files), "steps", len(prog.Steps))
	for _, f := range prog.Files {
		debug.Raw("harness", id+"/"+f.Name, f.Content)
	}

	out, err := e.runner.Run(ctx, prog)
	if err != nil {
		if errors.Is(err, runner.ErrBusy) {
			return nil, api.NewTooManyRequestsError("sandbox at capacity, retry later")
		}
		if ctx.Err() != nil {
			log.Info("execution abandoned", "reason", ctx.Err())
		}
		return nil, internalError("run program", err)
	}

	res := &api.ExecutionResult{
		ID:        id,
		Success:   out.Success(),
		Output:    strings.TrimSpace(out.Stdout),
		Error:     out.ErrorText(),
		ErrorKind: out.Kind,
	}
	if !req.Demo() && out.Step == harness.StepRun && out.State == runner.StateCompleted {
		res.TestResults = result.Parse(out.Stdout)
	}
	elapsed := e.now().Sub(start)
	res.ExecutionTime = elapsed.Milliseconds()

	e.observe(sub.Language, res, elapsed)
	e.audit(ctx, log, sub, res)

	log.Info("execute complete",
		"exit_code", out.ExitCode,
		"kind", out.Kind,
		"duration", elapsed,
	)
	return res, nil
}

func (e *Executor) observe(lang api.Language, res *api.ExecutionResult, elapsed time.Duration) {
	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
		if outcome == "" {
			outcome = "failure"
		}
	}
	observability.ExecutionsTotal.WithLabelValues(string(lang), outcome).Inc()
	observability.ExecutionDuration.WithLabelValues(string(lang)).Observe(elapsed.Seconds())

	if passed := res.Passed(); len(res.TestResults) > 0 {
		observability.TestCasesTotal.WithLabelValues(string(lang), "pass").Add(float64(passed))
		observability.TestCasesTotal.WithLabelValues(string(lang), "fail").Add(float64(len(res.TestResults) - passed))
	}
}

// audit stores the execution summary. Failures never reach the caller.
func (e *Executor) audit(ctx context.Context, log *slog.Logger, sub *api.Submission, res *api.ExecutionResult) {
	if e.store == nil {
		return
	}
	rec := storage.NewRecord(sub, res, transport.RequestIDFromContext(ctx))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.Save(ctx, rec); err != nil {
		log.Warn("failed to save execution record", "error", err)
	}
}

func internalError(op string, err error) error {
	slog.Error("execution failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, api.NewServerError("Internal server error"))
}

// preview shortens code for debug logs.
func preview(code string, n int) string {
	code = strings.ReplaceAll(code, "\n", "\\n")
	if len(code) <= n {
		return code
	}
	return code[:n] + "..."
}
