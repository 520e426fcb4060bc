// Package harness turns user source plus test cases into a self-contained
// program that calls the user's solution entry point, compares results and
// prints a machine-parseable report.
//
// One program skeleton serves every language; a [Descriptor] supplies the
// syntax and runtime library of each target. Test data never becomes
// source: it is written to a JSON document that the generated program reads
// with its own JSON parser.
package harness

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rhuss/codexec/pkg/api"
)

// DataFile is the name of the test data document inside the workspace.
const DataFile = "cases.json"

// Case is a normalized test case with structured input and expected values.
type Case struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
}

// File is a file the runner places in the workspace before running steps.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Step names.
const (
	StepCompile = "compile"
	StepRun     = "run"
)

// Step is one process invocation. Argv paths are relative to the workspace.
type Step struct {
	Name    string        `json:"name"`
	Argv    []string      `json:"argv"`
	Timeout time.Duration `json:"timeout"`
}

// Program is the harness compiler's output and the runner's input.
type Program struct {
	Language        api.Language `json:"language"`
	DisplayName     string       `json:"display_name"`
	WorkspacePrefix string       `json:"workspace_prefix"`
	Files           []File       `json:"files"`
	Steps           []Step       `json:"steps"`
}

// Toolchain holds the commands used to build and run one language.
type Toolchain struct {
	// Run is the interpreter command; the program file is appended.
	Run []string

	// Compile is the compiler command for compiled languages; the
	// descriptor's compile arguments are appended.
	Compile []string

	RunTimeout     time.Duration
	CompileTimeout time.Duration
}

// DefaultToolchains returns the commands and timeouts used when nothing is
// configured: ten seconds to run, five to compile.
func DefaultToolchains() map[api.Language]Toolchain {
	return map[api.Language]Toolchain{
		api.LanguagePython: {
			Run:        []string{"python3"},
			RunTimeout: 10 * time.Second,
		},
		api.LanguageJavaScript: {
			Run:        []string{"node"},
			RunTimeout: 10 * time.Second,
		},
		api.LanguageTypeScript: {
			Run:            []string{"node"},
			Compile:        []string{"npx", "tsc"},
			RunTimeout:     10 * time.Second,
			CompileTimeout: 5 * time.Second,
		},
	}
}

// Request is the input of the harness compiler.
type Request struct {
	Language api.Language
	Code     string

	// Cases nil or empty selects demo mode.
	Cases []Case
	Shape api.ParamShape
}

// Demo reports whether the request runs in demo mode.
func (r *Request) Demo() bool {
	return len(r.Cases) == 0
}

// Compiler builds runnable programs.
type Compiler struct {
	toolchains map[api.Language]Toolchain
}

// NewCompiler creates a Compiler. Languages missing from toolchains use the
// defaults.
func NewCompiler(toolchains map[api.Language]Toolchain) *Compiler {
	merged := DefaultToolchains()
	for lang, tc := range toolchains {
		merged[lang] = tc
	}
	return &Compiler{toolchains: merged}
}

// Toolchain returns the toolchain configured for lang.
func (c *Compiler) Toolchain(lang api.Language) (Toolchain, bool) {
	tc, ok := c.toolchains[lang]
	return tc, ok
}

// Compile produces the program for req. The program reads its test data
// from DataFile.
func (c *Compiler) Compile(req Request) (*Program, error) {
	d, err := Lookup(req.Language)
	if err != nil {
		return nil, err
	}
	tc, ok := c.toolchains[req.Language]
	if !ok || len(tc.Run) == 0 {
		return nil, fmt.Errorf("no toolchain configured for %s", req.Language)
	}

	prog := &Program{
		Language:        d.Language,
		DisplayName:     d.DisplayName,
		WorkspacePrefix: d.WorkspacePrefix,
		Files: []File{
			{Name: d.SourceFile, Content: render(d, req.Code, req.Demo(), req.Shape)},
		},
	}

	if !req.Demo() {
		data, err := EncodeCases(req.Cases)
		if err != nil {
			return nil, err
		}
		prog.Files = append(prog.Files, File{Name: DataFile, Content: string(data)})
	}

	if !d.Interpreted() {
		if len(tc.Compile) == 0 {
			return nil, fmt.Errorf("no compiler configured for %s", req.Language)
		}
		prog.Steps = append(prog.Steps, Step{
			Name:    StepCompile,
			Argv:    append(append([]string{}, tc.Compile...), d.CompileArgs...),
			Timeout: tc.CompileTimeout,
		})
	}
	prog.Steps = append(prog.Steps, Step{
		Name:    StepRun,
		Argv:    append(append([]string{}, tc.Run...), d.RunFile()),
		Timeout: tc.RunTimeout,
	})

	return prog, nil
}

// Render returns only the program text for req. Like the compiled
// program, it reads its test data from DataFile.
func Render(req Request) (string, error) {
	d, err := Lookup(req.Language)
	if err != nil {
		return "", err
	}
	return render(d, req.Code, req.Demo(), req.Shape), nil
}

// EncodeCases renders the test data document.
func EncodeCases(cases []Case) ([]byte, error) {
	data, err := json.Marshal(cases)
	if err != nil {
		return nil, fmt.Errorf("encode test cases: %w", err)
	}
	return data, nil
}
