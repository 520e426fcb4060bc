package api

import (
	"encoding/json"
	"slices"
)

// Language identifies the source language of a submission.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

// Languages lists the supported languages in a stable order.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageTypeScript}

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	return slices.Contains(Languages, l)
}

// TestFormat describes how the input and expected values of test cases are
// encoded in a submission.
type TestFormat string

const (
	// TestFormatLiteral means each value is a JSON string holding a
	// language literal expression such as "[[2,7,11,15],9]".
	TestFormatLiteral TestFormat = "literal"

	// TestFormatJSON means each value is used as structured JSON as-is.
	TestFormatJSON TestFormat = "json"
)

// ParamShape declares how a test input maps onto the arguments of the
// solution entry point.
type ParamShape string

const (
	// ParamShapeAuto infers the call arity from the shape of the input.
	ParamShapeAuto ParamShape = "auto"

	// ParamShapeLinkedList converts the input array into a linked list and
	// passes its head as the only argument.
	ParamShapeLinkedList ParamShape = "linked_list"

	// ParamShapePositional spreads an array input into positional arguments.
	ParamShapePositional ParamShape = "positional"

	// ParamShapeSingle always passes the whole input as one argument.
	ParamShapeSingle ParamShape = "single"
)

// ErrorKind classifies why an execution did not succeed.
type ErrorKind string

const (
	ErrorKindSpawnFailed  ErrorKind = "spawn_failed"
	ErrorKindTimeout      ErrorKind = "timeout"
	ErrorKindCompileError ErrorKind = "compile_error"
	ErrorKindRuntimeError ErrorKind = "runtime_error"
)

// TestCase is one input/expected pair. Both values are raw JSON; their
// interpretation depends on the submission's TestFormat.
type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
}

// Submission is the request body of POST /api/code/execute.
type Submission struct {
	Code       string     `json:"code"`
	Language   Language   `json:"language"`
	TestCases  []TestCase `json:"testCases,omitempty"`
	TestFormat TestFormat `json:"testFormat,omitempty"`
	ParamShape ParamShape `json:"paramShape,omitempty"`
}

// DemoMode reports whether the submission runs without test cases.
func (s *Submission) DemoMode() bool {
	return len(s.TestCases) == 0
}

// TestResult is the outcome of a single test case as reported by the
// generated harness.
type TestResult struct {
	Input    any  `json:"input"`
	Expected any  `json:"expected"`
	Actual   any  `json:"actual"`
	Passed   bool `json:"passed"`
}

// ExecutionResult is the response body of a completed or errored execution.
type ExecutionResult struct {
	ID            string       `json:"id,omitempty"`
	Success       bool         `json:"success"`
	Output        string       `json:"output"`
	Error         string       `json:"error,omitempty"`
	ErrorKind     ErrorKind    `json:"errorKind,omitempty"`
	TestResults   []TestResult `json:"testResults,omitempty"`
	ExecutionTime int64        `json:"executionTime"`
}

// Passed returns the number of passing test results.
func (r *ExecutionResult) Passed() int {
	n := 0
	for _, tr := range r.TestResults {
		if tr.Passed {
			n++
		}
	}
	return n
}
