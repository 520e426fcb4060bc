package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func validSubmission() *Submission {
	return &Submission{
		Code:     "def solution(arr):\n    return arr\n",
		Language: LanguagePython,
	}
}

func TestValidateSubmission(t *testing.T) {
	cfg := DefaultValidationConfig()

	tests := []struct {
		name      string
		modify    func(*Submission)
		wantErr   bool
		wantParam string
		wantCode  string
		wantMsg   string
	}{
		{
			name:   "valid demo submission",
			modify: func(s *Submission) {},
		},
		{
			name:      "empty code",
			modify:    func(s *Submission) { s.Code = "" },
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeMissingField,
			wantMsg:   "Code and language are required",
		},
		{
			name:      "whitespace code",
			modify:    func(s *Submission) { s.Code = "  \n\t" },
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeMissingField,
		},
		{
			name:      "missing language",
			modify:    func(s *Submission) { s.Language = "" },
			wantErr:   true,
			wantParam: "language",
			wantMsg:   "Code and language are required",
		},
		{
			name:      "unsupported language",
			modify:    func(s *Submission) { s.Language = "ruby" },
			wantErr:   true,
			wantParam: "language",
			wantCode:  CodeUnsupportedLanguage,
			wantMsg:   "Unsupported language",
		},
		{
			name:      "code too large",
			modify:    func(s *Submission) { s.Code = strings.Repeat("x", cfg.MaxCodeBytes+1) },
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeLimitExceeded,
		},
		{
			name: "too many test cases",
			modify: func(s *Submission) {
				for range cfg.MaxTestCases + 1 {
					s.TestCases = append(s.TestCases, TestCase{Input: json.RawMessage(`"1"`), Expected: json.RawMessage(`"1"`)})
				}
			},
			wantErr:   true,
			wantParam: "testCases",
			wantCode:  CodeLimitExceeded,
		},
		{
			name:      "python without solution",
			modify:    func(s *Submission) { s.Code = "def helper(arr):\n    return arr\n" },
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeMissingEntryPoint,
			wantMsg:   "Code must contain a 'solution' function",
		},
		{
			name: "javascript without solution",
			modify: func(s *Submission) {
				s.Language = LanguageJavaScript
				s.Code = "const solve = (a) => a;"
			},
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeMissingEntryPoint,
		},
		{
			name: "javascript function declaration",
			modify: func(s *Submission) {
				s.Language = LanguageJavaScript
				s.Code = "function solution(a) { return a; }"
			},
		},
		{
			name: "typescript arrow function",
			modify: func(s *Submission) {
				s.Language = LanguageTypeScript
				s.Code = "const solution = (a: number[]): number[] => a;"
			},
		},
		{
			name: "typescript generic function",
			modify: func(s *Submission) {
				s.Language = LanguageTypeScript
				s.Code = "export function solution<T>(a: T[]): T[] { return a; }"
			},
		},
		{
			name: "python solution in a comment only",
			modify: func(s *Submission) {
				s.Code = "# solution(arr) goes here\nx = 1\n"
			},
			wantErr:   true,
			wantParam: "code",
			wantCode:  CodeMissingEntryPoint,
		},
		{
			name:      "unknown test format",
			modify:    func(s *Submission) { s.TestFormat = "yaml" },
			wantErr:   true,
			wantParam: "testFormat",
			wantCode:  CodeInvalidValue,
		},
		{
			name:      "unknown param shape",
			modify:    func(s *Submission) { s.ParamShape = "matrix" },
			wantErr:   true,
			wantParam: "paramShape",
			wantCode:  CodeInvalidValue,
		},
		{
			name: "test case without expected",
			modify: func(s *Submission) {
				s.TestCases = []TestCase{{Input: json.RawMessage(`"[1]"`)}}
			},
			wantErr:   true,
			wantParam: "testCases[0].expected",
			wantCode:  CodeMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.modify(sub)

			apiErr := ValidateSubmission(sub, cfg)
			if !tt.wantErr {
				if apiErr != nil {
					t.Fatalf("unexpected error: %v", apiErr)
				}
				return
			}
			if apiErr == nil {
				t.Fatal("expected error, got nil")
			}
			if apiErr.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", apiErr.Type, ErrorTypeInvalidRequest)
			}
			if apiErr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
			}
			if tt.wantCode != "" && apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && apiErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateSubmissionDefaults(t *testing.T) {
	sub := validSubmission()
	if apiErr := ValidateSubmission(sub, DefaultValidationConfig()); apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if sub.TestFormat != TestFormatLiteral {
		t.Errorf("TestFormat = %q, want %q", sub.TestFormat, TestFormatLiteral)
	}
	if sub.ParamShape != ParamShapeAuto {
		t.Errorf("ParamShape = %q, want %q", sub.ParamShape, ParamShapeAuto)
	}
}

func TestValidateSubmissionUnlimited(t *testing.T) {
	sub := validSubmission()
	sub.Code = strings.Repeat("#", 1<<20)
	if apiErr := ValidateSubmission(sub, ValidationConfig{}); apiErr != nil {
		t.Errorf("zero limits should disable checks, got %v", apiErr)
	}
}

func TestExecutionResultPassed(t *testing.T) {
	r := &ExecutionResult{TestResults: []TestResult{{Passed: true}, {Passed: false}, {Passed: true}}}
	if got := r.Passed(); got != 2 {
		t.Errorf("Passed() = %d, want 2", got)
	}
}

func TestLanguageValid(t *testing.T) {
	for _, l := range Languages {
		if !l.Valid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if Language("go").Valid() {
		t.Error(`"go" should not be valid`)
	}
}
