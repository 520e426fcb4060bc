package api

import (
	"fmt"
	"regexp"
	"strings"
)

// entryPoints match a definition of the solution function per language.
var entryPoints = map[Language]*regexp.Regexp{
	LanguagePython:     regexp.MustCompile(`\bdef\s+solution\s*\(`),
	LanguageJavaScript: ecmascriptEntryPoint,
	LanguageTypeScript: ecmascriptEntryPoint,
}

var ecmascriptEntryPoint = regexp.MustCompile(`\bfunction\s+solution\b|\b(?:const|let|var)\s+solution\s*[:=]`)

// ValidationConfig holds configurable limits for submission validation.
type ValidationConfig struct {
	MaxCodeBytes int
	MaxTestCases int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxCodeBytes: 64 * 1024,
		MaxTestCases: 100,
	}
}

// ValidateSubmission checks the structure of a submission and fills in
// defaults for the optional fields. It returns an *APIError describing the
// first validation failure, or nil if the submission is valid. Content
// checks on the source text are done separately by the validator package.
func ValidateSubmission(sub *Submission, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(sub.Code) == "" || sub.Language == "" {
		param := "code"
		if sub.Language == "" {
			param = "language"
		}
		return NewInvalidRequestError(param, "Code and language are required").WithCode(CodeMissingField)
	}

	if !sub.Language.Valid() {
		return NewInvalidRequestError("language", "Unsupported language").WithCode(CodeUnsupportedLanguage)
	}

	if cfg.MaxCodeBytes > 0 && len(sub.Code) > cfg.MaxCodeBytes {
		return NewInvalidRequestError("code",
			fmt.Sprintf("code exceeds maximum of %d bytes", cfg.MaxCodeBytes)).WithCode(CodeLimitExceeded)
	}

	if re := entryPoints[sub.Language]; re != nil && !re.MatchString(sub.Code) {
		return NewInvalidRequestError("code", "Code must contain a 'solution' function").WithCode(CodeMissingEntryPoint)
	}

	if cfg.MaxTestCases > 0 && len(sub.TestCases) > cfg.MaxTestCases {
		return NewInvalidRequestError("testCases",
			fmt.Sprintf("testCases exceeds maximum of %d", cfg.MaxTestCases)).WithCode(CodeLimitExceeded)
	}

	switch sub.TestFormat {
	case "":
		sub.TestFormat = TestFormatLiteral
	case TestFormatLiteral, TestFormatJSON:
	default:
		return NewInvalidRequestError("testFormat",
			fmt.Sprintf("testFormat must be %q or %q", TestFormatLiteral, TestFormatJSON)).WithCode(CodeInvalidValue)
	}

	switch sub.ParamShape {
	case "":
		sub.ParamShape = ParamShapeAuto
	case ParamShapeAuto, ParamShapeLinkedList, ParamShapePositional, ParamShapeSingle:
	default:
		return NewInvalidRequestError("paramShape",
			fmt.Sprintf("unknown paramShape %q", sub.ParamShape)).WithCode(CodeInvalidValue)
	}

	for i, tc := range sub.TestCases {
		if len(tc.Input) == 0 {
			return NewInvalidRequestError(fmt.Sprintf("testCases[%d].input", i), "input is required").WithCode(CodeMissingField)
		}
		if len(tc.Expected) == 0 {
			return NewInvalidRequestError(fmt.Sprintf("testCases[%d].expected", i), "expected is required").WithCode(CodeMissingField)
		}
	}

	return nil
}
