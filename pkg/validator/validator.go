// Package validator rejects submissions whose source text contains
// constructs that reach the operating system, load privileged modules or
// evaluate code dynamically.
//
// The denylist is a deterrent, not an isolation boundary: it is trivially
// bypassed by obfuscation. Isolation is the runner's job.
package validator

import (
	"fmt"
	"regexp"

	"github.com/rhuss/codexec/pkg/api"
)

// Rule is a single denylist entry.
type Rule struct {
	// Name is a short, stable identifier used as the rejection reason and
	// as a metric label.
	Name    string
	Pattern *regexp.Regexp
}

func rule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern)}
}

// pythonRules target process, file and module access in Python.
var pythonRules = []Rule{
	rule("import_os", `import\s+os`),
	rule("import_subprocess", `import\s+subprocess`),
	rule("import_sys", `import\s+sys`),
	rule("dunder_import", `__import__`),
	rule("eval", `eval\s*\(`),
	rule("exec", `exec\s*\(`),
	rule("open", `open\s*\(`),
	rule("file", `file\s*\(`),
	rule("input", `input\s*\(`),
	rule("raw_input", `raw_input\s*\(`),
}

// ecmascriptRules target the Node.js process object and core modules.
var ecmascriptRules = []Rule{
	rule("process", `process\.`),
	rule("require_fs", `require\s*\(\s*['"]fs['"]`),
	rule("require_child_process", `require\s*\(\s*['"]child_process['"]`),
	rule("require_os", `require\s*\(\s*['"]os['"]`),
}

// DefaultRules returns the built-in denylist. Every group applies to every
// language so a construct cannot slip through by declaring a different
// language than the one the code is written in.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(pythonRules)+len(ecmascriptRules))
	rules = append(rules, pythonRules...)
	rules = append(rules, ecmascriptRules...)
	return rules
}

// Validator scans source text against the denylist.
type Validator struct {
	rules []Rule
	extra map[api.Language][]Rule
}

// New creates a Validator with the default rules plus the given extra
// patterns per language. Extra pattern names are "custom_<n>".
func New(extra map[api.Language][]string) (*Validator, error) {
	v := &Validator{
		rules: DefaultRules(),
		extra: make(map[api.Language][]Rule, len(extra)),
	}
	for lang, patterns := range extra {
		for i, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("extra pattern %d for %s: %w", i, lang, err)
			}
			v.extra[lang] = append(v.extra[lang], Rule{Name: fmt.Sprintf("custom_%d", i), Pattern: re})
		}
	}
	return v, nil
}

// Check returns ok=false and the name of the first matching rule when code
// contains a denylisted construct. It has no side effects.
func (v *Validator) Check(code string, lang api.Language) (ok bool, reason string) {
	for _, r := range v.rules {
		if r.Pattern.MatchString(code) {
			return false, r.Name
		}
	}
	for _, r := range v.extra[lang] {
		if r.Pattern.MatchString(code) {
			return false, r.Name
		}
	}
	return true, ""
}

// Validate runs Check and converts a rejection into the API error returned
// to callers.
func (v *Validator) Validate(code string, lang api.Language) (*api.APIError, string) {
	if ok, reason := v.Check(code, lang); !ok {
		return api.NewInvalidRequestError("code", "Code contains potentially dangerous operations").
			WithCode(api.CodeDangerousCode), reason
	}
	return nil, ""
}
