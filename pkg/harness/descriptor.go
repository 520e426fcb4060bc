package harness

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rhuss/codexec/pkg/api"
)

// Descriptor captures everything that differs between target languages:
// statement and block syntax, the few expressions the dispatch ladder
// needs, and the runtime library appended after user code. The program
// skeleton itself is shared and lives in emit.go.
type Descriptor struct {
	Language        api.Language
	DisplayName     string
	WorkspacePrefix string

	// SourceFile is the harness file name inside the workspace. For
	// compiled languages CompiledFile is what the run step executes.
	SourceFile   string
	CompiledFile string
	CompileArgs  []string

	Indent string

	// Statement and block syntax. Every format takes its operands through
	// fmt verbs. End is written when a block closes and may be empty.
	Stmt    string
	Declare string
	Return  string
	If      string
	ElseIf  string
	Else    string
	End     string
	Try     string
	Catch   string
	Func    string
	Param   string

	// LoopOpen iterates the loaded cases binding index (1-based) and tc.
	LoopOpen string
	LoopBind []string
	Field    string

	// Expression syntax used by the dispatch ladder.
	And     string
	Eq      string
	IsArray string
	Length  string
	Index   string
	Spread  string
	Entry   string

	BuildList  string
	UnwrapList string
	Clone      string
	ErrMessage string

	// NodeType defines ListNode. It is skipped when NodeDecl matches the
	// user's code, so a solution may bring its own node class.
	NodeType string
	NodeDecl *regexp.Regexp

	// Library defines the list helpers, the canonical encoder and the
	// per-test reporters.
	Library  string
	LoadFile string
	LoadCall string

	// Main opens the entry point block; empty means top-level statements.
	Main      string
	DemoInput string
	DemoPrint string
	DemoError string
}

func (d *Descriptor) stmt(s string) string {
	return fmt.Sprintf(d.Stmt, s)
}

func (d *Descriptor) declare(name, value string) string {
	return fmt.Sprintf(d.Declare, name, value)
}

func (d *Descriptor) params(names ...string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf(d.Param, n)
	}
	return strings.Join(out, ", ")
}

func (d *Descriptor) call(fn string, args ...string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}

func (d *Descriptor) field(v, name string) string {
	return fmt.Sprintf(d.Field, v, name)
}

func (d *Descriptor) isArray(v string) string {
	return fmt.Sprintf(d.IsArray, v)
}

func (d *Descriptor) lengthIs(v string, n int) string {
	return fmt.Sprintf(d.Eq, fmt.Sprintf(d.Length, v), fmt.Sprint(n))
}

func (d *Descriptor) index(v string, i int) string {
	return fmt.Sprintf(d.Index, v, i)
}

func (d *Descriptor) and(parts ...string) string {
	return strings.Join(parts, d.And)
}

// Interpreted reports whether the language runs without a compile step.
func (d *Descriptor) Interpreted() bool {
	return d.CompiledFile == ""
}

// RunFile is the file the run step executes.
func (d *Descriptor) RunFile() string {
	if d.CompiledFile != "" {
		return d.CompiledFile
	}
	return d.SourceFile
}

var (
	pythonNodeDecl = regexp.MustCompile(`(?m)^class\s+ListNode\b`)
	braceNodeDecl  = regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:(?:abstract\s+)?class|function|var|let|const)\s+ListNode\b`)
)

var python = &Descriptor{
	Language:        api.LanguagePython,
	DisplayName:     "Python",
	WorkspacePrefix: "python-exec-",
	SourceFile:      "solution.py",

	Indent:  "    ",
	Stmt:    "%s",
	Declare: "%s = %s",
	Return:  "return %s",
	If:      "if %s:",
	ElseIf:  "elif %s:",
	Else:    "else:",
	End:     "",
	Try:     "try:",
	Catch:   "except Exception as %s:",
	Func:    "def %s(%s):",
	Param:   "%s",

	LoopOpen: "for index, tc in enumerate(%s, 1):",
	Field:    "%s['%s']",

	And:     " and ",
	Eq:      "%s == %s",
	IsArray: "isinstance(%s, list)",
	Length:  "len(%s)",
	Index:   "%s[%d]",
	Spread:  "*%s",
	Entry:   "solution",

	BuildList:  "create_linked_list",
	UnwrapList: "__from_linked_list",
	Clone:      "__copy.deepcopy",
	ErrMessage: "%[1]s",

	NodeType: pythonNode,
	NodeDecl: pythonNodeDecl,
	Library:  pythonLibrary,
	LoadFile: pythonLoadFile,
	LoadCall: "__load_cases()",

	Main:      "if __name__ == '__main__':",
	DemoInput: "[1, 2, 3]",
	DemoPrint: "print(f'Result: {%s}')",
	DemoError: "print(f'Error: {%s}')",
}

var javascript = &Descriptor{
	Language:        api.LanguageJavaScript,
	DisplayName:     "JavaScript",
	WorkspacePrefix: "js-exec-",
	SourceFile:      "solution.js",

	Indent:  "    ",
	Stmt:    "%s;",
	Declare: "const %s = %s;",
	Return:  "return %s",
	If:      "if (%s) {",
	ElseIf:  "} else if (%s) {",
	Else:    "} else {",
	End:     "}",
	Try:     "try {",
	Catch:   "} catch (%s) {",
	Func:    "function %s(%s) {",
	Param:   "%s",

	LoopOpen: "for (let i = 0, cases = %s; i < cases.length; i++) {",
	LoopBind: []string{"const index = i + 1;", "const tc = cases[i];"},
	Field:    "%s.%s",

	And:     " && ",
	Eq:      "%s === %s",
	IsArray: "Array.isArray(%s)",
	Length:  "%s.length",
	Index:   "%s[%d]",
	Spread:  "...%s",
	Entry:   "solution",

	BuildList:  "createLinkedList",
	UnwrapList: "__fromLinkedList",
	Clone:      "__clone",
	ErrMessage: "(%[1]s instanceof Error ? %[1]s.message : String(%[1]s))",

	NodeType: javascriptNode,
	NodeDecl: braceNodeDecl,
	Library:  javascriptLibrary,
	LoadFile: javascriptLoadFile,
	LoadCall: "__loadCases()",

	DemoInput: "[1, 2, 3]",
	DemoPrint: "console.log(`Result: ${%s}`);",
	DemoError: "console.log(`Error: ${%s}`);",
}

var typescript = &Descriptor{
	Language:        api.LanguageTypeScript,
	DisplayName:     "TypeScript",
	WorkspacePrefix: "ts-exec-",
	SourceFile:      "solution.ts",
	CompiledFile:    "solution.js",
	CompileArgs:     []string{"solution.ts", "--outFile", "solution.js", "--target", "es2020"},

	Indent:  "    ",
	Stmt:    "%s;",
	Declare: "const %s = %s;",
	Return:  "return %s",
	If:      "if (%s) {",
	ElseIf:  "} else if (%s) {",
	Else:    "} else {",
	End:     "}",
	Try:     "try {",
	Catch:   "} catch (%s: any) {",
	Func:    "function %s(%s): any {",
	Param:   "%s: any",

	LoopOpen: "for (let i = 0, cases = %s; i < cases.length; i++) {",
	LoopBind: []string{"const index = i + 1;", "const tc = cases[i];"},
	Field:    "%s.%s",

	And:     " && ",
	Eq:      "%s === %s",
	IsArray: "Array.isArray(%s)",
	Length:  "%s.length",
	Index:   "%s[%d]",
	Spread:  "...%s",
	// Calls go through an any-typed reference so the arity ladder type
	// checks whatever signature the user declared.
	Entry: "(solution as any)",

	BuildList:  "createLinkedList",
	UnwrapList: "__fromLinkedList",
	Clone:      "__clone",
	ErrMessage: "(%[1]s instanceof Error ? %[1]s.message : String(%[1]s))",

	NodeType: typescriptNode,
	NodeDecl: braceNodeDecl,
	Library:  typescriptLibrary,
	LoadFile: typescriptLoadFile,
	LoadCall: "__loadCases()",

	DemoInput: "[1, 2, 3]",
	DemoPrint: "console.log(`Result: ${%s}`);",
	DemoError: "console.log(`Error: ${%s}`);",
}

var descriptors = map[api.Language]*Descriptor{
	api.LanguagePython:     python,
	api.LanguageJavaScript: javascript,
	api.LanguageTypeScript: typescript,
}

// Lookup returns the descriptor for lang.
func Lookup(lang api.Language) (*Descriptor, error) {
	d, ok := descriptors[lang]
	if !ok {
		return nil, fmt.Errorf("no harness descriptor for language %q", lang)
	}
	return d, nil
}
