package harness

import (
	"fmt"
	"strings"

	"github.com/rhuss/codexec/pkg/api"
)

// emitter writes indented source lines using a descriptor's block syntax.
// Python closes blocks by dedenting; brace languages write d.End.
type emitter struct {
	d     *Descriptor
	b     strings.Builder
	depth int
}

func (e *emitter) line(s string) {
	if s != "" {
		e.b.WriteString(strings.Repeat(e.d.Indent, e.depth))
		e.b.WriteString(s)
	}
	e.b.WriteByte('\n')
}

func (e *emitter) raw(s string) {
	e.b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		e.b.WriteByte('\n')
	}
}

func (e *emitter) blank(n int) {
	for range n {
		e.b.WriteByte('\n')
	}
}

func (e *emitter) open(header string) {
	e.line(header)
	e.depth++
}

func (e *emitter) chain(header string) {
	e.depth--
	e.line(header)
	e.depth++
}

func (e *emitter) close() {
	e.depth--
	if e.d.End != "" {
		e.line(e.d.End)
	}
}

func (e *emitter) stmt(s string) {
	e.line(e.d.stmt(s))
}

// branch is one rung of the dispatch ladder. An empty cond is the
// unconditional fallback.
type branch struct {
	cond string
	ret  string
}

// dispatchBranches builds the argument dispatch ladder for a parameter
// shape. Under auto the order is fixed: a 1-element array holding an array
// is a linked list, 2 and 3 element arrays are that many arguments, other
// arrays are spread, anything else is a single argument.
func dispatchBranches(d *Descriptor, shape api.ParamShape, v string) []branch {
	entry := func(args ...string) string { return d.call(d.Entry, args...) }
	first := d.index(v, 0)
	viaList := func(arr string) string {
		return d.call(d.UnwrapList, entry(d.call(d.BuildList, arr)))
	}
	nestedList := d.and(d.isArray(v), d.lengthIs(v, 1), d.isArray(first))

	switch shape {
	case api.ParamShapeLinkedList:
		return []branch{
			{nestedList, viaList(first)},
			{d.isArray(v), viaList(v)},
			{"", d.call(d.UnwrapList, entry(v))},
		}
	case api.ParamShapePositional:
		return []branch{
			{d.isArray(v), entry(fmt.Sprintf(d.Spread, v))},
			{"", entry(v)},
		}
	case api.ParamShapeSingle:
		return []branch{{"", entry(v)}}
	default:
		return []branch{
			{nestedList, viaList(first)},
			{d.and(d.isArray(v), d.lengthIs(v, 2)), entry(d.index(v, 0), d.index(v, 1))},
			{d.and(d.isArray(v), d.lengthIs(v, 3)), entry(d.index(v, 0), d.index(v, 1), d.index(v, 2))},
			{d.isArray(v), entry(fmt.Sprintf(d.Spread, v))},
			{"", entry(v)},
		}
	}
}

func (e *emitter) dispatch(shape api.ParamShape) {
	d := e.d
	e.open(fmt.Sprintf(d.Func, "__dispatch", d.params("data")))
	branches := dispatchBranches(d, shape, "data")
	for i, br := range branches {
		switch {
		case br.cond == "" && i == 0:
			e.stmt(fmt.Sprintf(d.Return, br.ret))
			continue
		case i == 0:
			e.open(fmt.Sprintf(d.If, br.cond))
		case br.cond == "":
			e.chain(d.Else)
		default:
			e.chain(fmt.Sprintf(d.ElseIf, br.cond))
		}
		e.stmt(fmt.Sprintf(d.Return, br.ret))
	}
	if branches[0].cond != "" {
		e.close()
	}
	e.close()
}

func (e *emitter) runner() {
	d := e.d
	e.open(fmt.Sprintf(d.Func, "__run", ""))
	e.line(d.declare("results", "[]"))
	e.open(fmt.Sprintf(d.LoopOpen, d.LoadCall))
	for _, l := range d.LoopBind {
		e.line(l)
	}
	e.line(d.declare("data", d.field("tc", "input")))
	e.line(d.declare("expected", d.field("tc", "expected")))
	e.open(d.Try)
	e.line(d.declare("actual", d.call("__dispatch", d.call(d.Clone, "data"))))
	e.stmt(d.call("__check", "results", "index", "data", "expected", "actual"))
	e.chain(fmt.Sprintf(d.Catch, "err"))
	e.stmt(d.call("__fail", "results", "index", "data", "expected", "err"))
	e.close()
	e.close()
	e.stmt(d.call("__finish", "results"))
	e.close()
}

// entrypoint writes the body under the language's main guard, or at top
// level when the language has none.
func (e *emitter) entrypoint(body func()) {
	if e.d.Main == "" {
		body()
		return
	}
	e.open(e.d.Main)
	body()
	e.close()
}

func (e *emitter) demo() {
	d := e.d
	e.entrypoint(func() {
		e.open(d.Try)
		e.line(d.declare("result", d.call(d.Entry, d.DemoInput)))
		e.line(fmt.Sprintf(d.DemoPrint, "result"))
		e.chain(fmt.Sprintf(d.Catch, "err"))
		e.line(fmt.Sprintf(d.DemoError, fmt.Sprintf(d.ErrMessage, "err")))
		e.close()
	})
}

// render assembles the complete harness program around the user's code.
func render(d *Descriptor, code string, demo bool, shape api.ParamShape) string {
	e := &emitter{d: d}
	e.raw(code)
	e.blank(2)

	if demo {
		e.demo()
		return e.b.String()
	}

	if !d.NodeDecl.MatchString(code) {
		e.raw(d.NodeType)
		e.blank(2)
	}
	e.raw(d.Library)
	e.blank(2)
	e.raw(d.LoadFile)
	e.blank(2)
	e.dispatch(shape)
	e.blank(2)
	e.runner()
	e.blank(2)
	e.entrypoint(func() {
		e.stmt(d.call("__run"))
	})
	return e.b.String()
}
