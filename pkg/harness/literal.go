package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rhuss/codexec/pkg/api"
)

// LiteralError reports a test value that could not be turned into data.
type LiteralError struct {
	Index int
	Field string
	Err   error
}

func (e *LiteralError) Error() string {
	return fmt.Sprintf("testCases[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *LiteralError) Unwrap() error {
	return e.Err
}

// Param returns the request parameter path of the offending value.
func (e *LiteralError) Param() string {
	return fmt.Sprintf("testCases[%d].%s", e.Index, e.Field)
}

// NormalizeCases converts submitted test cases into structured data.
//
// Under the json format values are taken as they are. Under the literal
// format a string value holds a literal expression and is parsed with
// ParseLiteral; any other JSON value is already structured and is kept.
func NormalizeCases(format api.TestFormat, cases []api.TestCase) ([]Case, error) {
	out := make([]Case, 0, len(cases))
	for i, tc := range cases {
		in, err := normalizeValue(format, tc.Input)
		if err != nil {
			return nil, &LiteralError{Index: i, Field: "input", Err: err}
		}
		exp, err := normalizeValue(format, tc.Expected)
		if err != nil {
			return nil, &LiteralError{Index: i, Field: "expected", Err: err}
		}
		out = append(out, Case{Input: in, Expected: exp})
	}
	return out, nil
}

func normalizeValue(format api.TestFormat, raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("value is empty")
	}
	if format == api.TestFormatJSON || raw[0] != '"' {
		return compact(raw)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, err
	}
	return ParseLiteral(text)
}

func compact(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseLiteral converts a literal expression into JSON. Plain JSON is
// accepted unchanged. On top of that the common spellings found in
// Python and JavaScript test fixtures are understood: single-quoted
// strings, True/False/None, undefined, bare object keys and trailing
// commas. Anything else, such as calls or arithmetic, is rejected.
func ParseLiteral(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("literal is empty")
	}
	if json.Valid([]byte(text)) {
		return compact([]byte(text))
	}

	out, err := translate(text)
	if err != nil {
		return nil, err
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("invalid literal %q", truncate(text, 64))
	}
	return compact(out)
}

type literalScanner struct {
	src string
	pos int
	out bytes.Buffer
}

func translate(src string) ([]byte, error) {
	s := &literalScanner{src: src}
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '"':
			if err := s.doubleQuoted(); err != nil {
				return nil, err
			}
		case c == '\'':
			if err := s.singleQuoted(); err != nil {
				return nil, err
			}
		case c == ',':
			s.pos++
			if next := s.peekNonSpace(); next == ']' || next == '}' {
				continue
			}
			s.out.WriteByte(c)
		case c == '-' || c == '.' || isDigit(c):
			s.number()
		case isIdentStart(c):
			if err := s.identifier(); err != nil {
				return nil, err
			}
		default:
			s.out.WriteByte(c)
			s.pos++
		}
	}
	return s.out.Bytes(), nil
}

func (s *literalScanner) peekNonSpace() byte {
	for i := s.pos; i < len(s.src); i++ {
		if !unicode.IsSpace(rune(s.src[i])) {
			return s.src[i]
		}
	}
	return 0
}

func (s *literalScanner) doubleQuoted() error {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			s.out.WriteString(s.src[start:s.pos])
			return nil
		}
		s.pos++
	}
	return errors.New("unterminated string")
}

func (s *literalScanner) singleQuoted() error {
	var sb strings.Builder
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '\\':
			if s.pos+1 >= len(s.src) {
				return errors.New("unterminated string")
			}
			esc := s.src[s.pos+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			s.pos += 2
			continue
		case '\'':
			s.pos++
			enc, err := json.Marshal(sb.String())
			if err != nil {
				return err
			}
			s.out.Write(enc)
			return nil
		}
		sb.WriteByte(c)
		s.pos++
	}
	return errors.New("unterminated string")
}

func (s *literalScanner) number() {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if !isDigit(c) && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			break
		}
		s.pos++
	}
	s.out.WriteString(s.src[start:s.pos])
}

func (s *literalScanner) identifier() error {
	start := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}
	word := s.src[start:s.pos]

	if s.peekNonSpace() == ':' {
		enc, _ := json.Marshal(word)
		s.out.Write(enc)
		return nil
	}

	switch word {
	case "True", "true":
		s.out.WriteString("true")
	case "False", "false":
		s.out.WriteString("false")
	case "None", "null", "undefined":
		s.out.WriteString("null")
	default:
		return fmt.Errorf("unsupported identifier %q in literal", word)
	}
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
