package harness

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rhuss/codexec/pkg/api"
)

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json array", "[[2,7,11,15], 9]", `[[2,7,11,15],9]`},
		{"number", " 42 ", `42`},
		{"negative float", "-1.5e3", `-1.5e3`},
		{"double quoted", `"abc"`, `"abc"`},
		{"single quoted", `'abc'`, `"abc"`},
		{"single quoted with escapes", `'it\'s "ok"'`, `"it's \"ok\""`},
		{"python constants", "[True, False, None]", `[true,false,null]`},
		{"undefined", "[1, undefined]", `[1,null]`},
		{"bare keys", "{a: 1, b_2: 'x'}", `{"a":1,"b_2":"x"}`},
		{"trailing comma", "[1, 2, 3,]", `[1,2,3]`},
		{"trailing comma object", "{'a': [1,],}", `{"a":[1]}`},
		{"nested", "[[1, [2, 3]], {'k': None}]", `[[1,[2,3]],{"k":null}]`},
		{"string with identifier text", `["True", 'None']`, `["True","None"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLiteral(tt.in)
			if err != nil {
				t.Fatalf("ParseLiteral(%q): %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("ParseLiteral(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseLiteralRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"foo",
		"__import__('os')",
		"[1, 2",
		"'unterminated",
		"(1, 2)",
		"1 + 2",
	} {
		if got, err := ParseLiteral(in); err == nil {
			t.Errorf("ParseLiteral(%q) = %s, want error", in, got)
		}
	}
}

func TestNormalizeCasesLiteral(t *testing.T) {
	cases := []api.TestCase{
		{Input: json.RawMessage(`"[[2,7,11,15],9]"`), Expected: json.RawMessage(`"[0,1]"`)},
		{Input: json.RawMessage(`[1, 2]`), Expected: json.RawMessage(`3`)},
		{Input: json.RawMessage(`"'hello'"`), Expected: json.RawMessage(`"'olleh'"`)},
	}
	got, err := NormalizeCases(api.TestFormatLiteral, cases)
	if err != nil {
		t.Fatalf("NormalizeCases: %v", err)
	}

	want := []Case{
		{Input: json.RawMessage(`[[2,7,11,15],9]`), Expected: json.RawMessage(`[0,1]`)},
		{Input: json.RawMessage(`[1,2]`), Expected: json.RawMessage(`3`)},
		{Input: json.RawMessage(`"hello"`), Expected: json.RawMessage(`"olleh"`)},
	}
	for i := range want {
		if string(got[i].Input) != string(want[i].Input) || string(got[i].Expected) != string(want[i].Expected) {
			t.Errorf("case %d = {%s %s}, want {%s %s}", i, got[i].Input, got[i].Expected, want[i].Input, want[i].Expected)
		}
	}
}

func TestNormalizeCasesJSON(t *testing.T) {
	got, err := NormalizeCases(api.TestFormatJSON, []api.TestCase{
		{Input: json.RawMessage(`"[1,2]"`), Expected: json.RawMessage(`{ "a" : 1 }`)},
	})
	if err != nil {
		t.Fatalf("NormalizeCases: %v", err)
	}
	if string(got[0].Input) != `"[1,2]"` {
		t.Errorf("json format must keep strings as strings, got %s", got[0].Input)
	}
	if string(got[0].Expected) != `{"a":1}` {
		t.Errorf("expected = %s", got[0].Expected)
	}
}

func TestNormalizeCasesError(t *testing.T) {
	_, err := NormalizeCases(api.TestFormatLiteral, []api.TestCase{
		{Input: json.RawMessage(`"[1]"`), Expected: json.RawMessage(`"1"`)},
		{Input: json.RawMessage(`"[1]"`), Expected: json.RawMessage(`"print(1)"`)},
	})
	var lerr *LiteralError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LiteralError", err)
	}
	if lerr.Index != 1 || lerr.Field != "expected" {
		t.Errorf("LiteralError = %+v", lerr)
	}
	if lerr.Param() != "testCases[1].expected" {
		t.Errorf("Param() = %q", lerr.Param())
	}
}
