package debug

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "runner", map[string]bool{"runner": true}},
		{"multiple", "runner,harness", map[string]bool{"runner": true, "harness": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " runner , harness ", map[string]bool{"runner": true, "harness": true}},
		{"uppercase normalized", "RUNNER,Harness", map[string]bool{"runner": true, "harness": true}},
		{"empty segments", "runner,,harness", map[string]bool{"runner": true, "harness": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("runner,auth")
	if !Enabled("runner") || !Enabled("auth") {
		t.Error("runner and auth should be enabled")
	}
	if Enabled("harness") {
		t.Error("harness should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled("anything") {
		t.Error("anything should be enabled via 'all'")
	}
}

func TestInitEnvironmentWins(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	t.Setenv(EnvVar, "agent")
	Init("harness")
	if !Enabled("agent") || Enabled("harness") {
		t.Errorf("categories = %v, want only agent", categories)
	}

	t.Setenv(EnvVar, "")
	Init("harness")
	if !Enabled("harness") {
		t.Errorf("categories = %v, want harness", categories)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"TRACE", LevelTrace, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRawRequiresTrace(t *testing.T) {
	origCats, origOut, origLogger := categories, rawOut, slog.Default()
	defer func() {
		categories, rawOut = origCats, origOut
		slog.SetDefault(origLogger)
	}()

	var buf bytes.Buffer
	rawOut = &buf
	categories = parseCategories("harness")

	slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Raw("harness", "solution.py", "print(1)")
	if buf.Len() != 0 {
		t.Errorf("Raw wrote at debug level: %q", buf.String())
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: LevelTrace})))
	Raw("harness", "solution.py", "print(1)\n")
	if got := buf.String(); !strings.Contains(got, "----- solution.py -----\nprint(1)\n") {
		t.Errorf("Raw output = %q", got)
	}

	buf.Reset()
	Raw("runner", "x", "y")
	if buf.Len() != 0 {
		t.Error("Raw wrote for a disabled category")
	}
}

func TestLogDisabledCategory(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("")
	// Must be a no-op.
	Log("runner", "test message", "key", "value")
}
