// Package debug provides category-based debug logging for codexec.
//
// Categories select WHAT is logged, the slog level selects HOW MUCH:
//
//	CODEXEC_DEBUG=harness,runner codexec serve
//
// Categories: harness, runner, agent, auth, all. At the trace level the
// harness category also dumps every generated program verbatim.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable that overrides configured categories.
const EnvVar = "CODEXEC_DEBUG"

// LevelTrace is below slog.LevelDebug for maximum verbosity.
const LevelTrace = slog.LevelDebug - 4

// Read-only after Init.
var categories = parseCategories(os.Getenv(EnvVar))

// rawOut receives Raw output.
var rawOut io.Writer = os.Stderr

// Init sets the enabled categories. The environment wins over configured.
func Init(configured string) {
	cats := os.Getenv(EnvVar)
	if cats == "" {
		cats = configured
	}
	categories = parseCategories(cats)
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for category.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// TraceEnabled reports whether trace output is active for category.
func TraceEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

// Raw writes text without slog formatting, for output meant to be copied
// and run, such as a generated program.
func Raw(category, header, text string) {
	if !TraceEnabled(category) {
		return
	}
	fmt.Fprintf(rawOut, "----- %s -----\n%s\n", header, strings.TrimRight(text, "\n"))
}

// ParseLevel converts a level name to a slog.Level. Unknown names are
// reported as errors.
func ParseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(strings.TrimSpace(s), "trace") {
		return LevelTrace, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for cat := range strings.SplitSeq(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
