// Package result extracts structured test outcomes from the output of a
// harness program.
package result

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/debug"
)

// Parse returns the test results printed at the end of output. The harness
// writes a JSON array on its own lines after the per-test lines, so Parse
// tries the spans that start at a line opening with '[' from the last one
// backwards, then the span from the first '[' to the last ']'. Any failure
// yields an empty slice, never an error, and entries that are not objects
// are skipped.
func Parse(output string) []api.TestResult {
	end := strings.LastIndexByte(output, ']')
	if end < 0 {
		return []api.TestResult{}
	}

	for i := strings.LastIndex(output[:end], "\n["); i >= 0; i = strings.LastIndex(output[:i], "\n[") {
		if results, ok := decode(output[i+1 : end+1]); ok {
			return results
		}
	}
	if start := strings.IndexByte(output, '['); start >= 0 && start < end {
		if results, ok := decode(output[start : end+1]); ok {
			return results
		}
	}

	debug.Log("harness", "no results block in output", "bytes", len(output))
	return []api.TestResult{}
}

func decode(span string) ([]api.TestResult, bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(span), &entries); err != nil {
		return nil, false
	}

	results := make([]api.TestResult, 0, len(entries))
	for _, raw := range entries {
		var tr api.TestResult
		if err := json.Unmarshal(raw, &tr); err != nil {
			continue
		}
		results = append(results, tr)
	}
	return results, true
}
