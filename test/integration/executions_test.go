package integration

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/transport"
)

const twoSumJS = `function solution(nums, target) {
    const seen = new Map();
    for (let i = 0; i < nums.length; i++) {
        if (seen.has(target - nums[i])) return [seen.get(target - nums[i]), i];
        seen.set(nums[i], i);
    }
    return [];
}`

const reverseListPython = `def solution(head):
    prev = None
    while head:
        head.next, prev, head = prev, head, head.next
    return prev
`

func TestExecuteJavaScriptTwoSum(t *testing.T) {
	requireNode(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":     twoSumJS,
		"language": "javascript",
		"testCases": []map[string]any{
			{"input": []any{[]int{2, 7, 11, 15}, 9}, "expected": []int{0, 1}},
			{"input": []any{[]int{3, 2, 4}, 6}, "expected": []int{1, 2}},
			{"input": []any{[]int{3, 3}, 6}, "expected": []int{0, 0}},
		},
	})

	if !res.Success {
		t.Fatalf("execution failed: %s (%s)", res.Error, res.ErrorKind)
	}
	if !api.ValidateExecutionID(res.ID) {
		t.Errorf("id = %q, want an execution ID", res.ID)
	}
	if len(res.TestResults) != 3 {
		t.Fatalf("got %d test results, want 3", len(res.TestResults))
	}

	wantPassed := []bool{true, true, false}
	for i, tr := range res.TestResults {
		if tr.Passed != wantPassed[i] {
			t.Errorf("test %d passed = %v, want %v (actual %v)", i, tr.Passed, wantPassed[i], tr.Actual)
		}
	}
	if got := res.TestResults[0].Actual; !reflect.DeepEqual(got, []any{0.0, 1.0}) {
		t.Errorf("actual = %v, want [0 1]", got)
	}
	if res.Passed() != 2 {
		t.Errorf("Passed() = %d, want 2", res.Passed())
	}
}

func TestExecutePythonDemoMode(t *testing.T) {
	requirePython(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":     "def solution(nums):\n    return nums\n",
		"language": "python",
	})

	if !res.Success {
		t.Fatalf("execution failed: %s (%s)", res.Error, res.ErrorKind)
	}
	if !strings.Contains(res.Output, "Result: [1, 2, 3]") {
		t.Errorf("output = %q, want Result: [1, 2, 3]", res.Output)
	}
	if len(res.TestResults) != 0 {
		t.Errorf("demo mode produced %d test results", len(res.TestResults))
	}
}

func TestExecutePythonLinkedList(t *testing.T) {
	requirePython(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":     reverseListPython,
		"language": "python",
		"testCases": []map[string]any{
			{"input": [][]int{{1, 2, 3}}, "expected": []int{3, 2, 1}},
			{"input": [][]int{{}}, "expected": []int{}},
		},
	})

	if res.Passed() != 2 {
		t.Fatalf("passed %d of %d: %+v", res.Passed(), len(res.TestResults), res.TestResults)
	}
}

func TestExecuteLiteralFormat(t *testing.T) {
	requirePython(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":       "def solution(flag, name):\n    return None if flag else name\n",
		"language":   "python",
		"testFormat": "literal",
		"testCases": []map[string]any{
			{"input": "[True, 'ada']", "expected": "None"},
			{"input": "[False, 'ada']", "expected": "'ada'"},
		},
	})

	if res.Passed() != 2 {
		t.Fatalf("passed %d of %d: %+v", res.Passed(), len(res.TestResults), res.TestResults)
	}
}

func TestExecuteRuntimeError(t *testing.T) {
	requirePython(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":     "def solution(x):\n    return x\n\nraise ValueError('boom')\n",
		"language": "python",
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != api.ErrorKindRuntimeError {
		t.Errorf("errorKind = %q, want %q", res.ErrorKind, api.ErrorKindRuntimeError)
	}
	if !strings.Contains(res.Error, "boom") {
		t.Errorf("error = %q, want the traceback", res.Error)
	}
}

func TestExecuteTimeout(t *testing.T) {
	requirePython(t)

	start := time.Now()
	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":      "def solution(x):\n    while True:\n        pass\n",
		"language":  "python",
		"testCases": []map[string]any{{"input": 1, "expected": 1}},
	})
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != api.ErrorKindTimeout {
		t.Errorf("errorKind = %q, want %q", res.ErrorKind, api.ErrorKindTimeout)
	}
	if len(res.TestResults) != 0 {
		t.Errorf("timed out run produced %d test results", len(res.TestResults))
	}
	if elapsed > runTimeout+3*time.Second {
		t.Errorf("request took %v, want about %v", elapsed, runTimeout)
	}
}

func TestExecuteIsRepeatable(t *testing.T) {
	requireNode(t)

	sub := map[string]any{
		"code":      twoSumJS,
		"language":  "javascript",
		"testCases": []map[string]any{{"input": []any{[]int{1, 5, 9}, 14}, "expected": []int{1, 2}}},
	}
	first := execute(t, testEnv.BaseURL(), sub)
	second := execute(t, testEnv.BaseURL(), sub)

	if first.ID == second.ID {
		t.Error("executions share an ID")
	}
	if !reflect.DeepEqual(first.TestResults, second.TestResults) {
		t.Errorf("results differ:\n%+v\n%+v", first.TestResults, second.TestResults)
	}
}

func TestExecutionAuditTrail(t *testing.T) {
	requireNode(t)

	res := execute(t, testEnv.BaseURL(), map[string]any{
		"code":      twoSumJS,
		"language":  "javascript",
		"testCases": []map[string]any{{"input": []any{[]int{2, 7}, 9}, "expected": []int{0, 1}}},
	})

	resp := getURL(t, testEnv.BaseURL()+"/api/code/executions/"+res.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var rec storage.Record
	decodeJSON(t, resp, &rec)

	if rec.ID != res.ID || rec.Language != api.LanguageJavaScript {
		t.Errorf("record = %+v", rec)
	}
	if rec.Passed != 1 || rec.Total != 1 || !rec.Success {
		t.Errorf("record counts = %d/%d success=%v, want 1/1 true", rec.Passed, rec.Total, rec.Success)
	}
	if len(rec.CodeSHA256) != 64 {
		t.Errorf("codeSha256 = %q", rec.CodeSHA256)
	}

	resp = getURL(t, testEnv.BaseURL()+"/api/code/executions?limit=100")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var list transport.RecordList
	decodeJSON(t, resp, &list)

	found := false
	for _, r := range list.Data {
		if r.ID == res.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("execution %s missing from list of %d", res.ID, len(list.Data))
	}

	resp = getURL(t, testEnv.BaseURL()+"/api/code/executions?limit=zero")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", resp.StatusCode)
	}
}
