package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/transport"
)

func connect(t *testing.T, exec transport.Executor) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	s := New(exec, []transport.LanguageInfo{{Language: api.LanguagePython, DisplayName: "Python"}}, "test")

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestListTools(t *testing.T) {
	cs := connect(t, transport.ExecutorFunc(func(context.Context, *api.Submission) (*api.ExecutionResult, error) {
		return nil, errors.New("unused")
	}))

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	if !names[ToolExecuteCode] || !names[ToolListLanguages] {
		t.Errorf("tools = %v", names)
	}
}

func TestExecuteCode(t *testing.T) {
	var got *api.Submission
	cs := connect(t, transport.ExecutorFunc(func(_ context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
		got = sub
		return &api.ExecutionResult{
			ID:          "exec_1",
			Success:     true,
			Output:      "Test 1: PASS",
			TestResults: []api.TestResult{{Input: []any{2.0, 3.0}, Expected: 5.0, Actual: 5.0, Passed: true}},
		}, nil
	}))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolExecuteCode,
		Arguments: map[string]any{
			"code":       "def solution(a, b):\n    return a + b\n",
			"language":   "python",
			"paramShape": "positional",
			"testCases": []any{
				map[string]any{"input": []any{2, 3}, "expected": 5},
			},
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", text(t, res))
	}

	if got == nil || got.Language != api.LanguagePython || got.ParamShape != api.ParamShapePositional {
		t.Fatalf("submission = %+v", got)
	}
	if len(got.TestCases) != 1 || string(got.TestCases[0].Input) != "[2,3]" || string(got.TestCases[0].Expected) != "5" {
		t.Errorf("test cases = %+v", got.TestCases)
	}

	var out api.ExecutionResult
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if out.ID != "exec_1" || !out.Success || len(out.TestResults) != 1 || !out.TestResults[0].Passed {
		t.Errorf("result = %+v", out)
	}
}

func TestExecuteCodeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", api.NewInvalidRequestError("code", "code contains a forbidden pattern"), "forbidden pattern"},
		{"internal detail hidden", errors.New("dial unix /var/run/docker.sock"), "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := connect(t, transport.ExecutorFunc(func(context.Context, *api.Submission) (*api.ExecutionResult, error) {
				return nil, tt.err
			}))

			res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
				Name:      ToolExecuteCode,
				Arguments: map[string]any{"code": "x", "language": "python"},
			})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if !res.IsError {
				t.Fatal("expected a tool error")
			}
			msg := text(t, res)
			if !strings.Contains(msg, tt.want) || strings.Contains(msg, "docker.sock") {
				t.Errorf("error text = %q", msg)
			}
		})
	}
}

func TestListLanguages(t *testing.T) {
	cs := connect(t, transport.ExecutorFunc(func(context.Context, *api.Submission) (*api.ExecutionResult, error) {
		return nil, errors.New("unused")
	}))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolListLanguages, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	var out LanguagesOutput
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if len(out.Languages) != 1 || out.Languages[0].Language != api.LanguagePython {
		t.Errorf("languages = %+v", out.Languages)
	}
}

func TestHandlerServesStreamableHTTP(t *testing.T) {
	s := New(transport.ExecutorFunc(func(context.Context, *api.Submission) (*api.ExecutionResult, error) {
		return &api.ExecutionResult{Success: true}, nil
	}), nil, "test")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolExecuteCode,
		Arguments: map[string]any{"code": "print(1)", "language": "python"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Errorf("tool error: %s", text(t, res))
	}
}
