// Package mcpserver exposes code execution as Model Context Protocol
// tools over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/transport"
)

// Tool names.
const (
	ToolExecuteCode   = "execute_code"
	ToolListLanguages = "list_languages"
)

// ExecuteInput is the argument object of execute_code. It mirrors the
// REST request body; test values are arbitrary JSON.
type ExecuteInput struct {
	Code       string          `json:"code" jsonschema:"the solution source code, defining a function named solution"`
	Language   string          `json:"language" jsonschema:"one of python, javascript, typescript"`
	TestCases  []TestCaseInput `json:"testCases,omitempty" jsonschema:"test cases; omit to run once with a demo input"`
	TestFormat string          `json:"testFormat,omitempty" jsonschema:"json (default) or literal"`
	ParamShape string          `json:"paramShape,omitempty" jsonschema:"auto (default), linked_list, positional or single"`
}

// TestCaseInput is one test case of ExecuteInput.
type TestCaseInput struct {
	Input    any `json:"input"`
	Expected any `json:"expected"`
}

// LanguagesOutput is the result of list_languages.
type LanguagesOutput struct {
	Languages []transport.LanguageInfo `json:"languages"`
}

// Server serves the execution tools.
type Server struct {
	server *mcp.Server
	exec   transport.Executor
	langs  []transport.LanguageInfo
}

// New creates an MCP server backed by exec.
func New(exec transport.Executor, langs []transport.LanguageInfo, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "codexec", Version: version}, nil),
		exec:   exec,
		langs:  langs,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: ToolExecuteCode,
		Description: "Runs a solution against test cases in a sandbox and reports per-test results. " +
			"Each test input is passed to solution() according to paramShape.",
	}, s.executeCode)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolListLanguages,
		Description: "Lists the supported languages and how they are compiled and run",
	}, s.listLanguages)

	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) executeCode(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, api.ExecutionResult, error) {
	sub, err := in.submission()
	if err != nil {
		return nil, api.ExecutionResult{}, err
	}

	res, err := s.exec.Execute(ctx, sub)
	if err != nil {
		apiErr := transport.AsAPIError(err)
		slog.Debug("mcp execute_code failed", "language", sub.Language, "error", apiErr)
		return nil, api.ExecutionResult{}, apiErr
	}

	text, err := json.Marshal(res)
	if err != nil {
		return nil, api.ExecutionResult{}, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, *res, nil
}

func (s *Server) listLanguages(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, LanguagesOutput, error) {
	out := LanguagesOutput{Languages: s.langs}
	if out.Languages == nil {
		out.Languages = []transport.LanguageInfo{}
	}
	return nil, out, nil
}

func (in *ExecuteInput) submission() (*api.Submission, error) {
	sub := &api.Submission{
		Code:       in.Code,
		Language:   api.Language(in.Language),
		TestFormat: api.TestFormat(in.TestFormat),
		ParamShape: api.ParamShape(in.ParamShape),
	}
	for i, tc := range in.TestCases {
		input, err := json.Marshal(tc.Input)
		if err != nil {
			return nil, api.NewInvalidRequestError(fmt.Sprintf("testCases[%d].input", i), err.Error())
		}
		expected, err := json.Marshal(tc.Expected)
		if err != nil {
			return nil, api.NewInvalidRequestError(fmt.Sprintf("testCases[%d].expected", i), err.Error())
		}
		sub.TestCases = append(sub.TestCases, api.TestCase{Input: input, Expected: expected})
	}
	return sub, nil
}
