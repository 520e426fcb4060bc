package integration

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/codexec/pkg/api"
)

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantType    api.ErrorType
		wantCode    string
	}{
		{
			name:       "invalid JSON",
			body:       `{invalid json`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
		},
		{
			name:       "empty code",
			body:       `{"code": "  ", "language": "python"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
			wantCode:   api.CodeMissingField,
		},
		{
			name:       "unsupported language",
			body:       `{"code": "fn main() {}", "language": "rust"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
			wantCode:   api.CodeUnsupportedLanguage,
		},
		{
			name:       "missing solution function",
			body:       `{"code": "def solve(x):\n    return x", "language": "python"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
			wantCode:   api.CodeMissingEntryPoint,
		},
		{
			name:       "dangerous code",
			body:       `{"code": "import subprocess\ndef solution(): pass", "language": "python"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
			wantCode:   api.CodeDangerousCode,
		},
		{
			name:       "bad literal",
			body:       `{"code": "def solution(x): return x", "language": "python", "testFormat": "literal", "testCases": [{"input": "[1, 2", "expected": "2"}]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   api.ErrorTypeInvalidRequest,
			wantCode:   api.CodeInvalidLiteral,
		},
		{
			name:        "form content type",
			contentType: "application/x-www-form-urlencoded",
			body:        `code=print(1)`,
			wantStatus:  http.StatusUnsupportedMediaType,
			wantType:    api.ErrorTypeInvalidRequest,
		},
		{
			name:       "body too large",
			body:       `{"code": "` + strings.Repeat("x", 1<<20) + `", "language": "python"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   api.ErrorTypeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct := tt.contentType
			if ct == "" {
				ct = "application/json"
			}
			resp, err := http.Post(testEnv.BaseURL()+"/api/code/execute", ct, bytes.NewReader([]byte(tt.body)))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, resp.StatusCode, readBody(t, resp))
			}

			var errResp api.ErrorResponse
			decodeJSON(t, resp, &errResp)
			if errResp.Error == nil {
				t.Fatal("error object is nil")
			}
			if errResp.Error.Type != tt.wantType {
				t.Errorf("error.type = %q, want %q", errResp.Error.Type, tt.wantType)
			}
			if tt.wantCode != "" && errResp.Error.Code != tt.wantCode {
				t.Errorf("error.code = %q, want %q", errResp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestExecutionNotFound(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/api/code/executions/exec_aaaaaaaaaaaaaaaaaaaaaaaa")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil || errResp.Error.Type != api.ErrorTypeNotFound {
		t.Errorf("error = %+v, want type not_found", errResp.Error)
	}
}

func TestMalformedExecutionID(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/api/code/executions/not-an-id")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
}

func TestErrorResponseFormat(t *testing.T) {
	resp := postJSON(t, testEnv.BaseURL()+"/api/code/execute", map[string]any{"language": "python"})

	var raw map[string]any
	decodeJSON(t, resp, &raw)

	errObj, ok := raw["error"]
	if !ok {
		t.Fatal("response missing 'error' key")
	}
	errMap, ok := errObj.(map[string]any)
	if !ok {
		t.Fatal("'error' is not an object")
	}
	if _, ok := errMap["type"]; !ok {
		t.Error("error object missing 'type'")
	}
	if _, ok := errMap["message"]; !ok {
		t.Error("error object missing 'message'")
	}
}
