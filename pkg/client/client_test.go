package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/runner"
	"github.com/rhuss/codexec/pkg/storage"
	"github.com/rhuss/codexec/pkg/storage/memory"
	"github.com/rhuss/codexec/pkg/transport"
	transporthttp "github.com/rhuss/codexec/pkg/transport/http"
)

// fakeServer serves the real HTTP adapter in front of fn and counts
// execute calls.
type fakeServer struct {
	*httptest.Server
	calls  atomic.Int32
	store  *memory.Store
	header http.Header
}

func newFakeServer(t *testing.T, fn transport.ExecutorFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{store: memory.New(0)}
	exec := transport.ExecutorFunc(func(ctx context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
		fs.calls.Add(1)
		res, err := fn(ctx, sub)
		if err == nil {
			_ = fs.store.Save(ctx, storage.NewRecord(sub, res, transport.RequestIDFromContext(ctx)))
		}
		return res, err
	})

	cfg := transporthttp.DefaultConfig()
	cfg.Languages = []transport.LanguageInfo{{Language: api.LanguagePython, DisplayName: "Python"}}
	adapter := transporthttp.NewAdapter(exec, fs.store, cfg)

	handler := adapter.Handler()
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.header = r.Header.Clone()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func remoteResult(_ context.Context, sub *api.Submission) (*api.ExecutionResult, error) {
	return &api.ExecutionResult{ID: api.NewExecutionID(), Success: true, Output: "remote " + string(sub.Language)}, nil
}

func TestClientExecute(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	c := New(srv.URL, WithAPIKey("ck-test"))

	res, err := c.Execute(context.Background(), &api.Submission{Code: "print(1)", Language: api.LanguagePython})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Output != "remote python" {
		t.Errorf("result = %+v", res)
	}
	if got := srv.header.Get("X-API-Key"); got != "ck-test" {
		t.Errorf("X-API-Key = %q", got)
	}
	if got := srv.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestClientPropagatesRequestID(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	c := New(srv.URL, WithBearerToken("tok"))

	ctx := transport.ContextWithRequestID(context.Background(), "trace-42")
	if _, err := c.Execute(ctx, &api.Submission{Code: "x", Language: api.LanguagePython}); err != nil {
		t.Fatal(err)
	}
	if got := srv.header.Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if got := srv.header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestClientAPIErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType api.ErrorType
		wantCode string
	}{
		{"validation", api.NewInvalidRequestError("code", "dangerous").WithCode(api.CodeDangerousCode), api.ErrorTypeInvalidRequest, api.CodeDangerousCode},
		{"busy", api.NewTooManyRequestsError("busy"), api.ErrorTypeTooManyRequests, ""},
		{"internal", errors.New("disk on fire"), api.ErrorTypeServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, func(context.Context, *api.Submission) (*api.ExecutionResult, error) {
				return nil, tt.err
			})

			_, err := New(srv.URL).Execute(context.Background(), &api.Submission{Code: "x", Language: api.LanguagePython})
			var apiErr *api.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *api.APIError", err)
			}
			if apiErr.Type != tt.wantType || apiErr.Code != tt.wantCode {
				t.Errorf("error = %+v", apiErr)
			}
		})
	}
}

func TestDecodeErrorNonAPIBody(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		wantType api.ErrorType
	}{
		{http.StatusBadGateway, "upstream gone", api.ErrorTypeServerError},
		{http.StatusTooManyRequests, "", api.ErrorTypeTooManyRequests},
		{http.StatusNotFound, "404 page not found", api.ErrorTypeNotFound},
		{http.StatusTeapot, "short and stout", api.ErrorTypeInvalidRequest},
	}
	for _, tt := range tests {
		var apiErr *api.APIError
		if err := decodeError(tt.status, []byte(tt.body)); !errors.As(err, &apiErr) || apiErr.Type != tt.wantType {
			t.Errorf("status %d: err = %v, want type %s", tt.status, err, tt.wantType)
		}
	}
}

func TestClientAuditAndLanguages(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	c := New(srv.URL + "/")
	ctx := context.Background()

	var ids []string
	for range 3 {
		res, err := c.Execute(ctx, &api.Submission{Code: "x", Language: api.LanguagePython})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.ID)
	}

	rec, err := c.Execution(ctx, ids[0])
	if err != nil {
		t.Fatalf("Execution: %v", err)
	}
	if rec.ID != ids[0] || rec.Language != api.LanguagePython {
		t.Errorf("record = %+v", rec)
	}

	recs, err := c.Executions(ctx, 2)
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != ids[2] {
		t.Errorf("executions = %+v", recs)
	}

	_, err = c.Execution(ctx, api.NewExecutionID())
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("unknown id: err = %v", err)
	}

	langs, err := c.Languages(ctx)
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if len(langs) != 1 || langs[0].DisplayName != "Python" {
		t.Errorf("languages = %+v", langs)
	}
}

func TestExecutorLocalSuccess(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	e, err := NewExecutor(New(srv.URL), runner.NewInProcess(runner.InProcessConfig{}))
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Execute(context.Background(), &api.Submission{
		Code:      "function solution(a, b) { return a + b; }",
		Language:  api.LanguageJavaScript,
		TestCases: []api.TestCase{{Input: []byte(`[2,3]`), Expected: []byte(`5`)}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Trusted {
		t.Error("in-process result must be untrusted")
	}
	if !res.Success || len(res.TestResults) != 1 || !res.TestResults[0].Passed {
		t.Errorf("result = %+v", res.ExecutionResult)
	}
	if n := srv.calls.Load(); n != 0 {
		t.Errorf("server called %d times, want 0", n)
	}
}

func TestExecutorFallsBackToServer(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	e, err := NewExecutor(New(srv.URL), runner.NewInProcess(runner.InProcessConfig{}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		sub  *api.Submission
	}{
		{"python is never local", &api.Submission{Code: "def solution(x):\n    return x\n", Language: api.LanguagePython}},
		{"local runtime error", &api.Submission{Code: "throw new Error('boom');\nfunction solution(x) { return x; }", Language: api.LanguageJavaScript}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := srv.calls.Load()
			res, err := e.Execute(context.Background(), tt.sub)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if !res.Trusted || res.Output != "remote "+string(tt.sub.Language) {
				t.Errorf("result = %+v trusted=%v", res.ExecutionResult, res.Trusted)
			}
			if srv.calls.Load() != before+1 {
				t.Error("server was not called")
			}
		})
	}
}

func TestExecutorValidationErrorStaysLocal(t *testing.T) {
	srv := newFakeServer(t, remoteResult)
	e, err := NewExecutor(New(srv.URL), runner.NewInProcess(runner.InProcessConfig{}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Execute(context.Background(), &api.Submission{Code: "", Language: api.LanguageJavaScript})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Fatalf("err = %v, want invalid request", err)
	}
	if n := srv.calls.Load(); n != 0 {
		t.Errorf("server called %d times, want 0", n)
	}
}

func TestExecutorLocalOnly(t *testing.T) {
	e, err := NewExecutor(nil, runner.NewInProcess(runner.InProcessConfig{}))
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Execute(context.Background(), &api.Submission{Code: "throw new Error('boom');\nfunction solution(x) { return x; }", Language: api.LanguageJavaScript})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.ErrorKind != api.ErrorKindRuntimeError || res.Trusted {
		t.Errorf("result = %+v", res.ExecutionResult)
	}

	if _, err := e.Execute(context.Background(), &api.Submission{Code: "def solution(x):\n    return x\n", Language: api.LanguagePython}); err == nil {
		t.Error("python without a server should fail")
	}

	if _, err := NewExecutor(nil, nil); err == nil {
		t.Error("NewExecutor(nil, nil) should fail")
	}
}
