package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/harness"
)

type countingAcquirer struct {
	url      string
	err      error
	released int
}

func (c *countingAcquirer) Acquire(context.Context) (string, func(), error) {
	if c.err != nil {
		return "", nil, c.err
	}
	return c.url, func() { c.released++ }, nil
}

func remoteProgram() *harness.Program {
	return &harness.Program{
		Language: api.LanguagePython,
		Files:    []harness.File{{Name: "solution.py", Content: "print(1)"}},
		Steps:    []harness.Step{{Name: harness.StepRun, Argv: []string{"python3", "solution.py"}, Timeout: 10 * time.Second}},
	}
}

func TestRemoteRun(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantErr   string
		wantBusy  bool
		wantState State
	}{
		{
			name: "successful execution",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var prog harness.Program
				if err := json.NewDecoder(r.Body).Decode(&prog); err != nil || prog.Steps[0].Timeout != 10*time.Second {
					http.Error(w, "bad program", http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(Outcome{State: StateCompleted, Step: harness.StepRun, Stdout: "1\n"})
			},
			wantState: StateCompleted,
		},
		{
			name: "agent at capacity",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"busy"}`, http.StatusTooManyRequests)
			},
			wantBusy: true,
		},
		{
			name: "agent error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: "HTTP 500",
		},
		{
			name: "invalid JSON response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			wantErr: "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				tt.handler(w, r)
			}))
			defer ts.Close()

			acq := &countingAcquirer{url: ts.URL}
			out, err := NewRemote(acq, RemoteConfig{}).Run(context.Background(), remoteProgram())

			if gotPath != "/run" {
				t.Errorf("path = %q, want /run", gotPath)
			}
			if acq.released != 1 {
				t.Errorf("release called %d times, want 1", acq.released)
			}

			switch {
			case tt.wantBusy:
				if !errors.Is(err, ErrBusy) {
					t.Errorf("err = %v, want ErrBusy", err)
				}
			case tt.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want containing %q", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if out.State != tt.wantState || out.Stdout != "1\n" {
					t.Errorf("outcome = %+v", out)
				}
			}
		})
	}
}

func TestRemoteSendsToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Outcome{State: StateCompleted})
	}))
	defer ts.Close()

	if _, err := NewRemote(StaticAcquirer{URL: ts.URL}, RemoteConfig{Token: "abc"}).Run(context.Background(), remoteProgram()); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer abc" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestRemoteAcquireError(t *testing.T) {
	acq := &countingAcquirer{err: errors.New("no capacity in cluster")}
	_, err := NewRemote(acq, RemoteConfig{}).Run(context.Background(), remoteProgram())
	if err == nil || !strings.Contains(err.Error(), "no capacity in cluster") {
		t.Errorf("err = %v", err)
	}
}
