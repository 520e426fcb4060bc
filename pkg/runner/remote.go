package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/codexec/pkg/debug"
	"github.com/rhuss/codexec/pkg/harness"
)

// ErrBusy is returned when a sandbox agent is at capacity.
var ErrBusy = errors.New("sandbox at capacity")

// Acquirer hands out the base URL of a sandbox agent together with a
// release function that must be called once the run is over.
type Acquirer interface {
	Acquire(ctx context.Context) (url string, release func(), err error)
}

// StaticAcquirer always returns the same agent URL.
type StaticAcquirer struct {
	URL string
}

// Acquire implements Acquirer.
func (s StaticAcquirer) Acquire(context.Context) (string, func(), error) {
	return strings.TrimRight(s.URL, "/"), func() {}, nil
}

// RemoteConfig configures the remote backend.
type RemoteConfig struct {
	// Timeout bounds one request to the agent, including execution.
	Timeout time.Duration

	// Token is sent as a bearer token when the agent requires one.
	Token string
}

// Remote ships programs to a codexec sandbox agent and returns the
// outcome the agent produced with its own process runner.
type Remote struct {
	acquirer   Acquirer
	httpClient *http.Client
	token      string
}

var _ Runner = (*Remote)(nil)

// NewRemote creates a remote runner.
func NewRemote(acq Acquirer, cfg RemoteConfig) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Remote{
		acquirer:   acq,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		token:      cfg.Token,
	}
}

// Run implements Runner.
func (r *Remote) Run(ctx context.Context, prog *harness.Program) (*Outcome, error) {
	url, release, err := r.acquirer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sandbox: %w", err)
	}
	defer release()

	body, err := json.Marshal(prog)
	if err != nil {
		return nil, fmt.Errorf("marshal program: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.token)
	}

	debug.Log("runner", "dispatching program to sandbox agent", "url", url, "language", prog.Language)
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrBusy
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var out Outcome
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
